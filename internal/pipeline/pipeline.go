// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package pipeline runs a whitelabel build end to end.

# Steps

 1. Load and validate the configuration document, including the roles
    every artifact requires. Nothing is touched before this passes.
 2. Initial build, so the build output reflects the unmodified sources.
 3. Snapshot each package's build output into a session directory.
 4. Mutate each catalog artifact, backing it up before its first write.
 5. Rebuild.
 6. Write one build-output patch per snapshotted package.
 7. Optionally write one source patch per package.

Steps 2 to 7 run as a saga: when one fails, every mutated artifact is
restored from its backup and the snapshots are removed. Snapshots are
removed after a successful run as well.

In dry-run mode only step 1 and a preview of step 4 run; nothing is
written.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/whitelabel/internal/catalog"
	"github.com/AleutianAI/whitelabel/internal/command"
	"github.com/AleutianAI/whitelabel/internal/config"
	"github.com/AleutianAI/whitelabel/internal/editor"
	"github.com/AleutianAI/whitelabel/internal/patch"
	"github.com/AleutianAI/whitelabel/internal/resilience"
	"github.com/AleutianAI/whitelabel/internal/session"
)

// EmptyDiffWarning is logged when no package's build output changed.
const EmptyDiffWarning = "No differences found in dist directories - this may indicate the build process is not incorporating source changes"

// Builder runs the monorepo build.
type Builder interface {
	Build(ctx context.Context, label string) error
}

// Deps overrides the pipeline's collaborators. Zero fields use the
// subprocess-backed defaults.
type Deps struct {
	Builder Builder
	Differ  patch.Differ
}

// Report summarizes a run.
type Report struct {
	// SessionID identifies the run's snapshot directory. Empty in dry-run
	// mode.
	SessionID string

	ChainName  string
	ChainID    int64
	Identifier string

	// Preview is true for dry runs.
	Preview bool

	// Artifacts holds one result per edited artifact, in edit order.
	Artifacts []*editor.Result

	// Patches holds one result per package and mode, in patch order.
	Patches []*patch.Result

	// BackedUp lists artifacts backed up during the run. After a failure
	// they have already been restored.
	BackedUp []string

	// CompletedSteps names the steps that succeeded, in order. After a
	// failure they have been compensated.
	CompletedSteps []string

	// OutputDir is where patches were written.
	OutputDir string

	Duration time.Duration
}

// Written returns the written patches.
func (r *Report) Written() []*patch.Result {
	var out []*patch.Result
	for _, p := range r.Patches {
		if p.Status == patch.StatusWritten {
			out = append(out, p)
		}
	}
	return out
}

// Modified returns the artifacts whose content changed.
func (r *Report) Modified() []string {
	var out []string
	for _, a := range r.Artifacts {
		if a.Changed {
			out = append(out, a.Path)
		}
	}
	return out
}

// Pipeline runs whitelabel builds.
//
// # Thread Safety
//
// Run is not safe for concurrent use against the same root.
type Pipeline struct {
	opts   Options
	deps   Deps
	logger *slog.Logger
}

// New validates opts and creates a Pipeline.
//
// # Outputs
//
//   - *Pipeline: Ready to Run.
//   - error: ErrInvalidOptions.
func New(opts Options, deps Deps) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts, err := opts.resolved()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger

	if deps.Builder == nil || deps.Differ == nil {
		runner := command.NewExecRunner(logger)
		if deps.Builder == nil {
			deps.Builder = command.NewBuilder(runner, command.BuildConfig{
				Command: opts.BuildCommand,
				Dir:     opts.Root,
				Timeout: opts.BuildTimeout,
				Output:  opts.BuildOutput,
			}, logger)
		}
		if deps.Differ == nil {
			deps.Differ = command.NewGitDiffer(runner, opts.DiffTimeout, logger)
		}
	}
	return &Pipeline{opts: opts, deps: deps, logger: logger}, nil
}

// Run runs a build with the default collaborators.
func Run(ctx context.Context, opts Options) (*Report, error) {
	p, err := New(opts, Deps{})
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// Run executes the pipeline once.
//
// # Outputs
//
//   - *Report: Set whenever the configuration loaded, also on failure.
//   - error: Configuration errors (see IsUserError), or the failed step
//     as a *resilience.SagaError.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run",
		trace.WithAttributes(attribute.Bool("pipeline.preview", p.opts.DryRun)))
	defer span.End()
	start := time.Now()

	doc, err := p.loadConfig()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordRun(ctx, "invalid_config", p.opts.DryRun)
		return nil, err
	}
	p.logger.Info("loaded config",
		"chain_name", doc.ChainName, "chain_id", doc.ChainID, "identifier", doc.Identifier())

	report := &Report{
		ChainName:  doc.ChainName,
		ChainID:    doc.ChainID,
		Identifier: doc.Identifier(),
		Preview:    p.opts.DryRun,
		OutputDir:  p.opts.OutputDir,
	}

	if p.opts.DryRun {
		err = p.preview(ctx, doc, report)
	} else {
		err = p.execute(ctx, doc, report)
	}
	report.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordRun(ctx, "failed", p.opts.DryRun)
		return report, err
	}
	recordRun(ctx, "succeeded", p.opts.DryRun)
	return report, nil
}

// IsUserError reports whether err is fixed by changing the configuration
// or flags rather than the environment.
func IsUserError(err error) bool {
	return errors.Is(err, config.ErrInvalidConfig) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, ErrInvalidOptions)
}

func (p *Pipeline) loadConfig() (*config.Document, error) {
	doc, err := config.Load(p.opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	for _, a := range catalog.Artifacts() {
		if err := doc.Require(a.Required...); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", a.Package, a.Rel, err)
		}
	}
	if unknown := doc.UnknownRoles(); len(unknown) > 0 {
		p.logger.Warn("ignoring unknown address roles", "roles", unknown)
	}
	return doc, nil
}

// =============================================================================
// Dry run
// =============================================================================

func (p *Pipeline) preview(ctx context.Context, doc *config.Document, report *Report) error {
	p.logger.Info("[preview] no files will be modified; skipping builds, snapshots and patches")

	ed := editor.New(editor.Options{Preview: true, Logger: p.logger})
	for _, a := range catalog.Artifacts() {
		res, err := ed.Apply(ctx, doc, a.Plan(p.opts.Root))
		if err != nil {
			return fmt.Errorf("preview %s/%s: %w", a.Package, a.Rel, err)
		}
		report.Artifacts = append(report.Artifacts, res)
	}
	return nil
}

// =============================================================================
// Run
// =============================================================================

func (p *Pipeline) execute(ctx context.Context, doc *config.Document, report *Report) error {
	sess, err := session.New(session.Config{Root: p.opts.Root, Logger: p.logger})
	if err != nil {
		return err
	}
	report.SessionID = sess.ID()
	logger := p.logger.With("session_id", sess.ID())
	logger.Debug("session started", "snapshot_dir", sess.SnapshotDir())

	defer func() {
		if err := sess.Cleanup(); err != nil {
			logger.Error("snapshot cleanup failed", "error", err)
		}
	}()

	ed := editor.New(editor.Options{Backups: sess, Logger: logger})
	syn := patch.New(p.deps.Differ, patch.Options{
		OutputDir: p.opts.OutputDir,
		Defaults:  p.opts.identityDefaults(),
		Logger:    logger,
	})

	cfg := resilience.DefaultSagaConfig()
	cfg.Logger = logger
	cfg.OnStepStart = func(step resilience.SagaStep) {
		logger.Info("step started", "step", step.Name)
	}
	cfg.OnStepComplete = func(step resilience.SagaStep, d time.Duration) {
		recordStep(ctx, step.Name, d)
	}
	saga := resilience.NewSaga(cfg)

	buildTimeout := p.buildStepTimeout()
	if !p.opts.SkipBuild {
		saga.AddStep(resilience.SagaStep{
			Name:    "initial-build",
			Execute: func(ctx context.Context) error { return p.deps.Builder.Build(ctx, "initial") },
			Timeout: buildTimeout,
		})
	}

	saga.AddStep(resilience.SagaStep{
		Name:       "snapshot",
		Execute:    func(ctx context.Context) error { return p.snapshot(sess, logger) },
		Compensate: func(ctx context.Context) error { return sess.Cleanup() },
	})

	for _, a := range catalog.Artifacts() {
		path := a.Path(p.opts.Root)
		saga.AddStep(resilience.SagaStep{
			Name: "mutate " + a.Package + "/" + a.Rel,
			Execute: func(ctx context.Context) error {
				res, err := ed.Apply(ctx, doc, a.Plan(p.opts.Root))
				if err != nil {
					// A failed write may leave a backup behind.
					if rerr := sess.RestoreBackups([]string{path}); rerr != nil {
						logger.Error("restore after failed edit", "artifact", path, "error", rerr)
					}
					return err
				}
				report.Artifacts = append(report.Artifacts, res)
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return sess.RestoreBackups([]string{path})
			},
		})
	}

	if !p.opts.SkipBuild {
		saga.AddStep(resilience.SagaStep{
			Name:    "rebuild",
			Execute: func(ctx context.Context) error { return p.deps.Builder.Build(ctx, "rebuild") },
			Timeout: buildTimeout,
		})
	}

	saga.AddStep(resilience.SagaStep{
		Name:    "diff-patches",
		Execute: func(ctx context.Context) error { return p.diffPatches(ctx, sess, syn, report, logger) },
	})

	if p.opts.SourcePatch {
		saga.AddStep(resilience.SagaStep{
			Name:    "source-patches",
			Execute: func(ctx context.Context) error { return p.sourcePatches(ctx, syn, report) },
		})
	}

	err = saga.Execute(ctx)
	report.BackedUp = sess.BackedUp()
	report.CompletedSteps = saga.CompletedSteps()
	if err != nil {
		var sagaErr *resilience.SagaError
		if errors.As(err, &sagaErr) && len(sagaErr.CompensationErrors) > 0 {
			logger.Error("rollback incomplete; run 'whitelabel restore' to retry",
				"error", err, "completed_steps", report.CompletedSteps)
		}
		return err
	}
	return nil
}

func (p *Pipeline) buildStepTimeout() time.Duration {
	timeout := p.opts.BuildTimeout
	if timeout <= 0 {
		timeout = command.DefaultBuildTimeout
	}
	return timeout + time.Minute
}

func (p *Pipeline) snapshot(sess *session.Session, logger *slog.Logger) error {
	for _, pkg := range catalog.Packages() {
		out := filepath.Join(pkg.Dir(p.opts.Root), pkg.OutputDir)
		if _, err := sess.Snapshot(pkg.Name, out); err != nil {
			if errors.Is(err, session.ErrNoBuildOutput) {
				continue
			}
			return err
		}
	}
	if len(sess.Snapshots()) == 0 {
		logger.Warn("no build output to snapshot; build-output patches will be skipped")
	}
	return nil
}

func (p *Pipeline) diffPatches(ctx context.Context, sess *session.Session, syn *patch.Synthesizer, report *Report, logger *slog.Logger) error {
	written, empty := 0, 0
	for _, pkg := range catalog.Packages() {
		// A package without a snapshot is reported as skipped.
		snapshot, _ := sess.SnapshotPath(pkg.Name)
		res, err := syn.TreePatch(ctx, patchPackage(pkg, p.opts.Root), snapshot)
		if err != nil {
			return err
		}
		report.Patches = append(report.Patches, res)
		switch res.Status {
		case patch.StatusWritten:
			written++
		case patch.StatusEmpty:
			empty++
		}
	}
	if written == 0 && empty > 0 {
		logger.Warn(EmptyDiffWarning)
	}
	return nil
}

func (p *Pipeline) sourcePatches(ctx context.Context, syn *patch.Synthesizer, report *Report) error {
	for _, pkg := range catalog.Packages() {
		var files []patch.SourceFile
		for _, a := range catalog.ArtifactsOf(pkg.Name) {
			path := a.Path(p.opts.Root)
			files = append(files, patch.SourceFile{
				Path:   path,
				Backup: session.BackupPath(path),
				Rel:    a.Rel,
			})
		}
		if len(files) == 0 {
			continue
		}
		res, err := syn.SourcePatch(ctx, patchPackage(pkg, p.opts.Root), files)
		if err != nil {
			return err
		}
		report.Patches = append(report.Patches, res)
	}
	return nil
}

func patchPackage(pkg catalog.Package, root string) patch.Package {
	return patch.Package{Name: pkg.Name, Dir: pkg.Dir(root), OutputDir: pkg.OutputDir}
}

// =============================================================================
// Restore
// =============================================================================

// RestoreArtifacts restores every catalog artifact under root that has a
// backup and deletes the backup.
//
// # Outputs
//
//   - []string: The restored artifact paths.
//   - error: Joined restore errors; every artifact is attempted.
func RestoreArtifacts(root string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var restored []string
	var errs []error
	for _, a := range catalog.Artifacts() {
		path := a.Path(root)
		ok, err := session.RestoreFile(path)
		if err != nil {
			logger.Error("restore failed", "artifact", path, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			logger.Info("artifact restored", "artifact", path)
			restored = append(restored, path)
		}
	}
	return restored, errors.Join(errs...)
}
