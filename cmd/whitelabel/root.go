// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/whitelabel/internal/command"
	"github.com/AleutianAI/whitelabel/internal/patch"
	"github.com/AleutianAI/whitelabel/internal/pipeline"
	"github.com/AleutianAI/whitelabel/internal/prompt"
	"github.com/AleutianAI/whitelabel/pkg/logging"
	"github.com/AleutianAI/whitelabel/pkg/telemetry"
	"github.com/AleutianAI/whitelabel/pkg/ux"
)

// flags holds the persistent flags of the root command.
type flags struct {
	configPath     string
	root           string
	outputDir      string
	dryRun         bool
	sourcePatch    bool
	quiet          bool
	verbose        bool
	yes            bool
	nonInteractive bool
	buildCmd       string
	skipBuild      bool
	defaultScope   string
	defaultVersion string
	buildTimeout   time.Duration
	diffTimeout    time.Duration
	logLevel       string
	logDir         string
	jsonLogs       bool
	traceExporter  string
	metricsFile    string
	plain          bool
}

// app is the CLI's process state. Tests replace the streams and
// collaborators.
type app struct {
	flags flags

	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	// deps overrides the pipeline's builder and differ.
	deps pipeline.Deps

	// newPrompter builds the restore prompter once logging is set up.
	newPrompter func(logger *slog.Logger) prompt.UserPrompter

	logger *logging.Logger
	tel    *telemetry.Provider
}

func newApp() *app {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.newPrompter = func(logger *slog.Logger) prompt.UserPrompter {
		out, _ := a.stdout.(*os.File)
		return prompt.New(prompt.Options{
			Yes:            a.flags.yes,
			NonInteractive: a.flags.nonInteractive,
			In:             a.stdin,
			Out:            out,
			Logger:         logger,
		})
	}
	return a
}

// execute runs the command tree for args and returns the exit code.
func execute(ctx context.Context, a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && !reported(err) {
		a.printer().Error(err.Error())
	}
	a.teardown(ctx)
	return exitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whitelabel",
		Short: "Inject a custom chain into the SDK monorepo and generate patches",
		Long: `whitelabel adds a chain described by a configuration document to the
SDK sources, rebuilds the packages, and writes one patch per package that
reproduces the change in an installed dependency.

Running whitelabel without a subcommand runs the build.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: a.setup,
		RunE:              a.runBuild,
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return userError(err)
	})
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	f := &a.flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", pipeline.DefaultConfigFile, "Configuration document (JSON or YAML)")
	pf.StringVar(&f.root, "root", ".", "Monorepo root")
	pf.StringVarP(&f.outputDir, "output-dir", "o", pipeline.DefaultOutputDir, "Directory that receives the patch files")
	pf.BoolVar(&f.dryRun, "dry-run", false, "Preview every change without writing anything")
	pf.BoolVar(&f.sourcePatch, "source-patch", false, "Also write source patches")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "Only log warnings and errors, hide build output")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Log debug messages")
	pf.BoolVarP(&f.yes, "yes", "y", false, "Restore the original files without asking")
	pf.BoolVar(&f.nonInteractive, "non-interactive", false, "Never prompt; keep the modified files")
	pf.StringVar(&f.buildCmd, "build-cmd", command.DefaultBuildCommand, "Command that builds every package")
	pf.BoolVar(&f.skipBuild, "skip-build", false, "Use the build output on disk and do not rebuild")
	pf.StringVar(&f.defaultScope, "default-scope", patch.DefaultScope, "Scope of packages without a manifest")
	pf.StringVar(&f.defaultVersion, "default-version", patch.DefaultVersion, "Version of packages without a manifest")
	pf.DurationVar(&f.buildTimeout, "build-timeout", command.DefaultBuildTimeout, "Timeout of each build")
	pf.DurationVar(&f.diffTimeout, "diff-timeout", command.DefaultDiffTimeout, "Timeout of each diff")
	pf.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&f.logDir, "log-dir", "", "Also write JSON logs to this directory")
	pf.BoolVar(&f.jsonLogs, "json-logs", false, "Write console logs as JSON")
	pf.StringVar(&f.traceExporter, "trace-exporter", "", "Trace exporter: otlp, stdout or none (default $OTEL_TRACES_EXPORTER or none)")
	pf.StringVar(&f.metricsFile, "metrics-file", "", "Write prometheus metrics to this file at exit")
	pf.BoolVar(&f.plain, "plain", false, "Plain output without colors")

	rootCmd.AddCommand(
		newBuildCmd(a),
		newRestoreCmd(a),
		newValidateCmd(a),
		newCleanCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// setup initializes logging and telemetry before any command runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	f := a.flags
	if f.yes && f.nonInteractive {
		return userError(fmt.Errorf("--yes and --non-interactive are mutually exclusive"))
	}

	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		return userError(fmt.Errorf("--log-level: %w", err))
	}
	if f.verbose {
		level = logging.LevelDebug
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  f.logDir,
		Service: "whitelabel",
		JSON:    f.jsonLogs,
		Quiet:   f.quiet,
		Output:  a.stderr,
	})
	if path := a.logger.FilePath(); path != "" {
		a.slog().Debug("writing log file", "path", path)
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Output = a.stderr
	if f.traceExporter != "" {
		tcfg.TraceExporter = f.traceExporter
	}
	if f.metricsFile != "" {
		tcfg.MetricExporter = "prometheus"
	}
	tel, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return userError(fmt.Errorf("telemetry: %w", err))
	}
	a.tel = tel
	return nil
}

// teardown writes the metrics file, flushes telemetry and closes the log
// file. It runs after every command, failed ones included.
func (a *app) teardown(ctx context.Context) {
	if a.tel != nil {
		if a.flags.metricsFile != "" {
			if werr := a.tel.WriteMetrics(a.flags.metricsFile); werr != nil {
				a.slog().Warn("failed to write metrics", "path", a.flags.metricsFile, "error", werr)
			}
		}
		if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.slog().Warn("telemetry shutdown failed", "error", err)
		}
		a.tel = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			fmt.Fprintf(a.stderr, "warning: %v\n", err)
		}
		a.logger = nil
	}
}

func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

func (a *app) printer() *ux.Printer {
	out, _ := a.stdout.(*os.File)
	return ux.NewPrinter(a.stdout, a.stderr, ux.DetectMode(out, a.flags.plain))
}

// rootDir returns the absolute monorepo root.
func (a *app) rootDir() (string, error) {
	root, err := filepath.Abs(a.flags.root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return root, nil
}

// options maps the flags onto pipeline options. Explicitly set --config
// and --output-dir are resolved against the working directory; defaults
// live under the root.
func (a *app) options(cmd *cobra.Command) (pipeline.Options, error) {
	root, err := a.rootDir()
	if err != nil {
		return pipeline.Options{}, err
	}
	f := a.flags
	opts := pipeline.DefaultOptions(root)
	opts.ConfigPath = f.configPath
	opts.OutputDir = f.outputDir
	for name, target := range map[string]*string{"config": &opts.ConfigPath, "output-dir": &opts.OutputDir} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		abs, err := filepath.Abs(*target)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("resolve --%s: %w", name, err)
		}
		*target = abs
	}
	opts.BuildCommand = f.buildCmd
	opts.BuildTimeout = f.buildTimeout
	opts.DiffTimeout = f.diffTimeout
	opts.DryRun = f.dryRun
	opts.SourcePatch = f.sourcePatch
	opts.SkipBuild = f.skipBuild
	opts.DefaultScope = f.defaultScope
	opts.DefaultVersion = f.defaultVersion
	opts.Logger = a.slog()
	if !f.quiet {
		opts.BuildOutput = a.stderr
	}
	return opts, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "whitelabel %s\n", version)
		},
	}
}
