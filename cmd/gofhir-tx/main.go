// Package main implements the gofhir-tx CLI tool, a command-line front end
// for the terminology engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gofhir/terminology/engine"
	"github.com/gofhir/terminology/internal/config"
	"github.com/gofhir/terminology/loader"
	"github.com/gofhir/terminology/packages"
	"github.com/gofhir/terminology/pkg/logger"
)

const version = "0.1.0"

// errNegative marks a command that ran but answered "no" (an invalid code,
// no translation). It only sets the exit status.
var errNegative = errors.New("negative result")

type app struct {
	v       *viper.Viper
	cfgFile string

	cfg *config.Config
	log *logger.Logger
	eng *engine.Engine
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNegative) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "gofhir-tx",
		Short:         "FHIR terminology operations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	f.StringSlice("tx", nil, `terminology files or directories to load ("-" reads a Bundle from stdin)`)
	f.StringSlice("package", nil, "FHIR packages to load (name#version)")
	f.Bool("core", false, "load the HL7 terminology package for --fhir-version")
	f.Bool("builtin", true, "load the built-in code systems")
	f.String("fhir-version", "R4", "FHIR version (R4, R4B, R5 or 4.0.1, 4.3.0, 5.0.0)")
	f.StringP("output", "o", "text", "output format: text, json")
	f.String("log-level", "warn", "log level: debug, info, warn, error, none")
	f.Bool("strict-display", true, "treat a wrong display as an invalid code")
	f.Int("workers", 0, "number of parallel workers (0 = number of CPUs)")

	for key, flag := range map[string]string{
		"PATHS":          "tx",
		"PACKAGES":       "package",
		"CORE_PACKAGE":   "core",
		"BUILTIN":        "builtin",
		"FHIR_VERSION":   "fhir-version",
		"OUTPUT":         "output",
		"LOG_LEVEL":      "log-level",
		"STRICT_DISPLAY": "strict-display",
		"WORKERS":        "workers",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}

	root.AddCommand(
		expandCmd(a),
		validateCodeCmd(a),
		lookupCmd(a),
		subsumesCmd(a),
		translateCmd(a),
		closureCmd(a),
		checkBindingCmd(a),
		inspectCmd(a),
		statsCmd(a),
	)
	return root
}

func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Logger(cmd.ErrOrStderr())
	return nil
}

// engine builds the engine and loads the configured content on first use.
func (a *app) engine(cmd *cobra.Command) (*engine.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}
	ctx := cmd.Context()

	eng, err := engine.New(a.cfg.Options(a.log)...)
	if err != nil {
		return nil, err
	}
	eng.SetPackageClient(packages.NewClient(a.cfg.PackageOptions(a.log)...))

	if a.cfg.Builtin {
		if _, err := eng.LoadBuiltins(); err != nil {
			return nil, err
		}
	}
	if a.cfg.CorePackage {
		stats, err := eng.LoadCorePackage(ctx, a.cfg.Version())
		if err != nil {
			return nil, fmt.Errorf("load core terminology: %w", err)
		}
		a.logStats("core", stats)
	}
	for _, ref := range a.cfg.Packages {
		stats, err := eng.LoadPackage(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load package %s: %w", ref, err)
		}
		a.logStats(ref, stats)
	}
	for _, p := range a.cfg.TxPaths {
		stats, err := a.loadPath(cmd, eng, p)
		if err != nil {
			return nil, err
		}
		a.logStats(p, stats)
	}

	a.eng = eng
	return eng, nil
}

func (a *app) loadPath(cmd *cobra.Command, eng *engine.Engine, p string) (*loader.LoadStats, error) {
	if p == "-" {
		stats, err := eng.Loader().LoadReader(cmd.Context(), cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("load stdin: %w", err)
		}
		return stats, nil
	}
	return eng.Loader().LoadPath(cmd.Context(), p)
}

func (a *app) logStats(source string, s *loader.LoadStats) {
	a.log.Info("%s: %d code systems, %d value sets, %d concept maps (%d skipped, %d errors)",
		source, s.CodeSystems, s.ValueSets, s.ConceptMaps, s.Skipped, s.Errors)
}

func (a *app) jsonOutput() bool {
	return a.cfg.Output == "json"
}

func (a *app) out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
