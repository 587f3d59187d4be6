package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vhavlena/schemagraph/pkg/config"
	"github.com/vhavlena/schemagraph/pkg/generator"
	"github.com/vhavlena/schemagraph/pkg/model"
	"github.com/vhavlena/schemagraph/pkg/source"
)

type options struct {
	openAPI    string
	configFile string
	verbosity  int
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "schemagraph",
		Short:        "Compile JSON-Schema documents into validated property graphs",
		SilenceUsage: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.AddCommand(newCompileCommand())
	return cmd
}

func newCompileCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "compile [directory]",
		Short: "Compile every schema of a directory or an OpenAPI v3 document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.OutOrStdout(), opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.openAPI, "openapi", "", "OpenAPI v3 document whose components.schemas are compiled")
	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "YAML or JSON generator configuration")
	cmd.Flags().CountVarP(&opts.verbosity, "verbose", "v", "Increase log verbosity")
	return cmd
}

func newLogger(verbosity int) (logr.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zc.DisableStacktrace = true
	z, err := zc.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(z), nil
}

func loadConfig(file string) (config.Config, error) {
	if file == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return config.FromFile(data)
}

func runCompile(out io.Writer, opts *options, args []string) error {
	log, err := newLogger(opts.verbosity)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}

	loader := source.NewLoader(log)
	var provider source.Provider
	switch {
	case opts.openAPI != "":
		provider, err = source.NewOpenAPIProvider(opts.openAPI, loader)
		if err != nil {
			return err
		}
	case len(args) == 1:
		provider = source.NewDirectoryProvider(args[0], loader)
	default:
		return fmt.Errorf("either a directory or --openapi is required")
	}

	reg := metrics.NewRegistry()
	gen := generator.New(cfg, generator.WithLogger(log), generator.WithLoader(loader), generator.WithMetrics(reg))
	res, err := gen.Generate(provider)
	if err != nil {
		return err
	}
	printSummary(out, res, reg)
	return nil
}

func printSummary(out io.Writer, res *generator.Result, reg metrics.Registry) {
	for _, s := range generator.Models(res.Schemas...) {
		fmt.Fprintf(out, "%s (%s)\n", s.ClassName(), s.Source().File())
		for _, ref := range s.Properties() {
			p := ref.Property()
			fmt.Fprintf(out, "  %s: %s%s\n", ref.Name(), p.TypeHint().String(), flags(p))
		}
		for i, v := range s.BaseValidators() {
			fmt.Fprintf(out, "  validator %d: %s %s\n", i, v.Kind(), v.ErrorKind())
		}
		for _, m := range s.Methods() {
			fmt.Fprintf(out, "  method %s\n", m.Name)
		}
		for _, h := range s.Hooks() {
			fmt.Fprintf(out, "  hook %s %s -> %v\n", h.Kind, h.Property, h.Calls)
		}
	}

	counters := map[string]int64{}
	reg.Each(func(name string, metric any) {
		if c, ok := metric.(metrics.Counter); ok {
			counters[name] = c.Count()
		}
	})
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s=%d\n", name, counters[name])
	}
}

func flags(p *model.Property) string {
	var f string
	if p.IsRequired() {
		f += " required"
	}
	if p.IsReadOnly() {
		f += " readOnly"
	}
	return f
}
