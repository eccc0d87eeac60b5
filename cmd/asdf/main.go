// Package main provides the CLI entry point for asdf, a tool that opens,
// validates, and dumps Advanced Scientific Data Format files.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.asdf.sh/asdf"
	"go.asdf.sh/asdf/asdfcli"
	"go.asdf.sh/asdf/log"
	"go.asdf.sh/asdf/tree"
)

func main() {
	engineCfg := asdfcli.NewConfig()
	logCfg := log.NewConfig()

	rootCmd := &cobra.Command{
		Use:   "asdf",
		Short: "Open, validate, and inspect Advanced Scientific Data Format files",
		Long: `asdf opens ASDF files, validates their tree against the schemas their tags
declare, and dumps the decoded tree as JSON for inspection.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	engineCfg.RegisterFlags(rootCmd.PersistentFlags())
	logCfg.RegisterFlags(rootCmd.PersistentFlags())

	if err := engineCfg.RegisterCompletions(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "register completions: %v\n", err)
	}

	if err := logCfg.RegisterCompletions(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "register completions: %v\n", err)
	}

	rootCmd.AddCommand(
		newValidateCmd(engineCfg, logCfg),
		newDumpCmd(engineCfg, logCfg),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newValidateCmd(engineCfg *asdfcli.Config, logCfg *log.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.asdf>",
		Short: "Validate an ASDF file's tree against its tag schemas",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logger, err := newLogger(logCfg)
			if err != nil {
				return err
			}

			ff, err := openFacade(engineCfg, logger, args[0])
			if err != nil {
				return err
			}
			defer ff.Close()

			if err := ff.Validate(); err != nil {
				return err
			}

			for _, d := range ff.Diagnostics() {
				logger.Warn(d.Error())
			}

			fmt.Fprintf(os.Stdout, "%s: valid\n", args[0])

			return nil
		},
	}
}

func newDumpCmd(engineCfg *asdfcli.Config, logCfg *log.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "dump <file.asdf>",
		Short: "Dump an ASDF file's decoded tree as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logger, err := newLogger(logCfg)
			if err != nil {
				return err
			}

			ff, err := openFacade(engineCfg, logger, args[0])
			if err != nil {
				return err
			}
			defer ff.Close()

			out, err := json.MarshalIndent(jsonable(ff.Tree), "", "  ")
			if err != nil {
				return fmt.Errorf("encoding tree as JSON: %w", err)
			}

			out = append(out, '\n')

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(out)
			} else {
				err = os.WriteFile(output, out, 0o644)
			}

			if err != nil {
				return fmt.Errorf("writing output: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path (- for stdout)")

	return cmd
}

func newLogger(cfg *log.Config) (*slog.Logger, error) {
	handler, err := cfg.NewHandler(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	return slog.New(handler), nil
}

func openFacade(engineCfg *asdfcli.Config, logger *slog.Logger, path string) (*asdf.FileFacade, error) {
	cfg, err := engineCfg.NewEngineConfig()
	if err != nil {
		return nil, err
	}

	return asdf.Open(path, asdf.WithFacadeConfig(cfg), asdf.WithLogger(logger))
}

// jsonable converts a tree.Codec-decoded value into plain maps/slices that
// encoding/json can marshal directly: tree.Mapping becomes an ordinary map,
// so its key order is not kept (encoding/json writes the keys sorted),
// tree.Sequence becomes a slice, and tree.Tagged unwraps to its
// underlying value tagged with its URI.
func jsonable(v any) any {
	switch val := v.(type) {
	case *tree.Mapping:
		out := make(map[string]any, val.Len())
		val.Range(func(key string, value any) bool {
			out[key] = jsonable(value)
			return true
		})

		return out
	case tree.Sequence:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = jsonable(elem)
		}

		return out
	case *tree.Tagged:
		return map[string]any{
			"tag":   val.TagURI,
			"value": jsonable(val.Value),
		}
	default:
		return val
	}
}
