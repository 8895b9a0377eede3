// qbridge is the operator CLI: it runs collectors and chains directly,
// without the API server, against an in-memory catalog.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/querybridge/querybridge/internal/catalog"
	"github.com/querybridge/querybridge/internal/executor"
	"github.com/querybridge/querybridge/internal/graph"
	"github.com/querybridge/querybridge/internal/procrun"
	"github.com/querybridge/querybridge/internal/schema"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "qbridge",
		Short:         "Run data collectors and collector chains locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newChainCmd(), newValidateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		inputJSON string
		timeoutMs int
	)

	cmd := &cobra.Command{
		Use:   "run <collector-file>",
		Short: "Execute a single collector file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := decodeInput(inputJSON)
			if err != nil {
				return err
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			collector := &catalog.Collector{
				Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				FilePath: path,
				Enabled:  true,
			}

			logger := zap.NewNop()
			exec := executor.New(nil, procrun.NewExecRunner(logger), logger)
			result := exec.Execute(cmd.Context(), collector, input, executor.Options{TimeoutMs: timeoutMs})

			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("collector failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "{}", "JSON input payload")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "timeout override in milliseconds")
	return cmd
}

// chainManifest declares the collectors of a local chain run.
type chainManifest struct {
	Collectors []struct {
		Name           string            `json:"name"`
		FilePath       string            `json:"filePath"`
		InputSchema    map[string]any    `json:"inputSchema"`
		OutputSchema   map[string]any    `json:"outputSchema"`
		TimeoutSeconds int               `json:"timeoutSeconds"`
		Dependencies   []string          `json:"dependencies"`
		Environment    map[string]string `json:"environment"`
	} `json:"collectors"`
}

func newChainCmd() *cobra.Command {
	var inputJSON string

	cmd := &cobra.Command{
		Use:   "chain <manifest.json>",
		Short: "Execute a collector chain described by a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var manifest chainManifest
			if err := json.Unmarshal(raw, &manifest); err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}
			if len(manifest.Collectors) == 0 {
				return fmt.Errorf("manifest declares no collectors")
			}

			collectors := make([]*catalog.Collector, 0, len(manifest.Collectors))
			for _, m := range manifest.Collectors {
				path, err := filepath.Abs(m.FilePath)
				if err != nil {
					return err
				}
				collectors = append(collectors, &catalog.Collector{
					Name:           m.Name,
					FilePath:       path,
					InputSchema:    m.InputSchema,
					OutputSchema:   m.OutputSchema,
					TimeoutSeconds: m.TimeoutSeconds,
					Dependencies:   m.Dependencies,
					Environment:    m.Environment,
					Enabled:        true,
				})
			}

			// A manifest chain must be self-contained: there is no catalog
			// behind it to satisfy dependencies externally.
			if missing := graph.UnresolvedDependencies(collectors); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for name, deps := range missing {
					names = append(names, fmt.Sprintf("%s -> %s", name, strings.Join(deps, ", ")))
				}
				sort.Strings(names)
				return fmt.Errorf("manifest has unresolved dependencies: %s", strings.Join(names, "; "))
			}

			input, err := decodeInput(inputJSON)
			if err != nil {
				return err
			}

			logger := zap.NewNop()
			exec := executor.New(nil, procrun.NewExecRunner(logger), logger)
			chain, err := exec.ExecuteChain(cmd.Context(), collectors, input, executor.Options{})
			if err != nil {
				return err
			}

			if err := printJSON(cmd, chain); err != nil {
				return err
			}
			if !chain.Success {
				return fmt.Errorf("chain failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "{}", "shared JSON input payload")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema.json> <value.json>",
		Short: "Validate a JSON value against a collector schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaRaw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var schemaDoc map[string]any
			if err := json.Unmarshal(schemaRaw, &schemaDoc); err != nil {
				return fmt.Errorf("parse schema: %w", err)
			}

			valueRaw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var value any
			if err := json.Unmarshal(valueRaw, &value); err != nil {
				return fmt.Errorf("parse value: %w", err)
			}

			result := schema.Validate(schemaDoc, value, "value")
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}
}

func decodeInput(raw string) (any, error) {
	var input any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("parse --input: %w", err)
	}
	return input, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
