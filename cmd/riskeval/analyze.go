package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sghaida/strictdi/di"
)

var analyzeStrict bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Verify the wiring and report diagnostic findings",
	Long: `Analyze builds the container, verifies every registration by
instantiating it once in a throwaway scope, then prints what the diagnostic
pass flags. With --strict, findings fail the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildContainer(cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		return runAnalyze(cmd.Context(), cmd.OutOrStdout(), c, analyzeStrict)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeStrict, "strict", false,
		"fail when the analyzer reports findings")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(ctx context.Context, out io.Writer, c *di.Container, strict bool) error {
	var opts []di.VerifyOption
	if strict {
		opts = append(opts, di.FailOnFindings())
	}
	if err := c.Verify(ctx, opts...); err != nil {
		return err
	}

	findings := c.Analyze()
	if len(findings) == 0 {
		fmt.Fprintf(out, "wiring ok: %d registrations, no findings\n", len(c.Keys()))
		return nil
	}
	for _, f := range findings {
		fmt.Fprintln(out, f)
	}
	return nil
}
