package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sghaida/strictdi/di"
	"github.com/sghaida/strictdi/examples"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [tx-id...]",
	Short: "Evaluate transactions and print one decision per line",
	Long: `Evaluate runs each transaction through the risk pipeline inside its
own scope: fetch, score (cached), decide, persist. A failing transaction is
reported on its line and the command exits non-zero after finishing the batch.

Examples:
  riskeval evaluate tx-1
  riskeval evaluate tx-1 tx-2 tx-3
  riskeval evaluate --blocked-country US tx-3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildContainer(cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		return runEvaluate(cmd.Context(), cmd.OutOrStdout(), c, args)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

// runEvaluate evaluates every transaction in its own scope and writes one
// line per decision. Per-transaction failures do not stop the batch; they
// are printed in place and returned joined.
func runEvaluate(ctx context.Context, out io.Writer, c *di.Container, txIDs []string) error {
	var errs []error
	for _, id := range txIDs {
		scope, sctx := c.BeginScope(ctx)
		svc, err := di.ResolveFromContext[*examples.DecisionService](sctx)
		if err == nil {
			var decision examples.Decision
			if decision, err = svc.Evaluate(id); err == nil {
				fmt.Fprintf(out, "%s\t%s\n", id, decision)
			}
		}
		if err != nil {
			fmt.Fprintf(out, "%s\tERROR\t%v\n", id, err)
			errs = append(errs, err)
		}
		if cerr := scope.Close(); cerr != nil {
			errs = append(errs, cerr)
		}
	}
	return errors.Join(errs...)
}
