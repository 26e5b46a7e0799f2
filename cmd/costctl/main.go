// Command costctl costs an exported lineage file offline, without the server
// or its databases.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/farmtrace/internal/domain/allocation"
	"github.com/mamadbah2/farmtrace/internal/domain/models"
	"github.com/mamadbah2/farmtrace/internal/repository/filestore"
	"github.com/mamadbah2/farmtrace/internal/service/reporting"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "costctl",
		Short:        "Batch traceability costing tools",
		SilenceUsage: true,
	}
	root.AddCommand(newComputeCmd())
	return root
}

type computeFlags struct {
	tree      string
	templates string
	ledger    string
	strategy  string
	asJSON    bool
}

func newComputeCmd() *cobra.Command {
	var flags computeFlags

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute the cost per kg of every stage of a lineage file",
		Example: "  costctl compute --tree lineage.yaml --templates stages.yaml\n" +
			"  costctl compute --tree lineage.json --templates stages.yaml --ledger ledger.json --strategy sum --json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompute(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.tree, "tree", "", "lineage file (JSON or YAML)")
	cmd.Flags().StringVar(&flags.templates, "templates", "", "stage templates file (JSON or YAML)")
	cmd.Flags().StringVar(&flags.ledger, "ledger", "", "cost ledger file, node id to cost entry")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "first", "quantity field selection: first or sum")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("tree")
	_ = cmd.MarkFlagRequired("templates")

	return cmd
}

func runCompute(cmd *cobra.Command, flags computeFlags) error {
	selection, err := allocation.ParseFieldSelection(flags.strategy)
	if err != nil {
		return err
	}

	root, err := filestore.LoadLineage(flags.tree)
	if err != nil {
		return err
	}

	templates, err := filestore.LoadStageTemplates(flags.templates)
	if err != nil {
		return err
	}

	ledger := models.CostLedger{}
	if flags.ledger != "" {
		if ledger, err = filestore.LoadLedger(flags.ledger); err != nil {
			return err
		}
	}

	engine := allocation.New(allocation.WithFieldSelection(selection))
	report := reporting.BuildReport(root, engine.Compute(root, ledger, templates), time.Now())

	out := cmd.OutOrStdout()
	if flags.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	_, err = fmt.Fprintln(out, reporting.RenderTree(report))
	return err
}
