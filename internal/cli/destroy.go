package cli

import (
	"fmt"

	"github.com/lakekit-io/lakekit/internal/engine"
	"github.com/lakekit-io/lakekit/internal/eval"
	"github.com/lakekit-io/lakekit/internal/registry"
	"github.com/spf13/cobra"
)

var (
	destroyAutoApprove bool
	destroyProperties  map[string]string
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Delete all recorded nodes of a deployment",
	Long: `Deletes every node with an apply record, in reverse dependency order.

This command is the inverse of 'lakekit apply'. A node whose delete fails
stops teardown of the nodes it depends on; re-run after fixing the cause.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.Flags().StringToStringVarP(&destroyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntry(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)

	fmt.Print("Loading deployment... ")
	dep, err := evaluator.LoadDeployment(ctx, entryPoint, destroyProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load deployment: %w", err)
	}
	fmt.Println("OK")

	reg := registry.New()
	if err := loadRequiredHandlers(reg, dep); err != nil {
		return err
	}

	st, err := openStore(wd)
	if err != nil {
		return err
	}
	if err := st.Lock(); err != nil {
		return err
	}
	defer st.Unlock()

	records, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("Nothing to destroy: no apply records found.")
		return nil
	}

	fmt.Printf("\nLakekit will delete %d node(s):\n", len(records))
	for _, n := range dep.Nodes {
		if _, ok := records[n.ID]; ok {
			fmt.Printf("\033[31m  - %s (%s)\033[0m\n", n.ID, n.Kind)
		}
	}

	if !destroyAutoApprove {
		fmt.Print("\nDo you really want to destroy these nodes? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Println()
	eng := engine.New(reg, st)
	report, err := eng.DestroyWithCallback(ctx, dep, progressPrinter)
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	renderReport(report)

	if report.Failed() {
		return fmt.Errorf("destroy finished with failures; re-run to retry")
	}
	fmt.Println("\nDestroy complete!")
	return nil
}
