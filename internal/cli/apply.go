package cli

import (
	"fmt"

	"github.com/lakekit-io/lakekit/internal/engine"
	"github.com/lakekit-io/lakekit/internal/eval"
	"github.com/lakekit-io/lakekit/internal/registry"
	"github.com/spf13/cobra"
)

var (
	applyAutoApprove bool
	applyProperties  map[string]string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Converge a deployment to its declared state",
	Long: `Evaluates the deployment, compares every node against its apply record,
and invokes handlers for the nodes that changed. Unchanged nodes are
skipped without a handler call.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval before applying")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runApply(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntry(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)

	fmt.Print("Loading deployment... ")
	dep, err := evaluator.LoadDeployment(ctx, entryPoint, applyProperties)
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

	eng := engine.New(reg, st)

	changes, err := eng.Plan(ctx, dep)
	if err != nil {
		return err
	}

	creates, updates := countChanges(changes)
	if creates+updates == 0 {
		fmt.Println("No changes. Deployment is up to date.")
		return nil
	}

	fmt.Println("\nLakekit will perform the following actions:")
	renderChanges(changes)
	fmt.Printf("\nPlan: %d to create, %d to update.\n", creates, updates)

	if !applyAutoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Println()
	report, err := eng.ApplyWithCallback(ctx, dep, progressPrinter)
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	renderReport(report)

	if len(report.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for id, out := range report.Outputs {
			fmt.Printf("  %s = %s\n", id, out.PhysicalID)
		}
	}

	if report.Failed() {
		return fmt.Errorf("apply finished with failures; re-run to retry failed nodes")
	}
	fmt.Println("\nApply complete!")
	return nil
}
