package cli

import (
	"fmt"

	"github.com/lakekit-io/lakekit/internal/engine"
	"github.com/lakekit-io/lakekit/internal/eval"
	"github.com/lakekit-io/lakekit/internal/registry"
	"github.com/spf13/cobra"
)

var planProperties map[string]string

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show what an apply would do",
	Long: `Compares every declared node against its apply record and prints the
actions an apply would take. No handler is invoked.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntry(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	dep, err := evaluator.LoadDeployment(ctx, entryPoint, planProperties)
	if err != nil {
		return fmt.Errorf("failed to load deployment: %w", err)
	}

	st, err := openStore(wd)
	if err != nil {
		return err
	}

	eng := engine.New(registry.New(), st)
	changes, err := eng.Plan(ctx, dep)
	if err != nil {
		return err
	}

	creates, updates := countChanges(changes)
	if creates+updates == 0 {
		fmt.Println("No changes. Deployment is up to date.")
		return nil
	}

	renderChanges(changes)
	fmt.Printf("\nPlan: %d to create, %d to update.\n", creates, updates)
	return nil
}
