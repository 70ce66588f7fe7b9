package cli

import (
	"fmt"

	"github.com/lakekit-io/lakekit/internal/engine"
	"github.com/lakekit-io/lakekit/internal/eval"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a deployment file",
	Long: `Evaluates the deployment and checks that the declared nodes form a
valid dependency graph: no duplicate ids, no references to undeclared
nodes, no cycles.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntry(args)
	if err != nil {
		return err
	}

	fmt.Printf("Checking %s... ", entryPoint)
	evaluator := eval.NewEvaluator(wd)
	dep, err := evaluator.LoadDeployment(cmd.Context(), entryPoint, nil)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := engine.BuildDAG(dep.Nodes); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Println("OK")

	fmt.Printf("\nDeployment is valid: %d node(s).\n", len(dep.Nodes))
	return nil
}
