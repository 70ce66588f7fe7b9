package cli

import (
	"fmt"

	"github.com/lakekit-io/lakekit/internal/engine"
	"github.com/lakekit-io/lakekit/internal/eval"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the node dependency graph in
Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  lakekit graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveEntry(args)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(wd)
	dep, err := evaluator.LoadDeployment(cmd.Context(), entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load deployment: %w", err)
	}

	dag, err := engine.BuildDAG(dep.Nodes)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Print(dag.DOT())
	return nil
}
