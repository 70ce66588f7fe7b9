package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/spf13/cobra"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [node-id]",
	Short: "Show recorded node outputs",
	Long: `Reads physical ids and outputs from the apply records.

If no node id is given, all recorded nodes are displayed. If a node id is
given, only that node's outputs are printed.`,
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
}

func runOutput(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	st, err := openStore(wd)
	if err != nil {
		return err
	}

	records, err := st.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}

	if len(args) > 0 {
		id := args[0]
		rec, ok := records[id]
		if !ok {
			return fmt.Errorf("no record for node %q", id)
		}
		return printOutput(&ir.NodeOutput{PhysicalID: rec.PhysicalID, Outputs: rec.Outputs})
	}

	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	all := make(map[string]*ir.NodeOutput, len(records))
	for id, rec := range records {
		all[id] = &ir.NodeOutput{PhysicalID: rec.PhysicalID, Outputs: rec.Outputs}
	}

	if outputJSON {
		data, _ := json.MarshalIndent(all, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	for id, out := range all {
		fmt.Printf("%s = %s\n", id, out.PhysicalID)
		for k, v := range out.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}
	return nil
}

func printOutput(out *ir.NodeOutput) error {
	if outputJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(out.PhysicalID)
	for k, v := range out.Outputs {
		fmt.Printf("  %s = %v\n", k, v)
	}
	return nil
}
