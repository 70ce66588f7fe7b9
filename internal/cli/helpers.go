package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lakekit-io/lakekit/internal/engine"
	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/lakekit-io/lakekit/internal/registry"
	"github.com/lakekit-io/lakekit/internal/store"
)

// resolveEntry turns an optional path argument into a project directory and
// a deployment entry point. No argument means main.pkl in the working
// directory.
func resolveEntry(args []string) (wd, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}

		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// openStore creates the record store selected by the global flags.
func openStore(wd string) (store.Store, error) {
	path := recordsPath
	if path == "" {
		path = filepath.Join(wd, ".lakekit", "records.json")
	}
	return store.New(&store.Config{
		Type:   storeType,
		Path:   path,
		Config: storeConfig,
	})
}

// loadRequiredHandlers loads every handler referenced by a declared node.
func loadRequiredHandlers(reg *registry.Registry, dep *ir.Deployment) error {
	seen := make(map[string]bool)
	for _, n := range dep.Nodes {
		if n.Handler != "" && !seen[n.Handler] {
			seen[n.Handler] = true
			if err := reg.Load(n.Handler); err != nil {
				return fmt.Errorf("failed to load handler %s: %w", n.Handler, err)
			}
		}
	}
	return nil
}

// progressPrinter renders apply events as they happen.
func progressPrinter(event engine.ApplyEvent) {
	switch event.Status {
	case "started":
		fmt.Printf("%s: %s...\n", event.NodeID, presentTense(event.Action))
	case "completed":
		fmt.Printf("%s: %s complete (%s)\n", event.NodeID, event.Action, event.Duration.Round(time.Millisecond))
	case "failed":
		fmt.Printf("%s: %s FAILED: %v\n", event.NodeID, event.Action, event.Error)
	case "skipped":
		fmt.Printf("%s: up to date\n", event.NodeID)
	case "blocked":
		fmt.Printf("%s: blocked\n", event.NodeID)
	}
}

func presentTense(action string) string {
	switch action {
	case "create":
		return "creating"
	case "update":
		return "updating"
	case "delete":
		return "deleting"
	}
	return action
}

// renderChanges prints a planned change list.
func renderChanges(changes []*engine.PlannedChange) {
	for _, c := range changes {
		symbol, color := "~", "\033[33m"
		switch c.Action {
		case "create":
			symbol, color = "+", "\033[32m"
		case "noop":
			symbol, color = " ", "\033[0m"
		}
		fmt.Printf("%s  %s %s (%s)\033[0m", color, symbol, c.NodeID, c.Kind)
		if c.Details != "" {
			fmt.Printf("  # %s", c.Details)
		}
		fmt.Println()
	}
}

// countChanges returns how many planned changes actually do something.
func countChanges(changes []*engine.PlannedChange) (creates, updates int) {
	for _, c := range changes {
		switch c.Action {
		case "create":
			creates++
		case "update":
			updates++
		}
	}
	return creates, updates
}

// renderReport prints the final per-node summary of a run.
func renderReport(report *ir.RunReport) {
	var applied, upToDate, deleted, failed, blocked int
	for _, res := range report.Results {
		switch res.Status {
		case ir.StatusApplied:
			applied++
		case ir.StatusUpToDate:
			upToDate++
		case ir.StatusDeleted:
			deleted++
		case ir.StatusFailed:
			failed++
			fmt.Printf("\n\033[31mFailed: %s: %s\033[0m\n", res.ID, res.Reason)
		case ir.StatusBlocked:
			blocked++
		}
	}

	fmt.Println("\nSummary:")
	if applied > 0 {
		fmt.Printf("  Applied:    %d\n", applied)
	}
	if upToDate > 0 {
		fmt.Printf("  Up to date: %d\n", upToDate)
	}
	if deleted > 0 {
		fmt.Printf("  Deleted:    %d\n", deleted)
	}
	if failed > 0 {
		fmt.Printf("  Failed:     %d\n", failed)
	}
	if blocked > 0 {
		fmt.Printf("  Blocked:    %d\n", blocked)
	}
}
