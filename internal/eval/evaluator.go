// Package eval turns PKL deployment files into the engine's declared graph.
package eval

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"
	"github.com/lakekit-io/lakekit/internal/ir"
)

// Evaluator handles PKL evaluation into IR types.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// LoadDeployment evaluates a deployment file and returns the declared
// graph. External properties become PKL external properties, reachable in
// the module through read("prop:...").
func (e *Evaluator) LoadDeployment(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Deployment, error) {
	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := e.newEvaluator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var dep ir.Deployment
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &dep); err != nil {
		return nil, fmt.Errorf("failed to evaluate deployment: %w", err)
	}
	if dep.Name == "" {
		dep.Name = trimPklExt(entryPoint)
	}

	return &dep, nil
}

// newEvaluator prefers a project-scoped evaluator when the project
// directory holds a PklProject, so package dependencies resolve.
func (e *Evaluator) newEvaluator(ctx context.Context, opts ...func(*pkl.EvaluatorOptions)) (pkl.Evaluator, error) {
	if e.projectDir != "" {
		if _, err := os.Stat(filepath.Join(e.projectDir, "PklProject")); err == nil {
			u, err := url.Parse("file://" + e.projectDir + "/")
			if err != nil {
				return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
			}
			return pkl.NewProjectEvaluator(ctx, u, opts...)
		}
	}
	return pkl.NewEvaluator(ctx, opts...)
}

func trimPklExt(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext == ".pkl" {
		return base[:len(base)-len(ext)]
	}
	return base
}
