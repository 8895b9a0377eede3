package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/querybridge/querybridge/internal/schema"
)

// ErrAlreadyExists is returned when registering a collector name that is taken.
var ErrAlreadyExists = errors.New("collector already exists")

// RegistrationSpec is the caller-supplied declaration of a new collector.
type RegistrationSpec struct {
	Name           string
	FilePath       string
	InputSchema    map[string]any
	OutputSchema   map[string]any
	TimeoutSeconds int
	Version        string
	Dependencies   []string
	Environment    map[string]string
}

// RegistrationResult is the stored collector plus any non-fatal warnings
// found while checking its declaration.
type RegistrationResult struct {
	Collector *Collector
	Warnings  []string
}

// acceptAnythingSchema is the permissive default derived when a collector
// declares no schema.
func acceptAnythingSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Register inspects the collector file, derives default schemas where the
// declaration omits them, checks the declared schemas, and stores the
// collector. Unresolved dependency names and schema-subset issues are
// warnings, not errors — resolution happens per chain, and runtime
// validation ignores constructs it does not understand.
func Register(ctx context.Context, store CollectorStore, spec RegistrationSpec) (*RegistrationResult, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("Register: collector name is required")
	}
	if spec.FilePath == "" {
		return nil, fmt.Errorf("Register: collector file path is required")
	}

	info, err := os.Stat(spec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("Register: collector file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("Register: %s is a directory", spec.FilePath)
	}

	existing, err := store.GetCollector(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("Register: %w: %q", ErrAlreadyExists, spec.Name)
	}

	inputSchema := spec.InputSchema
	if inputSchema == nil {
		inputSchema = acceptAnythingSchema()
	}
	outputSchema := spec.OutputSchema
	if outputSchema == nil {
		outputSchema = acceptAnythingSchema()
	}

	var warnings []string
	warnings = append(warnings, schema.CheckDeclaration(inputSchema, "inputSchema")...)
	warnings = append(warnings, schema.CheckDeclaration(outputSchema, "outputSchema")...)
	if err := schema.Compile(inputSchema); err != nil {
		warnings = append(warnings, fmt.Sprintf("inputSchema: %v", err))
	}
	if err := schema.Compile(outputSchema); err != nil {
		warnings = append(warnings, fmt.Sprintf("outputSchema: %v", err))
	}

	warnings = append(warnings, checkDependencies(ctx, store, spec)...)

	timeout := spec.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	c := &Collector{
		ID:             uuid.New().String(),
		Name:           spec.Name,
		FilePath:       spec.FilePath,
		InputSchema:    inputSchema,
		OutputSchema:   outputSchema,
		TimeoutSeconds: timeout,
		Enabled:        true,
		Version:        spec.Version,
		Dependencies:   spec.Dependencies,
		Environment:    spec.Environment,
		CreatedAt:      time.Now(),
	}

	if err := store.SaveCollector(ctx, c); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	return &RegistrationResult{Collector: c, Warnings: warnings}, nil
}

// checkDependencies flags unresolved dependency names and direct mutual
// references at registration time. This is an early-warning heuristic
// only — it sees one level of references. The authoritative cycle check is
// the resolver's depth-first traversal at chain execution time.
func checkDependencies(ctx context.Context, store CollectorStore, spec RegistrationSpec) []string {
	var warnings []string
	for _, depName := range spec.Dependencies {
		if depName == spec.Name {
			warnings = append(warnings, fmt.Sprintf("dependencies: %q depends on itself", spec.Name))
			continue
		}
		dep, err := store.GetCollector(ctx, depName)
		if err != nil || dep == nil {
			warnings = append(warnings, fmt.Sprintf("dependencies: %q is not registered", depName))
			continue
		}
		for _, back := range dep.Dependencies {
			if back == spec.Name {
				warnings = append(warnings, fmt.Sprintf("dependencies: circular reference between %q and %q", spec.Name, depName))
			}
		}
	}
	return warnings
}
