// Package decompose turns a question into a validated sub-task DAG and
// schedules each node as a nested deliberation, respecting dependencies.
package decompose

import (
	"encoding/json"
	"fmt"
)

// MaxSubtasksDefault is the default cap on decomposition size.
const MaxSubtasksDefault = 7

// MinSubtasks is the smallest decomposition worth scheduling; below it the
// caller runs a plain consensus instead.
const MinSubtasks = 2

// SubtaskSpec is one node of a decomposition. Immutable.
type SubtaskSpec struct {
	Label        string   `json:"label"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
}

// SubtaskResult is the decision of one completed sub-task. Immutable.
type SubtaskResult struct {
	Label      string  `json:"label"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
}

// Parse reads the model's decomposition JSON strictly: the object must
// carry a "subtasks" array of objects, each with string "label" and
// "description" and optional string-array "dependencies". Anything else
// is a malformed decomposition.
func Parse(raw string) ([]SubtaskSpec, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("decomposition is not a JSON object: %w", err)
	}
	rawTasks, ok := envelope["subtasks"]
	if !ok {
		return nil, fmt.Errorf("decomposition missing %q key", "subtasks")
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(rawTasks, &items); err != nil {
		return nil, fmt.Errorf("%q is not an array of objects: %w", "subtasks", err)
	}

	specs := make([]SubtaskSpec, 0, len(items))
	for i, item := range items {
		var spec SubtaskSpec
		if err := unmarshalString(item, "label", &spec.Label); err != nil {
			return nil, fmt.Errorf("subtask %d: %w", i, err)
		}
		if err := unmarshalString(item, "description", &spec.Description); err != nil {
			return nil, fmt.Errorf("subtask %d: %w", i, err)
		}
		if rawDeps, ok := item["dependencies"]; ok {
			if err := json.Unmarshal(rawDeps, &spec.Dependencies); err != nil {
				return nil, fmt.Errorf("subtask %d: dependencies must be an array of strings: %w", i, err)
			}
		}
		if spec.Dependencies == nil {
			spec.Dependencies = []string{}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func unmarshalString(item map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := item[key]
	if !ok {
		return fmt.Errorf("missing %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%q must be a string: %w", key, err)
	}
	if *dst == "" {
		return fmt.Errorf("%q must be non-empty", key)
	}
	return nil
}

// Validate checks the DAG invariants: node count within [2, maxSubtasks],
// unique labels, no self-dependencies, all referenced dependencies
// existing, and no cycle.
func Validate(specs []SubtaskSpec, maxSubtasks int) error {
	if maxSubtasks <= 0 {
		maxSubtasks = MaxSubtasksDefault
	}
	if len(specs) < MinSubtasks || len(specs) > maxSubtasks {
		return fmt.Errorf("decomposition must have between %d and %d subtasks, got %d", MinSubtasks, maxSubtasks, len(specs))
	}

	labels := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if labels[spec.Label] {
			return fmt.Errorf("duplicate subtask label %q", spec.Label)
		}
		labels[spec.Label] = true
	}
	for _, spec := range specs {
		for _, dep := range spec.Dependencies {
			if dep == spec.Label {
				return fmt.Errorf("subtask %q depends on itself", spec.Label)
			}
			if !labels[dep] {
				return fmt.Errorf("subtask %q depends on unknown label %q", spec.Label, dep)
			}
		}
	}

	if _, err := Layers(specs); err != nil {
		return err
	}
	return nil
}

// Layers computes the Kahn topological layering: layer 0 holds nodes with
// no pending dependencies, layer k+1 the nodes exposed by removing layer
// k. A cycle leaves nodes unplaced and is an error. Order within a layer
// follows the input order.
func Layers(specs []SubtaskSpec) ([][]SubtaskSpec, error) {
	pending := make(map[string]int, len(specs))
	for _, spec := range specs {
		pending[spec.Label] = len(spec.Dependencies)
	}

	placed := make(map[string]bool, len(specs))
	var layers [][]SubtaskSpec
	remaining := len(specs)

	for remaining > 0 {
		var layer []SubtaskSpec
		for _, spec := range specs {
			if !placed[spec.Label] && pending[spec.Label] == 0 {
				layer = append(layer, spec)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("dependency cycle detected among %d remaining subtasks", remaining)
		}
		for _, spec := range layer {
			placed[spec.Label] = true
			remaining--
		}
		for _, spec := range specs {
			if placed[spec.Label] {
				continue
			}
			for _, dep := range spec.Dependencies {
				if containsLabel(layer, dep) {
					pending[spec.Label]--
				}
			}
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func containsLabel(layer []SubtaskSpec, label string) bool {
	for _, spec := range layer {
		if spec.Label == label {
			return true
		}
	}
	return false
}
