package workflow

import (
	"reflect"
	"sort"
)

// Patch represents a change to a top-level data variable.
type Patch struct {
	variable string
	value    any
	delete   bool
}

func (p Patch) Variable() string {
	return p.variable
}

func (p Patch) Value() any {
	return p.value
}

func (p Patch) Delete() bool {
	return p.delete
}

// GeneratePatches compares original and modified data maps and returns
// patches for the differences, sorted by variable name.
func GeneratePatches(original, modified map[string]any) []Patch {
	var patches []Patch
	for key, currentValue := range modified {
		if originalValue, exists := original[key]; exists && reflect.DeepEqual(originalValue, currentValue) {
			continue
		}
		patches = append(patches, Patch{variable: key, value: currentValue})
	}
	for key := range original {
		if _, exists := modified[key]; !exists {
			patches = append(patches, Patch{variable: key, delete: true})
		}
	}
	sort.Slice(patches, func(i, j int) bool {
		return patches[i].variable < patches[j].variable
	})
	return patches
}

// ApplyPatches applies patches to a data map in place.
func ApplyPatches(data map[string]any, patches []Patch) {
	for _, patch := range patches {
		if patch.delete {
			delete(data, patch.variable)
		} else {
			data[patch.variable] = patch.value
		}
	}
}

// patchesFor converts a node result into patches.
func patchesFor(result *NodeResult) []Patch {
	patches := make([]Patch, 0, len(result.Output)+len(result.Delete))
	for key, value := range result.Output {
		patches = append(patches, Patch{variable: key, value: value})
	}
	for _, key := range result.Delete {
		patches = append(patches, Patch{variable: key, delete: true})
	}
	sort.Slice(patches, func(i, j int) bool {
		return patches[i].variable < patches[j].variable
	})
	return patches
}
