package ml

import (
	"errors"
	"fmt"
)

const TypeDecisionTree = "decision_tree"

// LoadModel loads a model artifact. Any failure is a *ModelUnavailableError.
func LoadModel(modelType, path string) (Model, error) {
	fail := func(err error) (Model, error) {
		return nil, &ModelUnavailableError{Type: modelType, Path: path, Err: err}
	}
	if path == "" {
		return fail(errors.New("model path is required"))
	}
	switch modelType {
	case TypeDecisionTree:
		model := NewDecisionTree(0)
		if err := model.Load(path); err != nil {
			return fail(err)
		}
		return model, nil
	default:
		return fail(fmt.Errorf("unsupported model type %q", modelType))
	}
}
