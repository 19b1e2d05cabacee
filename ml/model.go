package ml

import "fmt"

// Model is the opaque classifier behind the inference service.
type Model interface {
	Predict(features []float64) (int, float64, error)
}

// Trainable models can be fitted offline and persisted as artifacts.
type Trainable interface {
	Model
	Train(features [][]float64, labels []int) error
	Save(path string) error
	Load(path string) error
}

// FeatureWidther is implemented by models that know how many inputs they read.
type FeatureWidther interface {
	FeatureWidth() int
}

// ModelUnavailableError means the model artifact could not be loaded.
type ModelUnavailableError struct {
	Type string
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable (type=%s path=%s): %v", e.Type, e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}
