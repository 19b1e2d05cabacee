package ml

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedPrediction struct {
	label      int
	confidence float64
}

// CachedModel memoizes a deterministic model by feature vector.
type CachedModel struct {
	model Model
	cache *lru.Cache[string, cachedPrediction]
}

// NewCachedModel wraps model with an LRU of the given size. A non-positive
// size returns the model unwrapped.
func NewCachedModel(model Model, size int) (Model, error) {
	if size <= 0 {
		return model, nil
	}
	cache, err := lru.New[string, cachedPrediction](size)
	if err != nil {
		return nil, err
	}
	return &CachedModel{model: model, cache: cache}, nil
}

func (c *CachedModel) Predict(features []float64) (int, float64, error) {
	key := vectorKey(features)
	if hit, ok := c.cache.Get(key); ok {
		return hit.label, hit.confidence, nil
	}
	label, confidence, err := c.model.Predict(features)
	if err != nil {
		return 0, 0, err
	}
	c.cache.Add(key, cachedPrediction{label: label, confidence: confidence})
	return label, confidence, nil
}

// FeatureWidth forwards to the wrapped model when it reports one.
func (c *CachedModel) FeatureWidth() int {
	if w, ok := c.model.(FeatureWidther); ok {
		return w.FeatureWidth()
	}
	return 0
}

// Len reports the number of cached vectors.
func (c *CachedModel) Len() int {
	return c.cache.Len()
}

func vectorKey(features []float64) string {
	var b strings.Builder
	for i, v := range features {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
