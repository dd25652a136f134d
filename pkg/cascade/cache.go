package cascade

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/teslashibe/go-cvstream/pkg/engine"
)

// Cache holds one classifier per cascade file path. Entries are created on
// first use and kept until Close; there is no eviction.
//
// Classifiers handed out by the cache are shared, so the engine's
// classifiers must be safe for concurrent DetectMultiScale calls.
type Cache struct {
	eng engine.Engine

	mu          sync.Mutex
	classifiers map[string]engine.Classifier
}

// NewCache creates an empty cache backed by eng.
func NewCache(eng engine.Engine) *Cache {
	return &Cache{
		eng:         eng,
		classifiers: make(map[string]engine.Classifier),
	}
}

// Classifier returns the classifier for path, loading it on first use.
// A failed load is not cached.
func (c *Cache) Classifier(path string) (engine.Classifier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.classifiers[path]; ok {
		return cl, nil
	}

	cl, err := c.eng.NewClassifier(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrClassifierLoad, path, err)
	}
	c.classifiers[path] = cl
	return cl, nil
}

// Len returns the number of loaded classifiers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.classifiers)
}

// DetectObject runs the cascade's classifier on m.
func (c *Cache) DetectObject(ctx context.Context, m engine.Matrix, cascade Cascade, opts engine.DetectOptions) ([]image.Rectangle, error) {
	cl, err := c.Classifier(cascade.Path)
	if err != nil {
		return nil, err
	}
	return cl.DetectMultiScale(ctx, m, opts)
}

// Close releases every cached classifier.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for path, cl := range c.classifiers {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.classifiers, path)
	}
	return firstErr
}
