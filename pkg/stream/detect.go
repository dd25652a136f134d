package stream

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-cvstream/pkg/cascade"
	"github.com/teslashibe/go-cvstream/pkg/engine"
)

// ObjectDetectionStream runs a cascade classifier on every written frame
// and emits the detections together with the frame.
type ObjectDetectionStream struct {
	*pipe[engine.Matrix, Detection]

	cascade    cascade.Cascade
	classifier engine.Classifier
	detect     engine.DetectOptions
}

// NewObjectDetectionStream creates a detection stream for c. The classifier
// is taken from cache once, so streams sharing a cache and a cascade path
// share one classifier.
func NewObjectDetectionStream(cache *cascade.Cache, c cascade.Cascade, detect engine.DetectOptions, opts ...Option) (*ObjectDetectionStream, error) {
	cl, err := cache.Classifier(c.Path)
	if err != nil {
		return nil, fmt.Errorf("detection stream %s: %w", c.Name, err)
	}

	s := &ObjectDetectionStream{
		cascade:    c,
		classifier: cl,
		detect:     detect,
	}
	o := applyOptions(opts)
	s.pipe = newPipe("detect", "detect multi scale", o, s.detectFrame, releaseDetection, releaseMatrix)
	return s, nil
}

// Cascade returns the cascade the stream detects with.
func (s *ObjectDetectionStream) Cascade() cascade.Cascade {
	return s.cascade
}

// Classifier returns the classifier shared through the cache.
func (s *ObjectDetectionStream) Classifier() engine.Classifier {
	return s.classifier
}

// Write queues frame for detection. The stream takes ownership of frame:
// it is handed back in the Detection, or closed if detection fails.
func (s *ObjectDetectionStream) Write(frame engine.Matrix) bool {
	return s.pipe.Write(frame)
}

func (s *ObjectDetectionStream) detectFrame(ctx context.Context, frame engine.Matrix) (Detection, error) {
	objects, err := s.classifier.DetectMultiScale(ctx, frame, s.detect)
	if err != nil {
		return Detection{}, err
	}
	return Detection{Objects: objects, Frame: frame}, nil
}

func releaseDetection(d Detection) {
	releaseMatrix(d.Frame)
}
