// Package cascade provides the registry of bundled classifier cascades and
// a cache that keeps one loaded classifier per cascade file.
package cascade

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"
)

// Names of the bundled cascades.
const (
	Face       = "FACE_CASCADE"
	Eye        = "EYE_CASCADE"
	Eyeglasses = "EYEGLASSES_CASCADE"
	FullBody   = "FULLBODY_CASCADE"
	CarSide    = "CAR_SIDE_CASCADE"
)

// DefaultDataDir is where cascade files are looked up when no directory
// is configured.
const DefaultDataDir = "data"

var (
	// ErrUnknownCascade is returned for names missing from the registry.
	ErrUnknownCascade = errors.New("cascade: unknown cascade")

	// ErrClassifierLoad is returned when the engine cannot load a cascade file.
	ErrClassifierLoad = errors.New("cascade: classifier load failed")
)

// Cascade is a named classifier definition.
type Cascade struct {
	Name     string `json:"name" yaml:"name"`
	FileName string `json:"file_name" yaml:"file_name"`
	Path     string `json:"path" yaml:"path"`
}

// New creates a cascade. An empty path resolves fileName under dataDir.
func New(name, fileName, path, dataDir string) Cascade {
	if path == "" {
		if dataDir == "" {
			dataDir = DefaultDataDir
		}
		path = filepath.Join(dataDir, fileName)
	}
	return Cascade{Name: name, FileName: fileName, Path: path}
}

// bundled lists the cascades shipped with OpenCV's data directory.
var bundled = []struct{ name, file string }{
	{Face, "haarcascade_frontalface_alt.xml"},
	{Eye, "haarcascade_eye.xml"},
	{Eyeglasses, "haarcascade_eye_tree_eyeglasses.xml"},
	{FullBody, "haarcascade_fullbody.xml"},
	{CarSide, "hogcascade_cars_sideview.xml"},
}

// Registry maps cascade names to definitions.
type Registry struct {
	mu       sync.RWMutex
	dataDir  string
	cascades map[string]Cascade
}

// NewRegistry returns a registry holding the bundled cascades under dataDir.
func NewRegistry(dataDir string) *Registry {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	r := &Registry{
		dataDir:  dataDir,
		cascades: make(map[string]Cascade, len(bundled)),
	}
	for _, b := range bundled {
		r.cascades[b.name] = New(b.name, b.file, "", dataDir)
	}
	return r
}

// DataDir returns the directory bundled cascades resolve against.
func (r *Registry) DataDir() string {
	return r.dataDir
}

// Add registers or replaces a cascade. A cascade without a path is
// resolved under the registry's data directory.
func (r *Registry) Add(c Cascade) Cascade {
	c = New(c.Name, c.FileName, c.Path, r.dataDir)

	r.mu.Lock()
	r.cascades[c.Name] = c
	r.mu.Unlock()
	return c
}

// Get returns the cascade registered as name.
func (r *Registry) Get(name string) (Cascade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cascades[name]
	if !ok {
		return Cascade{}, ErrUnknownCascade
	}
	return c, nil
}

// List returns all cascades sorted by name.
func (r *Registry) List() []Cascade {
	r.mu.RLock()
	out := make([]Cascade, 0, len(r.cascades))
	for _, c := range r.cascades {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
