// Package settings holds local threshold sources.
package settings

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileSource reads a ThresholdsUpdate from a YAML file. The file is re-read
// on every Fetch and only reported again after its content changes.
//
//	bark_threshold: 850
//	duration_max_ms: 300
type FileSource struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	last [sha256.Size]byte
	seen bool
}

// NewFileSource creates a source for path
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, logger: logger}
}

// Fetch returns the file's update, or models.ErrNoSettings when the content
// matches what was returned last time
func (f *FileSource) Fetch(_ context.Context) (models.ThresholdsUpdate, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return models.ThresholdsUpdate{}, fmt.Errorf("read settings file: %w", err)
	}

	sum := sha256.Sum256(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen && sum == f.last {
		return models.ThresholdsUpdate{}, models.ErrNoSettings
	}

	var update models.ThresholdsUpdate
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&update); err != nil && err != io.EOF {
		return models.ThresholdsUpdate{}, fmt.Errorf("decode settings file %q: %w", f.path, err)
	}

	f.last = sum
	f.seen = true
	if update.Empty() {
		return models.ThresholdsUpdate{}, models.ErrNoSettings
	}

	f.logger.Debug("settings file changed", zap.String("path", f.path))
	return update, nil
}
