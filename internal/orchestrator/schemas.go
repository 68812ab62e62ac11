package orchestrator

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/codeready-toolchain/batchctl/internal/validate"
)

// schemaCache lazily loads and caches a stage's JSON Schema file, mirroring
// the renderer's per-template cache so a chunk of many units parses each
// stage's schema exactly once.
type schemaCache struct {
	dir   string
	files map[string]string

	mu    sync.Mutex
	cache map[string]*validate.Schema
}

func newSchemaCache(dir string, files map[string]string) *schemaCache {
	return &schemaCache{dir: dir, files: files, cache: make(map[string]*validate.Schema)}
}

func (c *schemaCache) get(stage string) (*validate.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.cache[stage]; ok {
		return s, nil
	}

	file, ok := c.files[stage]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no schema configured for stage %q", stage)
	}

	schema, err := validate.LoadSchema(filepath.Join(c.dir, file))
	if err != nil {
		return nil, err
	}
	c.cache[stage] = schema
	return schema, nil
}
