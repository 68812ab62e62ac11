package runconfig

import (
	"fmt"

	"dario.cat/mergo"
)

// mergeAPIConfig merges user-provided api settings on top of the built-in
// defaults, following the teacher's queue-config merge pattern: start from
// defaults, then let non-zero user values override (pkg/config/loader.go
// in the reference codebase).
func mergeAPIConfig(user APIConfig) (APIConfig, error) {
	merged := DefaultAPIConfig()
	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return APIConfig{}, fmt.Errorf("failed to merge api config: %w", err)
	}
	return merged, nil
}

// mergeProcessingConfig merges user-provided processing settings on top of
// the built-in defaults.
func mergeProcessingConfig(user ProcessingConfig) (ProcessingConfig, error) {
	merged := DefaultProcessingConfig()
	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return ProcessingConfig{}, fmt.Errorf("failed to merge processing config: %w", err)
	}
	return merged, nil
}
