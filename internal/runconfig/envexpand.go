package runconfig

import "os"

// ExpandEnv expands environment variables in a pipeline YAML file using Go's
// standard library. Supports both ${VAR} and $VAR syntax (standard
// shell-style), so a provider's API key never has to be written in plaintext
// into the config.
//
// Examples:
//   - ${OPENAI_API_KEY} → value of OPENAI_API_KEY environment variable
//   - $ANTHROPIC_API_KEY → value of ANTHROPIC_API_KEY environment variable
//   - ${API_HOST}:${API_PORT} → hostname:port with both variables expanded
//
// Missing variables expand to empty string. Validation should catch required fields that are empty.
func ExpandEnv(data []byte) []byte {
	expanded := os.ExpandEnv(string(data))
	return []byte(expanded)
}
