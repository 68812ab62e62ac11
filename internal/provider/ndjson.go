package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteNDJSON writes one JSON object per line to path, the wire format
// every batch provider's upload/download files use (§6.2).
func WriteNDJSON(path string, records []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ndjson file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode ndjson record: %w", err)
		}
	}
	return w.Flush()
}

// ReadNDJSON reads a newline-delimited JSON file into a slice of records.
func ReadNDJSON(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ndjson file %s: %w", path, err)
	}
	defer f.Close()

	var out []map[string]any
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode ndjson record in %s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// decodeJSONLBytes parses an in-memory newline-delimited JSON payload, as
// returned directly by a batch-results download endpoint.
func decodeJSONLBytes(raw []byte) ([]map[string]any, error) {
	var out []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	for {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
