package provider

import "testing"

func TestWriteReadNDJSONRoundTrip(t *testing.T) {
	path := t.TempDir() + "/batch.jsonl"
	records := []map[string]any{
		{"unit_id": "u1", "content": "hello"},
		{"unit_id": "u2", "content": "world"},
	}
	if err := WriteNDJSON(path, records); err != nil {
		t.Fatalf("WriteNDJSON: %v", err)
	}

	got, err := ReadNDJSON(path)
	if err != nil {
		t.Fatalf("ReadNDJSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0]["unit_id"] != "u1" || got[1]["unit_id"] != "u2" {
		t.Fatalf("unexpected record order/content: %+v", got)
	}
}

func TestDecodeJSONLBytes(t *testing.T) {
	raw := []byte("{\"a\":1}\n{\"a\":2}\n")
	out, err := decodeJSONLBytes(raw)
	if err != nil {
		t.Fatalf("decodeJSONLBytes: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
}
