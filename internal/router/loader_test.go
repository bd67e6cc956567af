package router

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_SkipsInvalidEntriesButKeepsValidOnes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	body := `{
		"routes": [
			{"path": "/api/users/*", "backend": "http://users:3000"},
			{"path": "/api/broken"},
			{"path": "/health", "handler": "health"}
		]
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write routes file: %v", err)
	}

	table, err := LoadFile(path, nil)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(table.Routes()) != 2 {
		t.Fatalf("expected 2 valid routes, got %d", len(table.Routes()))
	}
}
