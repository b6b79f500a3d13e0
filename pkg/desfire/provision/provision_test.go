package provision

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidPlanAndResolveRelativeKeyPaths(t *testing.T) {
	tmp := t.TempDir()
	keyPath := filepath.Join(tmp, "key0.hex")
	if err := os.WriteFile(keyPath, []byte("00000000000000000000000000000000\n"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}

	planPath := filepath.Join(tmp, "plan.yaml")
	planYAML := `
aid: "112233"
key_settings: 15
key_type: aes
keys:
  - key_no: 0
    key_type: aes
    key_hex_file: "key0.hex"
    version: 1
files:
  - file_no: 1
    type: std
    comm_mode: encrypted
    size: 32
runtime:
  reader_index: 0
  dry_run: false
`
	if err := os.WriteFile(planPath, []byte(planYAML), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	plan, err := Load(planPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if plan.Keys[0].KeyHexFile != keyPath {
		t.Fatalf("expected resolved key path %q, got %q", keyPath, plan.Keys[0].KeyHexFile)
	}
	if plan.AID != "112233" {
		t.Fatalf("expected aid 112233, got %q", plan.AID)
	}
}

func TestLoadRejectsMissingKeySettings(t *testing.T) {
	tmp := t.TempDir()
	keyPath := filepath.Join(tmp, "key0.hex")
	if err := os.WriteFile(keyPath, []byte("00\n"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}

	planPath := filepath.Join(tmp, "plan.yaml")
	planYAML := `
aid: "112233"
key_type: aes
keys:
  - key_no: 0
    key_type: aes
    key_hex_file: "key0.hex"
runtime:
  reader_index: 0
`
	if err := os.WriteFile(planPath, []byte(planYAML), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	if _, err := Load(planPath); err == nil {
		t.Fatalf("expected validation error for missing key_settings")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	tmp := t.TempDir()
	planPath := filepath.Join(tmp, "plan.yaml")
	planYAML := `
aid: "112233"
key_settings: 15
key_type: aes
bogus_field: true
keys: []
runtime:
  reader_index: 0
`
	if err := os.WriteFile(planPath, []byte(planYAML), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	if _, err := Load(planPath); err == nil {
		t.Fatalf("expected strict-decode error for unknown field")
	}
}
