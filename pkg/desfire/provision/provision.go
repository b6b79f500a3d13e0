// Package provision loads a YAML batch-provisioning descriptor: the
// application, keys and files a fleet of cards should end up with after
// a provisioning run (spec §9 supplemented feature, grounded on
// sdmconfig/internal/config's strict-decode + pointer-presence validation
// style).
package provision

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is one provisioning descriptor: create an application,
// install its keys, and lay out its files.
type Plan struct {
	AID         string     `yaml:"aid"`
	KeySettings *int       `yaml:"key_settings"`
	KeyType     string     `yaml:"key_type"`
	Keys        []KeyPlan  `yaml:"keys"`
	Files       []FilePlan `yaml:"files"`
	Runtime     Runtime    `yaml:"runtime"`
}

// KeyPlan describes one key slot's target material.
type KeyPlan struct {
	KeyNo      *int   `yaml:"key_no"`
	KeyType    string `yaml:"key_type"`
	KeyHexFile string `yaml:"key_hex_file"`
	Version    *int   `yaml:"version"`
}

// FilePlan describes one file to create within the application.
type FilePlan struct {
	FileNo     *int   `yaml:"file_no"`
	Type       string `yaml:"type"` // std, backup, value, linear, cyclic
	CommMode   string `yaml:"comm_mode"`
	Size       *int   `yaml:"size"`        // std/backup
	RecordSize *int   `yaml:"record_size"` // linear/cyclic
	MaxRecords *int   `yaml:"max_records"` // linear/cyclic
	LowerLimit *int   `yaml:"lower_limit"` // value
	UpperLimit *int   `yaml:"upper_limit"` // value
}

// Runtime holds operational knobs that aren't part of the card's target
// state.
type Runtime struct {
	ReaderIndex *int  `yaml:"reader_index"`
	DryRun      *bool `yaml:"dry_run"`
}

// Load reads and strictly decodes a Plan from path, resolving every
// key_hex_file relative to the config file's directory, then validates it.
func Load(path string) (*Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("provision: read plan: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var plan Plan
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("provision: parse plan yaml: %w", err)
	}
	plan.resolvePaths(path)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks every required field is present and in range. Absent
// optional fields are represented as nil pointers so "not set" and "set
// to zero" are distinguishable.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.AID) == "" {
		return fmt.Errorf("provision: aid is required")
	}
	if p.KeySettings == nil {
		return fmt.Errorf("provision: key_settings is required")
	}
	if strings.TrimSpace(p.KeyType) == "" {
		return fmt.Errorf("provision: key_type is required")
	}
	if len(p.Keys) == 0 {
		return fmt.Errorf("provision: at least one key is required")
	}
	for i, k := range p.Keys {
		if k.KeyNo == nil {
			return fmt.Errorf("provision: keys[%d].key_no is required", i)
		}
		if *k.KeyNo < 0 || *k.KeyNo > 13 {
			return fmt.Errorf("provision: keys[%d].key_no must be 0..13", i)
		}
		if strings.TrimSpace(k.KeyHexFile) == "" {
			return fmt.Errorf("provision: keys[%d].key_hex_file is required", i)
		}
		if err := validateReadableFile(k.KeyHexFile, fmt.Sprintf("keys[%d].key_hex_file", i)); err != nil {
			return err
		}
	}
	for i, f := range p.Files {
		if f.FileNo == nil {
			return fmt.Errorf("provision: files[%d].file_no is required", i)
		}
		if strings.TrimSpace(f.Type) == "" {
			return fmt.Errorf("provision: files[%d].type is required", i)
		}
	}
	if p.Runtime.ReaderIndex == nil {
		return fmt.Errorf("provision: runtime.reader_index is required")
	}
	return nil
}

func (p *Plan) resolvePaths(planPath string) {
	dir := filepath.Dir(planPath)
	for i := range p.Keys {
		p.Keys[i].KeyHexFile = resolvePath(dir, p.Keys[i].KeyHexFile)
	}
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("provision: %s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("provision: %s must point to a file, got a directory", field)
	}
	return nil
}
