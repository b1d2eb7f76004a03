package replication

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Request is a replication batch read from a file. The source is either
// given inline or named by SourceUnitID and loaded from the store.
type Request struct {
	SourceTenantID string      `yaml:"source_tenant,omitempty"`
	SourceUnitID   string      `yaml:"source_unit,omitempty"`
	Source         *SourceUnit `yaml:"source,omitempty"`
	Targets        []Target    `yaml:"targets"`
}

// LoadRequest reads and checks a YAML request file.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	return ParseRequest(data)
}

// ParseRequest decodes a YAML request.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	switch {
	case req.Source != nil && req.SourceUnitID != "":
		return nil, fmt.Errorf("request: source and source_unit are mutually exclusive")
	case req.Source == nil && req.SourceUnitID == "":
		return nil, fmt.Errorf("request: one of source or source_unit is required")
	case req.SourceUnitID != "" && req.SourceTenantID == "":
		return nil, fmt.Errorf("request: source_tenant is required with source_unit")
	case len(req.Targets) == 0:
		return nil, fmt.Errorf("request: at least one target is required")
	}

	if req.Source != nil {
		if err := req.Source.Validate(); err != nil {
			return nil, fmt.Errorf("request: %w", err)
		}
	}
	for i, t := range req.Targets {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("request: target %d: %w", i, err)
		}
	}
	return &req, nil
}

// LockKey names the source for the advisory lock.
func (r *Request) LockKey() string {
	if r.SourceUnitID != "" {
		return r.SourceUnitID
	}
	return r.Source.Spec.Number + "-" + r.Source.Spec.Type
}
