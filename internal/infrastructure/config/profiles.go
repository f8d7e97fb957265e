package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// PermissionProfile declares the permission policy for one storage
// partition. Kinds not listed under allow are denied; the broker's default
// stays deny even without a profile.
type PermissionProfile struct {
	Partition string   `yaml:"partition"`
	Allow     []string `yaml:"allow"`
}

// Profiles is the parsed permission policy file.
type Profiles struct {
	Partitions []PermissionProfile `yaml:"partitions"`
}

// LoadProfiles parses a YAML permission policy file. An empty path yields
// an empty policy.
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return &Profiles{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles parses raw YAML policy content.
func ParseProfiles(data []byte) (*Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse permission profiles: %w", err)
	}
	return &p, nil
}

// Allowed reports whether a profile grants kind for the partition.
func (p *Profiles) Allowed(partition, kind string) bool {
	for _, profile := range p.Partitions {
		if profile.Partition != partition {
			continue
		}
		for _, allowed := range profile.Allow {
			if allowed == kind {
				return true
			}
		}
	}
	return false
}

// PartitionNames lists partitions with an explicit profile.
func (p *Profiles) PartitionNames() []string {
	names := make([]string, 0, len(p.Partitions))
	for _, profile := range p.Partitions {
		names = append(names, profile.Partition)
	}
	return names
}
