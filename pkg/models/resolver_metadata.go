package models

import "time"

// ResolverMetadata identifies a registered resolver or composed mastery.
// Identity is the (Name, Version) pair; Version is a dot-separated version
// string, not guaranteed strict semver.
type ResolverMetadata struct {
	Name               string     `json:"name"`
	Version            string     `json:"version"`
	Description        string     `json:"description,omitempty"`
	Depth              int        `json:"depth"`
	EvolutionThreshold int        `json:"evolution_threshold,omitempty"`
	MaxRetries         int        `json:"max_retries"`
	Tags               []string   `json:"tags,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	LastEvolved        *time.Time `json:"last_evolved,omitempty"`
}

// NewResolverMetadata builds metadata with the defaults the kernel expects.
func NewResolverMetadata(name, version, description string) *ResolverMetadata {
	return &ResolverMetadata{
		Name:        name,
		Version:     version,
		Description: description,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   time.Now(),
	}
}

// Key returns the registry identity of this metadata.
func (m *ResolverMetadata) Key() string {
	return m.Name + "@" + m.Version
}
