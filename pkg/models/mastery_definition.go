package models

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// NodeDefinition is the serializable form of a single mastery node.
// Conditions are code, not data: they are not serialized, and the default
// proceed-on-COMPLETED condition applies when a definition is re-bound to
// live resolvers.
type NodeDefinition struct {
	ID       string   `json:"id" yaml:"id"`
	Resolver string   `json:"resolver" yaml:"resolver"`
	Next     []string `json:"next,omitempty" yaml:"next,omitempty"`
}

// MasteryDefinition is the serializable description of a composed
// workflow, exchanged with storage so a composer can be reconstructed and
// re-bound to live resolver instances.
type MasteryDefinition struct {
	Name        string                 `json:"name" yaml:"name"`
	Version     string                 `json:"version" yaml:"version"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeDefinition       `json:"nodes" yaml:"nodes"`
	EntryNode   string                 `json:"entry_node" yaml:"entry_node"`
	ExitNodes   []string               `json:"exit_nodes" yaml:"exit_nodes"`
	MaxDepth    int                    `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	Tags        []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	CreatedAt   time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" yaml:"updated_at"`
}

// Node returns the definition of the node with the given id.
func (d *MasteryDefinition) Node(id string) (NodeDefinition, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDefinition{}, false
}

// ResolverNames returns the distinct resolver names referenced by the
// definition, in node order.
func (d *MasteryDefinition) ResolverNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, n := range d.Nodes {
		if _, ok := seen[n.Resolver]; ok {
			continue
		}
		seen[n.Resolver] = struct{}{}
		names = append(names, n.Resolver)
	}
	return names
}

// LoadMasteryDefinition reads a definition from a YAML file.
func LoadMasteryDefinition(path string) (*MasteryDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read mastery definition %s", path)
	}
	var def MasteryDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrapf(err, "failed to parse mastery definition %s", path)
	}
	if def.Name == "" {
		return nil, errors.Errorf("mastery definition %s has no name", path)
	}
	return &def, nil
}

// MarshalYAMLBytes renders the definition as a YAML document.
func (d *MasteryDefinition) MarshalYAMLBytes() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal mastery definition")
	}
	return out, nil
}
