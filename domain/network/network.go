// Package network describes the two-level Bayesian network: a binary target at
// the root and conditionally independent binary leaf features below it.
package network

import (
	"fmt"
)

// Feature is one leaf of the network.
type Feature struct {
	Name      string `json:"name" yaml:"name"`
	Sensitive bool   `json:"sensitive" yaml:"sensitive"`
}

// Network is the feature catalogue read from a network-description file.
// Leaf ids are positions in Features.
type Network struct {
	Target      string    `json:"target" yaml:"target"`
	TargetValue int       `json:"target_value" yaml:"target_value"` // positive outcome
	Features    []Feature `json:"features" yaml:"features"`
}

// New validates and builds a network.
func New(target string, targetValue int, features []Feature) (*Network, error) {
	if target == "" {
		return nil, fmt.Errorf("network target name is empty")
	}
	if targetValue != 0 && targetValue != 1 {
		return nil, fmt.Errorf("target value must be 0 or 1, got %d", targetValue)
	}
	seen := map[string]bool{target: true}
	for _, f := range features {
		if f.Name == "" {
			return nil, fmt.Errorf("network contains a feature with an empty name")
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate feature %q in network", f.Name)
		}
		seen[f.Name] = true
	}
	return &Network{Target: target, TargetValue: targetValue, Features: features}, nil
}

// NumLeaves returns the number of non-target features.
func (n *Network) NumLeaves() int { return len(n.Features) }

// Name returns the leaf name for id.
func (n *Network) Name(id int) string { return n.Features[id].Name }

// LeafNames returns the non-target feature names in leaf-id order.
func (n *Network) LeafNames() []string {
	names := make([]string, len(n.Features))
	for i, f := range n.Features {
		names[i] = f.Name
	}
	return names
}

// Columns returns the target followed by every leaf name.
func (n *Network) Columns() []string {
	return append([]string{n.Target}, n.LeafNames()...)
}

// SensitiveIDs returns the leaf ids of protected attributes.
func (n *Network) SensitiveIDs() []int {
	var ids []int
	for i, f := range n.Features {
		if f.Sensitive {
			ids = append(ids, i)
		}
	}
	return ids
}

// SensitiveNames returns the names of protected attributes.
func (n *Network) SensitiveNames() []string {
	var names []string
	for _, f := range n.Features {
		if f.Sensitive {
			names = append(names, f.Name)
		}
	}
	return names
}

// IsSensitive reports whether the named leaf is protected.
func (n *Network) IsSensitive(name string) bool {
	for _, f := range n.Features {
		if f.Name == name {
			return f.Sensitive
		}
	}
	return false
}
