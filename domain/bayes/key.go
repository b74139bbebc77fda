// Package bayes holds the parameter model of a two-level naive-Bayes network:
// sufficient statistics, fitted probability estimates and the per-leaf
// distribution parameters handed to the pattern search.
package bayes

import "fmt"

// RootTarget marks a key that addresses the root distribution P(target=v).
const RootTarget = -1

// Values enumerates the binary domain shared by every feature.
var Values = [2]int{0, 1}

// Key addresses one network parameter: P(Feature=Value | target=Target) for a
// leaf, or P(target=Value) for the root.
type Key struct {
	Feature string
	Value   int
	Target  int
}

// RootKey returns the key of P(target=v).
func RootKey(target string, v int) Key {
	return Key{Feature: target, Value: v, Target: RootTarget}
}

// LeafKey returns the key of P(feature=v1 | target=v2).
func LeafKey(feature string, v1, v2 int) Key {
	return Key{Feature: feature, Value: v1, Target: v2}
}

// IsRoot reports whether the key addresses the root distribution.
func (k Key) IsRoot() bool { return k.Target == RootTarget }

func (k Key) String() string {
	if k.IsRoot() {
		return fmt.Sprintf("(%s, %d)", k.Feature, k.Value)
	}
	return fmt.Sprintf("(%s, %d, %d)", k.Feature, k.Value, k.Target)
}
