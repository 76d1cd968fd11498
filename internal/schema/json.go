package schema

import (
	"encoding/json"

	"github.com/alexisbeaulieu97/sc/internal/logger"
)

// EncodeJSON renders a manifest tree as the "sc_manifest.json" /
// "<design>.pkg.json" wire format (spec.md §4.4 steps 15 and 24).
func EncodeJSON(n *Node) ([]byte, error) {
	return json.MarshalIndent(ToMap(n), "", "  ")
}

// DecodeJSON parses a manifest produced by EncodeJSON back into a tree,
// the inverse used on fan-in (spec.md §4.4 step 5).
func DecodeJSON(data []byte) (*Node, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return FromMap(raw)
}

// FromNode wraps an already-built tree (typically the result of DecodeJSON)
// in a fresh Store, used to merge an upstream manifest into a worker's own
// store without sharing memory with the upstream's original Store.
func FromNode(root *Node, log *logger.Logger) *Store {
	if root == nil {
		root = newBranch()
	}
	return &Store{root: root, log: log}
}
