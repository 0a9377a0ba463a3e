package store

import (
	"github.com/trappiz/tesla-order-status/internal/tree"
)

// treeEncode serializes a snapshot body with sorted object keys so that the
// stored TEXT is stable across runs for an unchanged tree.
func treeEncode(n tree.Node) (string, error) {
	data, err := tree.Encode(n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
