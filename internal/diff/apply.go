package diff

import (
	"fmt"
	"slices"

	"github.com/trappiz/tesla-order-status/internal/tree"
)

// Apply replays an edit script produced by Diff against old and returns the
// reconstructed tree. The input tree is never mutated.
//
// Scripts must be applied in their produced order: array records rely on it
// (removals shrink the tail left to right, additions extend it).
func Apply(old tree.Node, records []Record) (tree.Node, error) {
	root := tree.Clone(old)
	// Per-array count of pending structural deletions, keyed by the array's
	// dotted path. A removal shifts every later old-coordinate index on the
	// same array one to the left until a paired addition compensates it.
	pending := make(map[string]int)

	for _, rec := range records {
		if len(rec.Path) == 0 {
			// Whole-tree record (first poll of a malformed root swap).
			if rec.Kind == KindRemoved {
				root = nil
				continue
			}
			root = tree.Clone(rec.New)
			continue
		}
		next, err := applyAt(root, rec.Path, "", rec, pending)
		if err != nil {
			return nil, err
		}
		root = next
	}
	return root, nil
}

// applyAt descends to the record's parent container and performs the edit,
// returning the possibly replaced node.
func applyAt(n tree.Node, rest Path, prefix string, rec Record, pending map[string]int) (tree.Node, error) {
	step := rest[0]

	if len(rest) == 1 {
		return applyStep(n, step, prefix, rec, pending)
	}

	if step.IsIndex {
		arr, ok := n.(tree.Array)
		if !ok {
			return nil, fmt.Errorf("apply %s: expected array at %q, got %T", rec.Path, prefix, n)
		}
		if step.Index < 0 || step.Index >= len(arr) {
			return nil, fmt.Errorf("apply %s: index %d out of range at %q", rec.Path, step.Index, prefix)
		}
		child, err := applyAt(arr[step.Index], rest[1:], childPrefix(prefix, step), rec, pending)
		if err != nil {
			return nil, err
		}
		arr[step.Index] = child
		return arr, nil
	}

	obj, ok := n.(tree.Object)
	if !ok {
		return nil, fmt.Errorf("apply %s: expected object at %q, got %T", rec.Path, prefix, n)
	}
	child, ok := obj[step.Key]
	if !ok {
		return nil, fmt.Errorf("apply %s: missing key %q at %q", rec.Path, step.Key, prefix)
	}
	next, err := applyAt(child, rest[1:], childPrefix(prefix, step), rec, pending)
	if err != nil {
		return nil, err
	}
	obj[step.Key] = next
	return obj, nil
}

// applyStep performs the final edit on the parent container.
func applyStep(n tree.Node, step Step, prefix string, rec Record, pending map[string]int) (tree.Node, error) {
	if step.IsIndex {
		arr, ok := n.(tree.Array)
		if !ok {
			return nil, fmt.Errorf("apply %s: expected array at %q, got %T", rec.Path, prefix, n)
		}
		return applyArrayStep(arr, step.Index, prefix, rec, pending)
	}

	obj, ok := n.(tree.Object)
	if !ok {
		return nil, fmt.Errorf("apply %s: expected object at %q, got %T", rec.Path, prefix, n)
	}
	switch rec.Kind {
	case KindRemoved:
		if _, present := obj[step.Key]; !present {
			return nil, fmt.Errorf("apply %s: removing absent key %q", rec.Path, step.Key)
		}
		delete(obj, step.Key)
	case KindAdded, KindChanged:
		obj[step.Key] = tree.Clone(rec.New)
	}
	return obj, nil
}

func applyArrayStep(arr tree.Array, index int, prefix string, rec Record, pending map[string]int) (tree.Node, error) {
	switch rec.Kind {
	case KindChanged:
		if index < 0 || index >= len(arr) {
			return nil, fmt.Errorf("apply %s: index %d out of range", rec.Path, index)
		}
		arr[index] = tree.Clone(rec.New)
		return arr, nil

	case KindRemoved:
		// Old-tree coordinates: shift left by deletions already applied here.
		at := index - pending[prefix]
		if at < 0 || at >= len(arr) {
			return nil, fmt.Errorf("apply %s: remove index %d out of range", rec.Path, index)
		}
		pending[prefix]++
		return slices.Delete(arr, at, at+1), nil

	default: // KindAdded
		at := index
		if d := pending[prefix]; d > 0 {
			// Second half of a container swap at this position.
			at = index - (d - 1)
			pending[prefix]--
		}
		if at < 0 || at > len(arr) {
			return nil, fmt.Errorf("apply %s: insert index %d out of range", rec.Path, index)
		}
		return slices.Insert(arr, at, tree.Clone(rec.New)), nil
	}
}

func childPrefix(prefix string, step Step) string {
	p := Path{step}
	if step.IsIndex || prefix == "" {
		return prefix + p.String()
	}
	return prefix + "." + p.String()
}

// Invert turns an edit script for old→new into the script for new→old:
// additions become removals, removals become additions, and changed records
// swap their values. Container-swap pairs keep removal before addition.
func Invert(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		inv := Record{Path: r.Path}
		switch r.Kind {
		case KindAdded:
			inv.Kind, inv.Old = KindRemoved, r.New
		case KindRemoved:
			inv.Kind, inv.New = KindAdded, r.Old
		case KindChanged:
			inv.Kind, inv.Old, inv.New = KindChanged, r.New, r.Old
		}
		out[i] = inv
	}
	for i := 0; i+1 < len(out); i++ {
		if out[i].Kind == KindAdded && out[i+1].Kind == KindRemoved && out[i].Path.Equal(out[i+1].Path) {
			out[i], out[i+1] = out[i+1], out[i]
		}
	}
	return out
}
