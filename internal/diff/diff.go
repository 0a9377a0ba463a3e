package diff

import (
	"slices"

	"github.com/trappiz/tesla-order-status/internal/tree"
)

// Diff returns the ordered edit script that rewrites old into new.
// An identical pair yields an empty script.
func Diff(old, new tree.Node) []Record {
	return diffNode(Path{}, old, new)
}

func diffNode(path Path, old, new tree.Node) []Record {
	if oldObj, ok := old.(tree.Object); ok {
		if newObj, ok := new.(tree.Object); ok {
			return diffObject(path, oldObj, newObj)
		}
	}
	if oldArr, ok := old.(tree.Array); ok {
		if newArr, ok := new.(tree.Array); ok {
			return diffArray(path, oldArr, newArr)
		}
	}

	// Divergent container types (object vs array) degrade to a whole-subtree
	// swap instead of failing on malformed data.
	if tree.IsComposite(old) && tree.IsComposite(new) {
		return []Record{
			{Path: path, Kind: KindRemoved, Old: old},
			{Path: path, Kind: KindAdded, New: new},
		}
	}

	if tree.Equal(old, new) {
		return nil
	}
	return []Record{{Path: path, Kind: KindChanged, Old: old, New: new}}
}

// diffObject walks the sorted union of both key sets so the record sequence
// is reproducible regardless of map iteration order.
func diffObject(path Path, old, new tree.Object) []Record {
	keys := old.SortedKeys()
	for _, k := range new.SortedKeys() {
		if _, ok := old[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var records []Record
	for _, k := range keys {
		oldVal, inOld := old[k]
		newVal, inNew := new[k]
		child := path.Key(k)
		switch {
		case inOld && inNew:
			records = append(records, diffNode(child, oldVal, newVal)...)
		case inOld:
			records = append(records, Record{Path: child, Kind: KindRemoved, Old: oldVal})
		default:
			records = append(records, Record{Path: child, Kind: KindAdded, New: newVal})
		}
	}
	return records
}

// diffArray compares positionally by index; elements are never matched by
// content, so an insertion in the middle reports as changes at every
// following index.
func diffArray(path Path, old, new tree.Array) []Record {
	var records []Record
	n := max(len(old), len(new))
	for i := 0; i < n; i++ {
		child := path.At(i)
		switch {
		case i < len(old) && i < len(new):
			records = append(records, diffNode(child, old[i], new[i])...)
		case i < len(old):
			records = append(records, Record{Path: child, Kind: KindRemoved, Old: old[i]})
		default:
			records = append(records, Record{Path: child, Kind: KindAdded, New: new[i]})
		}
	}
	return records
}
