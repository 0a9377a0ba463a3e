package diff

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/trappiz/tesla-order-status/internal/tree"
)

// Kind categorizes a change record.
type Kind string

const (
	// KindAdded indicates the path exists only in the new tree.
	KindAdded Kind = "added"

	// KindRemoved indicates the path exists only in the old tree.
	KindRemoved Kind = "removed"

	// KindChanged indicates the path exists in both trees with differing values.
	KindChanged Kind = "changed"
)

// Step is one hop in a path: either an object key or an array index.
type Step struct {
	Key     string `json:"key,omitempty"`
	Index   int    `json:"index,omitempty"`
	IsIndex bool   `json:"is_index,omitempty"`
}

// Path locates a node in a tree as the full key/index chain from the root.
type Path []Step

// Key returns p extended with an object key step. The receiver is copied,
// never aliased, so sibling branches cannot clobber each other's paths.
func (p Path) Key(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Step{Key: key})
}

// At returns p extended with an array index step.
func (p Path) At(index int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Step{Index: index, IsIndex: true})
}

// String renders the path in dotted form, e.g. "details.tasks[2].status".
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if s.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	return b.String()
}

// Equal reports whether two paths address the same node.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the dotted rendering of p starts with prefix.
// Used to suppress presentation-only keys from status classification.
func (p Path) HasPrefix(prefix string) bool {
	s := p.String()
	return strings.HasPrefix(s, prefix)
}

// Record is one immutable change between two consecutive snapshots.
// Old is set for Removed and Changed, New for Added and Changed.
type Record struct {
	Path Path
	Kind Kind
	Old  tree.Node
	New  tree.Node
}

// recordJSON is the wire form of a Record; Old/New carry raw JSON so the
// tagged variants survive storage round trips.
type recordJSON struct {
	Path Path            `json:"path"`
	Kind Kind            `json:"kind"`
	Old  json.RawMessage `json:"old,omitempty"`
	New  json.RawMessage `json:"new,omitempty"`
}

// MarshalJSON implements json.Marshaler for Record.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{Path: r.Path, Kind: r.Kind}
	if r.Path == nil {
		out.Path = Path{}
	}
	if r.Old != nil {
		b, err := tree.Encode(r.Old)
		if err != nil {
			return nil, fmt.Errorf("marshal record old value: %w", err)
		}
		out.Old = b
	}
	if r.New != nil {
		b, err := tree.Encode(r.New)
		if err != nil {
			return nil, fmt.Errorf("marshal record new value: %w", err)
		}
		out.New = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler for Record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case KindAdded, KindRemoved, KindChanged:
	default:
		return fmt.Errorf("unknown change kind %q", raw.Kind)
	}
	r.Path = raw.Path
	r.Kind = raw.Kind
	r.Old, r.New = nil, nil
	if len(raw.Old) > 0 {
		n, err := tree.Decode(raw.Old)
		if err != nil {
			return fmt.Errorf("unmarshal record old value: %w", err)
		}
		r.Old = n
	}
	if len(raw.New) > 0 {
		n, err := tree.Decode(raw.New)
		if err != nil {
			return fmt.Errorf("unmarshal record new value: %w", err)
		}
		r.New = n
	}
	return nil
}
