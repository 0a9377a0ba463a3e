package diff

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trappiz/tesla-order-status/internal/tree"
)

func mustDecode(t *testing.T, src string) tree.Node {
	t.Helper()
	n, err := tree.Decode([]byte(src))
	require.NoError(t, err)
	return n
}

func TestDiffIdenticalTreeIsEmpty(t *testing.T) {
	srcs := []string{
		`null`,
		`"RN114017019"`,
		`{"order":{"vin":null,"tasks":[1,2,{"a":true}]}}`,
		`[{"x":[[]]},3.5]`,
	}
	for _, src := range srcs {
		n := mustDecode(t, src)
		assert.Empty(t, Diff(n, n), "diff of %s against itself", src)
		assert.Empty(t, Diff(n, tree.Clone(n)), "diff of %s against its clone", src)
	}
}

func TestDiffChangedAndAdded(t *testing.T) {
	old := mustDecode(t, `{"vin": null}`)
	new := mustDecode(t, `{"vin": "131232", "userId": "10000000"}`)

	records := Diff(old, new)
	require.Len(t, records, 2)

	assert.Equal(t, "userId", records[0].Path.String())
	assert.Equal(t, KindAdded, records[0].Kind)
	assert.Nil(t, records[0].Old)
	assert.Equal(t, tree.String("10000000"), records[0].New)

	assert.Equal(t, "vin", records[1].Path.String())
	assert.Equal(t, KindChanged, records[1].Kind)
	assert.Equal(t, tree.Null{}, records[1].Old)
	assert.Equal(t, tree.String("131232"), records[1].New)
}

func TestDiffRemoved(t *testing.T) {
	old := mustDecode(t, `{"ritzbitz": "x", "keep": 1}`)
	new := mustDecode(t, `{"keep": 1}`)

	records := Diff(old, new)
	require.Len(t, records, 1)
	assert.Equal(t, "ritzbitz", records[0].Path.String())
	assert.Equal(t, KindRemoved, records[0].Kind)
	assert.Equal(t, tree.String("x"), records[0].Old)
	assert.Nil(t, records[0].New)
}

func TestDiffNoScalarCoercion(t *testing.T) {
	records := Diff(mustDecode(t, `{"n": 1}`), mustDecode(t, `{"n": "1"}`))
	require.Len(t, records, 1)
	assert.Equal(t, KindChanged, records[0].Kind)

	records = Diff(mustDecode(t, `{"n": 1}`), mustDecode(t, `{"n": 1.0}`))
	require.Len(t, records, 1)
	assert.Equal(t, KindChanged, records[0].Kind)
}

func TestDiffArrayPositional(t *testing.T) {
	old := mustDecode(t, `{"tasks": ["a", "b", "c"]}`)
	new := mustDecode(t, `{"tasks": ["a", "x"]}`)

	records := Diff(old, new)
	require.Len(t, records, 2)

	assert.Equal(t, "tasks[1]", records[0].Path.String())
	assert.Equal(t, KindChanged, records[0].Kind)

	assert.Equal(t, "tasks[2]", records[1].Path.String())
	assert.Equal(t, KindRemoved, records[1].Kind)
	assert.Equal(t, tree.String("c"), records[1].Old)
}

func TestDiffArrayGrowth(t *testing.T) {
	records := Diff(mustDecode(t, `[1]`), mustDecode(t, `[1, 2, 3]`))
	require.Len(t, records, 2)
	assert.Equal(t, "[1]", records[0].Path.String())
	assert.Equal(t, KindAdded, records[0].Kind)
	assert.Equal(t, "[2]", records[1].Path.String())
	assert.Equal(t, KindAdded, records[1].Kind)
}

func TestDiffContainerMismatchDegrades(t *testing.T) {
	// Object replaced by array at the same path: whole-subtree swap, no error.
	old := mustDecode(t, `{"tasks": {"a": 1}}`)
	new := mustDecode(t, `{"tasks": [1]}`)

	records := Diff(old, new)
	require.Len(t, records, 2)

	assert.Equal(t, "tasks", records[0].Path.String())
	assert.Equal(t, KindRemoved, records[0].Kind)
	assert.Equal(t, tree.Object{"a": tree.Number("1")}, records[0].Old)

	assert.Equal(t, "tasks", records[1].Path.String())
	assert.Equal(t, KindAdded, records[1].Kind)
	assert.Equal(t, tree.Array{tree.Number("1")}, records[1].New)
}

func TestDiffScalarToCompositeIsChanged(t *testing.T) {
	records := Diff(mustDecode(t, `{"v": null}`), mustDecode(t, `{"v": {"a": 1}}`))
	require.Len(t, records, 1)
	assert.Equal(t, KindChanged, records[0].Kind)
}

func TestDiffDeterministicOrder(t *testing.T) {
	old := mustDecode(t, `{"z": 1, "a": 1, "m": {"q": 1, "b": 2}}`)
	new := mustDecode(t, `{"z": 2, "a": 2, "m": {"q": 2, "b": 1}, "c": 3}`)

	want := []string{"a", "c", "m.b", "m.q", "z"}
	for i := 0; i < 20; i++ {
		records := Diff(old, new)
		require.Len(t, records, len(want))
		for j, r := range records {
			assert.Equal(t, want[j], r.Path.String())
		}
	}
}

var roundTripPairs = []struct {
	name string
	old  string
	new  string
}{
	{"scalar change", `{"vin": null}`, `{"vin": "131232", "userId": "10000000"}`},
	{"removal", `{"ritzbitz": "x", "keep": 1}`, `{"keep": 1}`},
	{"nested", `{"details":{"tasks":{"scheduling":{"w":"A"},"extra":1}}}`, `{"details":{"tasks":{"scheduling":{"w":"B"}}}}`},
	{"array shrink", `{"t":["a","b","c","d"]}`, `{"t":["a","x"]}`},
	{"array grow", `{"t":["a"]}`, `{"t":["a","b","c"]}`},
	{"container swap", `{"t":{"a":1},"u":[1,2]}`, `{"t":[1],"u":{"b":2}}`},
	{"swap inside array", `{"t":[{"a":1},"keep","drop"]}`, `{"t":[[1],"keep"]}`},
	{"root swap", `{"a":1}`, `[1]`},
	{"empty to full", `{}`, `{"order":{"vin":"X"},"refs":[1,2]}`},
}

func TestApplyRoundTrip(t *testing.T) {
	for _, tt := range roundTripPairs {
		t.Run(tt.name, func(t *testing.T) {
			old := mustDecode(t, tt.old)
			new := mustDecode(t, tt.new)

			got, err := Apply(old, Diff(old, new))
			require.NoError(t, err)
			assert.True(t, tree.Equal(new, got), "reconstructed tree differs")
		})
	}
}

func TestInvertRoundTrip(t *testing.T) {
	for _, tt := range roundTripPairs {
		t.Run(tt.name, func(t *testing.T) {
			old := mustDecode(t, tt.old)
			new := mustDecode(t, tt.new)

			got, err := Apply(new, Invert(Diff(old, new)))
			require.NoError(t, err)
			assert.True(t, tree.Equal(old, got), "inverted script did not restore old tree")
		})
	}
}

func TestInvertSwapsKinds(t *testing.T) {
	old := mustDecode(t, `{"a": 1, "b": 2}`)
	new := mustDecode(t, `{"a": 3, "c": 4}`)

	forward := Diff(old, new)
	backward := Diff(new, old)
	inverted := Invert(forward)

	require.Len(t, inverted, len(backward))
	for i := range inverted {
		assert.True(t, inverted[i].Path.Equal(backward[i].Path))
		assert.Equal(t, backward[i].Kind, inverted[i].Kind)
		assert.Equal(t, backward[i].Old, inverted[i].Old)
		assert.Equal(t, backward[i].New, inverted[i].New)
	}
}

func TestApplyOrphanPathFails(t *testing.T) {
	rec := Record{Path: Path{}.Key("missing").Key("deep"), Kind: KindChanged, New: tree.Number("1")}
	_, err := Apply(mustDecode(t, `{"a": 1}`), []Record{rec})
	assert.Error(t, err)
}

func TestRecordJSONRoundTrip(t *testing.T) {
	old := mustDecode(t, `{"order":{"vin":null,"tasks":["a",2]}}`)
	new := mustDecode(t, `{"order":{"vin":"5YJ","tasks":["a"]}}`)
	records := Diff(old, new)
	require.NotEmpty(t, records)

	data, err := json.Marshal(records)
	require.NoError(t, err)

	var decoded []Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, len(records))
	for i := range records {
		assert.True(t, records[i].Path.Equal(decoded[i].Path))
		assert.Equal(t, records[i].Kind, decoded[i].Kind)
		assert.Equal(t, records[i].Old, decoded[i].Old)
		assert.Equal(t, records[i].New, decoded[i].New)
	}
}

func TestRecordUnmarshalRejectsUnknownKind(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"path":[],"kind":"mutated"}`), &r)
	assert.Error(t, err)
}

func TestPathHasPrefix(t *testing.T) {
	p := Path{}.Key("details").Key("tasks").Key("registration").Key("translations").Key("de")
	assert.True(t, p.HasPrefix("details.tasks.registration.translations"))
	assert.False(t, p.HasPrefix("details.tasks.scheduling"))
}

func TestDiffGolden(t *testing.T) {
	old := mustDecode(t, `{"order":{"vin":null,"mktOptions":"APBS,IBB1","orderStatus":"BOOKED"},"details":{"tasks":{"scheduling":{"deliveryWindowDisplay":"10 Oct - 24 Oct"}}}}`)
	new := mustDecode(t, `{"order":{"vin":"LRW3E7EK","mktOptions":"APBS,IBB1","orderStatus":"BOOKED","userId":10000000},"details":{"tasks":{"scheduling":{"deliveryWindowDisplay":"03 Oct - 17 Oct"}}}}`)

	data, err := json.Marshal(Diff(old, new))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "order_update", data)
}
