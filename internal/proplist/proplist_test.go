package proplist

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/eventsound/internal/sounderr"
)

func TestFromMap_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 5, 40} {
		t.Run(fmt.Sprintf("%d pairs", n), func(t *testing.T) {
			in := make(map[string]string, n)
			for i := range n {
				in[fmt.Sprintf("application.key%02d", i)] = fmt.Sprintf("välue %d", i)
			}

			p, err := FromMap(in)
			require.NoError(t, err)

			assert.Equal(t, n, p.Len())
			assert.Equal(t, in, p.Map())
		})
	}
}

func TestFromMap_SortedOrder(t *testing.T) {
	p, err := FromMap(map[string]string{
		EventID:         "bell",
		ApplicationName: "test",
		MediaRole:       "event",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{ApplicationName, EventID, MediaRole}, p.Keys())
}

func TestFromMap_InvalidKey(t *testing.T) {
	tests := []string{"", "has space", "tab\tkey", "ünicode"}

	for _, key := range tests {
		t.Run(fmt.Sprintf("%q", key), func(t *testing.T) {
			_, err := FromMap(map[string]string{key: "x"})
			assert.ErrorIs(t, err, sounderr.ErrInvalid)
		})
	}
}

func TestSets_KeepsPosition(t *testing.T) {
	p := New()
	require.NoError(t, p.Sets("a", "1"))
	require.NoError(t, p.Sets("b", "2"))
	require.NoError(t, p.Sets("a", "3"))

	assert.Equal(t, []string{"a", "b"}, p.Keys())
	assert.Equal(t, "3", p.Get("a"))
}

func TestUnset(t *testing.T) {
	p := New()
	require.NoError(t, p.Sets("a", "1"))
	require.NoError(t, p.Sets("b", "2"))

	p.Unset("a")
	p.Unset("missing")

	assert.Equal(t, []string{"b"}, p.Keys())
	_, ok := p.Gets("a")
	assert.False(t, ok)
}

func TestMerge(t *testing.T) {
	base, err := FromMap(map[string]string{ApplicationName: "app", CanberraVolume: "0"})
	require.NoError(t, err)
	play, err := FromMap(map[string]string{EventID: "bell", CanberraVolume: "-6"})
	require.NoError(t, err)

	merged := base.Merge(play)

	assert.Equal(t, map[string]string{
		ApplicationName: "app",
		CanberraVolume:  "-6",
		EventID:         "bell",
	}, merged.Map())
	// inputs untouched
	assert.Equal(t, "0", base.Get(CanberraVolume))
	assert.Equal(t, 2, play.Len())
}

func TestNilProplist(t *testing.T) {
	var p *Proplist

	assert.Equal(t, 0, p.Len())
	assert.Empty(t, p.Keys())
	assert.Empty(t, p.Map())
	assert.Equal(t, "", p.Get(EventID))
	assert.Equal(t, 0, p.Clone().Len())
	p.Unset(EventID)
}

func TestNames_CoverKeys(t *testing.T) {
	seen := make(map[string]bool)
	for name, key := range Names {
		assert.True(t, ValidKey(key), name)
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
	assert.Equal(t, EventID, Names["EVENT_ID"])
}
