package codes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func used(ids ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestAllocateDesiredFreeAcceptedVerbatim(t *testing.T) {
	cands, err := Generate('B', 2, nil)
	require.NoError(t, err)

	got := Allocate("A2-B1", used("A1"), cands, nil)
	assert.Equal(t, "A2-B1", got)
}

func TestAllocateIdempotent(t *testing.T) {
	cands, err := Generate('C', 3, nil)
	require.NoError(t, err)
	u := used("A1", "A2")

	first := Allocate("", u, cands, nil)
	second := Allocate("", u, cands, nil)
	assert.Equal(t, first, second)
	assert.Equal(t, "A1-B1", first)
}

func TestAllocateCollisionReturnsFresh(t *testing.T) {
	cands, err := Generate('B', 2, nil)
	require.NoError(t, err)
	u := used("A1")

	got := Allocate("A1", u, cands, nil)
	assert.NotEqual(t, "A1", got)
	_, taken := u[got]
	assert.False(t, taken)
}

func TestAllocateExtendsPartialDesired(t *testing.T) {
	cands, err := Generate('B', 2, nil)
	require.NoError(t, err)

	// B2 занят — дополняем токеном другой буквы, слияние отсортировано по букве
	got := Allocate("B2", used("B2"), cands, nil)
	assert.Equal(t, "A1-B2", got)
}

func TestAllocatePoolExhausted(t *testing.T) {
	cands := []string{"A1", "A2"}
	got := Allocate("", used("A1", "A2"), cands, nil)
	assert.Equal(t, NoCodesMessage, got)
}

func TestAllocateAllCandidatesUsedNeverPanics(t *testing.T) {
	cands, err := Generate('B', 2, nil)
	require.NoError(t, err)
	u := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		u[c] = struct{}{}
	}
	assert.NotPanics(t, func() {
		assert.Equal(t, NoCodesMessage, Allocate("", u, cands, nil))
	})
}

func TestAllocateMissingFieldsBlocksGeneration(t *testing.T) {
	cands, err := Generate('B', 2, nil)
	require.NoError(t, err)

	got := Allocate("", nil, cands, []string{"Site", "Year"})
	assert.Equal(t, "Fill out to generate an ID: Site, Year", got)
}

func TestAllocateEmptyPool(t *testing.T) {
	assert.Equal(t, NoCodesMessage, Allocate("", nil, nil, nil))
}
