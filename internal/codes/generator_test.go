package codes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate('C', 3, nil)
	require.NoError(t, err)
	b, err := Generate('C', 3, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateSmallSpace(t *testing.T) {
	got, err := Generate('B', 2, nil)
	require.NoError(t, err)

	// (2+1)^2 - 1 комбинаций
	assert.Len(t, got, 8)
	assert.Equal(t, []string{"A1", "A1-B1", "A1-B2", "A2", "A2-B1", "A2-B2", "B1", "B2"}, got)
	assert.NotContains(t, got, "A1-A2")
}

func TestGenerateBlocklist(t *testing.T) {
	block := map[string]struct{}{"A1": {}}
	got, err := Generate('B', 2, block)
	require.NoError(t, err)

	for _, cand := range got {
		for _, tok := range SplitTokens(cand) {
			assert.NotEqual(t, "A1", tok, "candidate %s contains blocked token", cand)
		}
	}
	assert.Equal(t, []string{"A2", "A2-B1", "A2-B2", "B1", "B2"}, got)
}

func TestGenerateCapacityExceeded(t *testing.T) {
	// (10+1)^5 - 1 = 161050 — сильно за потолком
	_, err := Generate('E', 10, nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// (10+1)^4 - 1 = 14640 — помещается
	got, err := Generate('D', 10, nil)
	require.NoError(t, err)
	assert.Len(t, got, 14640)
}

func TestGenerateCapacityCountedBeforeFilter(t *testing.T) {
	// блок-лист не спасает от потолка: лимит считается до фильтрации
	block := make(map[string]struct{})
	for _, l := range []byte{'A', 'B', 'C', 'D', 'E'} {
		for n := 1; n <= 10; n++ {
			block[Token(l, n)] = struct{}{}
		}
	}
	_, err := Generate('E', 10, block)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestGenerateBounds(t *testing.T) {
	_, err := Generate('K', 2, nil)
	assert.Error(t, err)
	_, err = Generate('B', 11, nil)
	assert.Error(t, err)
	_, err = Generate('B', 0, nil)
	assert.Error(t, err)
}

func TestSplitTokens(t *testing.T) {
	assert.Equal(t, []string{"A1", "B7"}, SplitTokens("A1-B7"))
	assert.Nil(t, SplitTokens(""))
	assert.Nil(t, SplitTokens("   "))
	assert.Equal(t, []string{"C4"}, SplitTokens("C4"))
}
