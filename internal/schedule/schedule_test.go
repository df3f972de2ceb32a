package schedule

import (
	"context"
	"testing"

	"cooling-towers/internal/store"
	"cooling-towers/internal/tile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaim(t *testing.T) {
	assert.Equal(t, Partition{Skip: 200, Take: 100}, Claim(2, 100, 5))
	assert.Equal(t, Partition{Skip: 200, Take: 100}, Claim(7, 100, 5), "7 mod 5 = 2")
	assert.Equal(t, Partition{Skip: 0, Take: 100}, Claim(0, 100, 5))
	assert.Equal(t, Partition{Skip: 0, Take: 50}, Claim(3, 50, 0))
}

func TestClaimDisjointWithinPool(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		p := Claim(i, 100, 5)
		assert.False(t, seen[p.Skip])
		seen[p.Skip] = true
	}
}

func TestFetchPartition(t *testing.T) {
	var cells []tile.GridCell
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			cells = append(cells, tile.GridCell{Col: col, Row: row})
		}
	}
	m := store.NewMemory(cells...)

	rows, err := FetchPartition(context.Background(), m, Claim(1, 5, 2))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, tile.GridCell{Col: 1, Row: 1}, rows[0].Cell)
	assert.Equal(t, tile.GridCell{Col: 1, Row: 2}, rows[4].Cell)
	for _, r := range rows {
		assert.False(t, r.Processed)
	}
}
