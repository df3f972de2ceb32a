package georef

import (
	"math"
	"testing"

	"cooling-towers/internal/detect"
	"cooling-towers/internal/tile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const equator = 2 * math.Pi * 6378137

func TestLocateEmpty(t *testing.T) {
	out, err := Locate(nil, tile.GridCell{Col: 198259, Row: 394029})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Locate([]detect.Detection{}, tile.GridCell{Col: -1, Row: -1})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestOriginMatchesWebMercatorTileGrid(t *testing.T) {
	c := tile.GridCell{Col: 198259, Row: 394029}
	o, err := Origin(c)
	require.NoError(t, err)
	n := math.Exp2(tile.Zoom)
	assert.InDelta(t, (float64(c.Col)/n-0.5)*equator, o.X(), 1e-2)
	assert.InDelta(t, (0.5-float64(c.Row)/n)*equator, o.Y(), 1e-2)
}

func TestLocateCentroid(t *testing.T) {
	c := tile.GridCell{Col: 198402, Row: 394067}
	x0y0, err := Origin(c)
	require.NoError(t, err)

	dets := []detect.Detection{{XMin: 120, YMin: 110, XMax: 136, YMax: 146, Confidence: 0.8, Class: 0, Name: "tower"}}
	out, err := Locate(dets, c)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.True(t, got.Located)
	assert.Equal(t, 128.0, got.CentroidXPx)
	assert.Equal(t, 128.0, got.CentroidYPx)
	assert.InDelta(t, x0y0.X()+128*GSD, got.CentroidX3857, 1e-6)
	assert.InDelta(t, x0y0.Y()-128*GSD, got.CentroidY3857, 1e-6)
	assert.Equal(t, dets[0], got.Detection)
}

func TestLocateInvalidCellKeepsPixels(t *testing.T) {
	dets := []detect.Detection{{XMin: 0, YMin: 0, XMax: 10, YMax: 20}}
	out, err := Locate(dets, tile.GridCell{Col: 1 << 21, Row: 3})
	assert.ErrorIs(t, err, tile.ErrInvalidCell)
	require.Len(t, out, 1)
	assert.False(t, out[0].Located)
	assert.Equal(t, 5.0, out[0].CentroidXPx)
	assert.Equal(t, 10.0, out[0].CentroidYPx)
	assert.Zero(t, out[0].CentroidX3857)
}
