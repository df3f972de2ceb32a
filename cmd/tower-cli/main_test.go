package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cooling-towers/internal/config"
	"cooling-towers/internal/detect"
	"cooling-towers/internal/fetch"
	"cooling-towers/internal/tile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func servers(t *testing.T) config.Job {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, tile.Size, tile.Size))))
	body := buf.Bytes()
	tiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(tiles.Close)
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]detect.Detection{{XMin: 120, YMin: 120, XMax: 136, YMax: 136, Confidence: 0.3, Name: "tower"}})
	}))
	t.Cleanup(engine.Close)
	return config.Job{
		Name:           "towers",
		RunID:          "cli",
		TileBaseURL:    tiles.URL,
		TileZoom:       tile.Zoom,
		Fetch:          fetch.Options{Timeout: time.Second, Retries: 0, Backoff: time.Millisecond},
		DetectEndpoint: engine.URL,
		Thresholds:     detect.DefaultThresholds,
		DetectTimeout:  time.Second,
	}
}

func TestTilesSavesQuadAndMosaic(t *testing.T) {
	job := servers(t)
	dir := t.TempDir()
	var out bytes.Buffer
	err := runTiles(context.Background(), job, []string{"-col", "198402", "-row", "394066", "-save-to", dir, "-locate"}, &out)
	require.NoError(t, err)

	for _, name := range []string{"198402_394066_0.jpg", "198402_394066_3.jpg", "198402_394066.jpg"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, 4, strings.Count(out.String(), " present "))
	assert.Contains(t, out.String(), `"centroid_x_3857"`)
	assert.Contains(t, out.String(), `"located": true`)
}

func TestDetectFileWithoutCell(t *testing.T) {
	job := servers(t)
	path := filepath.Join(t.TempDir(), "m.png")
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 512, 512))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var out bytes.Buffer
	require.NoError(t, runDetect(context.Background(), job, []string{"-file", path}, &out))
	var dets []detect.Detection
	require.NoError(t, json.Unmarshal(out.Bytes(), &dets))
	require.Len(t, dets, 1)
	assert.Equal(t, "tower", dets[0].Name)
	assert.NotContains(t, out.String(), "centroid")
}

func TestCellRunsFullStateMachineInMemory(t *testing.T) {
	job := servers(t)
	var out bytes.Buffer
	require.NoError(t, runCell(context.Background(), job, []string{"-col", "198402", "-row", "394066"}, &out))

	var got struct {
		State      string `json:"state"`
		Marked     bool   `json:"marked"`
		Detections []any  `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "indexed", got.State)
	assert.True(t, got.Marked)
	assert.Len(t, got.Detections, 1)
}

func TestMissingBase(t *testing.T) {
	err := runTiles(context.Background(), config.Job{}, []string{"-col", "1", "-row", "1"}, &bytes.Buffer{})
	assert.Error(t, err)
}
