package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"cooling-towers/internal/config"
	"cooling-towers/internal/detect"
	"cooling-towers/internal/fetch"
	"cooling-towers/internal/georef"
	"cooling-towers/internal/logger"
	"cooling-towers/internal/mosaic"
	"cooling-towers/internal/scan"
	"cooling-towers/internal/store"
	"cooling-towers/internal/tile"

	"github.com/joho/godotenv"
)

// 文档注释：单格调试工具
// 背景：排查某个格子时不必跑完整作业；所有子命令只读影像源与检测引擎，不写数据库。
func main() {
	_ = godotenv.Load(".env")
	logger.Setup()
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	job, err := config.FromEnv(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	ctx := context.Background()
	args := os.Args[2:]
	switch os.Args[1] {
	case "tiles":
		err = runTiles(ctx, job, args, os.Stdout)
	case "detect":
		err = runDetect(ctx, job, args, os.Stdout)
	case "cell":
		err = runCell(ctx, job, args, os.Stdout)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  tiles -col C -row R [-save-to DIR] [-mosaic] [-detect] [-locate]")
	fmt.Fprintln(w, "  detect -file F [-col C -row R]")
	fmt.Fprintln(w, "  cell -col C -row R")
	fmt.Fprintln(w, "  help")
}

func cellFlags(fs *flag.FlagSet) (*int, *int) {
	col := fs.Int("col", -1, "grid column at zoom 20")
	row := fs.Int("row", -1, "grid row at zoom 20")
	return col, row
}

func requireBase(job config.Job) error {
	if job.TileBaseURL == "" {
		return errors.New("TILE_BASE_URL or TILE_QUAD_WORD is required")
	}
	return nil
}

func engineFor(job config.Job) (*detect.HTTPEngine, error) {
	if job.DetectEndpoint == "" {
		return nil, errors.New("DETECT_ENDPOINT is required")
	}
	return detect.NewHTTP(job.DetectEndpoint, job.Thresholds, job.DetectTimeout), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runTiles：下载四张瓦片，可选落盘、拼图、检测、定位
func runTiles(ctx context.Context, job config.Job, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("tiles", flag.ContinueOnError)
	col, row := cellFlags(fs)
	saveTo := fs.String("save-to", "", "directory for {col}_{row}_{i}.jpg tiles and {col}_{row}.jpg mosaic")
	doMosaic := fs.Bool("mosaic", false, "compose the 2x2 mosaic")
	doDetect := fs.Bool("detect", false, "run detection on the mosaic (implies -mosaic)")
	doLocate := fs.Bool("locate", false, "convert detections to EPSG:3857 (implies -detect)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireBase(job); err != nil {
		return err
	}
	cell := tile.GridCell{Col: *col, Row: *row}
	*doDetect = *doDetect || *doLocate
	*doMosaic = *doMosaic || *doDetect

	f := fetch.New(job.Fetch, nil)
	results, ok := f.FetchQuad(ctx, job.TileBaseURL, job.TileZoom, tile.Neighbors(cell))
	for i, r := range results {
		fmt.Fprintf(w, "tile %d %s %s\n", i, r.Outcome, r.URL)
		if r.Present() && *saveTo != "" {
			path := filepath.Join(*saveTo, cell.String()+"_"+strconv.Itoa(i)+".jpg")
			if err := os.MkdirAll(*saveTo, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, r.Tile.Data, 0o644); err != nil {
				return err
			}
		}
	}
	if !*doMosaic {
		return nil
	}
	if !ok {
		return errors.New("quad incomplete, mosaic needs all four tiles")
	}
	img, err := mosaic.Compose(fetch.Tiles(results))
	if err != nil {
		return err
	}
	if *saveTo != "" {
		if err := mosaic.Save(filepath.Join(*saveTo, cell.String()+".jpg"), img); err != nil {
			return err
		}
	}
	if !*doDetect {
		return nil
	}
	return detectAndPrint(ctx, job, img, cell, *doLocate, w)
}

// runDetect：对本地图片运行检测；给出行列号时同时定位
func runDetect(ctx context.Context, job config.Job, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	file := fs.String("file", "", "image file (JPEG/PNG/WebP)")
	col, row := cellFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}
	img, err := mosaic.Load(*file)
	if err != nil {
		return err
	}
	locate := *col >= 0 && *row >= 0
	return detectAndPrint(ctx, job, img, tile.GridCell{Col: *col, Row: *row}, locate, w)
}

func detectAndPrint(ctx context.Context, job config.Job, img image.Image, cell tile.GridCell, locate bool, w io.Writer) error {
	engine, err := engineFor(job)
	if err != nil {
		return err
	}
	dets, err := engine.Detect(ctx, img)
	if err != nil {
		return err
	}
	if !locate {
		return printJSON(w, dets)
	}
	located, err := georef.Locate(dets, cell)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	return printJSON(w, located)
}

// runCell：用进程内索引走一遍完整状态机，输出单格结论
func runCell(ctx context.Context, job config.Job, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("cell", flag.ContinueOnError)
	col, row := cellFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireBase(job); err != nil {
		return err
	}
	engine, err := engineFor(job)
	if err != nil {
		return err
	}
	cell := tile.GridCell{Col: *col, Row: *row}
	mem := store.NewMemory(cell)
	coord := &store.Coordinator{Results: mem, Index: mem, Prov: store.Provenance{Job: job.Name, RunID: job.RunID}}
	sc := scan.New(scan.Options{BaseURL: job.TileBaseURL, Zoom: job.TileZoom, SaveDir: job.SaveDir},
		fetch.New(job.Fetch, nil), engine, coord, logger.L())
	res := sc.ProcessCell(ctx, cell)

	out := struct {
		Cell       tile.GridCell             `json:"cell"`
		State      string                    `json:"state"`
		StoppedAt  string                    `json:"stopped_at"`
		Reason     string                    `json:"reason,omitempty"`
		Marked     bool                      `json:"marked"`
		Error      string                    `json:"error,omitempty"`
		Detections []georef.LocatedDetection `json:"detections"`
	}{
		Cell:       res.Cell,
		State:      res.State.String(),
		StoppedAt:  res.StoppedAt.String(),
		Reason:     res.Reason,
		Marked:     res.Marked,
		Detections: res.Detections,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return printJSON(w, out)
}
