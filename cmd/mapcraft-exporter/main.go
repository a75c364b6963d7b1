package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
	"github.com/flightaware/mapcraft-exporter/pkg/export"
	"github.com/flightaware/mapcraft-exporter/pkg/geo"
	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/metrics"
	"github.com/flightaware/mapcraft-exporter/pkg/pipeline"
	"github.com/flightaware/mapcraft-exporter/pkg/preview"
	"github.com/flightaware/mapcraft-exporter/pkg/source"
	"github.com/flightaware/mapcraft-exporter/pkg/style"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"golang.org/x/time/rate"
)

const (
	metricsShutdownTimeout = time.Duration(5) * time.Second
	verifyTimeout          = time.Duration(15) * time.Second
)

type Args struct {
	From        string        `arg:"--from" help:"first corner of the area, as lng,lat"`
	To          string        `arg:"--to" help:"opposite corner of the area, as lng,lat"`
	TilesFile   string        `arg:"-f,--file" help:"select the tiles listed in a file where each line is a z/x/y tile coordinate"`
	Zoom        int           `arg:"--zoom" default:"22" help:"target zoom requested from the source"`
	MinZoom     int           `arg:"--min-zoom" help:"lowest zoom the source holds data for (nebula defaults to 3)"`
	MaxZoom     int           `arg:"--max-zoom" help:"highest zoom the source holds data for; areas are covered at --zoom clamped to it (nebula defaults to 17)"`
	Source      string        `arg:"--source,env:MAPCRAFT_SOURCE" default:"nebula" help:"tile source: nebula, mvt or dir"`
	Endpoint    string        `arg:"--endpoint,env:MAPCRAFT_ENDPOINT" help:"nebula endpoint, mvt url template ({z}/{x}/{y}/{key}) or tile directory; with --verify, the key check endpoint"`
	Key         string        `arg:"--key,env:NEBULA_KEY" help:"upstream api key"`
	Layers      string        `arg:"--layers" help:"comma-delimited layer kinds to request (default all)"`
	Rate        float64       `arg:"--rate" default:"2" help:"upstream requests per second, 0 for unlimited"`
	Verify      bool          `arg:"--verify" help:"check the api key against the nebula endpoint and exit"`
	Archive     string        `arg:"--archive" help:"keep raw tiles in a directory or .mbtiles file ('-' only logs them)"`
	Sink        string        `arg:"--sink,env:MAPCRAFT_SINK" default:"file" help:"export sink: file, postgres or redis"`
	Output      string        `arg:"-o,--output" default:"." help:"output directory for the file sink"`
	Gzip        bool          `arg:"--gzip" help:"gzip documents written by the file sink"`
	Dsn         string        `arg:"-d,--dsn,env:DATABASE_URL" help:"database connection string (dsn) for the postgres sink"`
	Table       string        `arg:"--table" default:"exports" help:"table for the postgres sink"`
	RedisAddr   string        `arg:"--redis-addr,env:REDIS_ADDR" help:"address for the redis sink"`
	RedisPass   string        `arg:"--redis-pass,env:REDIS_PASSWORD" help:"password for the redis sink"`
	RedisDB     int           `arg:"--redis-db,env:REDIS_DB" help:"database for the redis sink"`
	RedisPrefix string        `arg:"--redis-prefix" default:"mapcraft:export:" help:"key prefix for the redis sink"`
	RedisTTL    time.Duration `arg:"--redis-ttl" default:"24h" help:"expiry of exported documents in redis, 0 to keep"`
	Rules       string        `arg:"--rules" help:"YAML rule overrides to apply at start"`
	Preview     string        `arg:"--preview" help:"redraw a PNG preview at this path after every change"`
	Interactive bool          `arg:"-i,--interactive" help:"read editing commands from stdin"`
	LogLevel    string        `arg:"--log-level,env:LOG_LEVEL" default:"info" help:"debug, info, warn or error"`
	LogFormat   string        `arg:"--log-format,env:LOG_FORMAT" default:"text" help:"text or json"`
	MetricsAddr string        `arg:"--metrics-addr,env:METRICS_ADDR" help:"serve prometheus metrics on this address"`
}

func (Args) Description() string {
	return "select map tiles, classify roads and regions, and export them for the block builder"
}

// parsePoint reads a lng,lat pair
func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("expected lng,lat: %q", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q: %w", parts[0], err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q: %w", parts[1], err)
	}
	return orb.Point{lng, lat}, nil
}

// parseLayers reads a comma-delimited list of layer kinds
func parseLayers(s string) ([]source.LayerKind, error) {
	if s == "" {
		return nil, nil
	}
	var kinds []source.LayerKind
	for _, name := range strings.Split(s, ",") {
		k := source.ParseLayerKind(strings.TrimSpace(name))
		if k == source.LayerUnknown {
			return nil, fmt.Errorf("unknown layer %q", name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func archiveFormat(kind string) tileutils.MbTilesFormat {
	if kind == "nebula" {
		return tileutils.MbTilesFormatJSON
	}
	return tileutils.MbTilesFormatPbf
}

// newAggregator wires the fetcher and decoder for args.Source
func newAggregator(args Args, archive *tileutils.Archiver) (*source.Aggregator, error) {
	kinds, err := parseLayers(args.Layers)
	if err != nil {
		return nil, err
	}
	agg := &source.Aggregator{
		Endpoint:   args.Endpoint,
		Projection: source.DefaultProjection,
		Kinds:      kinds,
		Key:        args.Key,
		Archive:    archive,
	}
	switch args.Source {
	case "nebula":
		if agg.Endpoint == "" {
			agg.Endpoint = source.DefaultNebulaEndpoint
		}
		agg.Fetcher = &source.NebulaFetcher{Limiter: newLimiter(args.Rate)}
		agg.Decoder = source.NebulaDecoder{}
	case "mvt":
		if args.Endpoint == "" {
			return nil, fmt.Errorf("the mvt source needs --endpoint with a url template")
		}
		agg.Fetcher = &source.MVTFetcher{URLTemplate: args.Endpoint, Limiter: newLimiter(args.Rate)}
		agg.Decoder = source.MVTDecoder{}
	case "dir":
		if args.Endpoint == "" {
			return nil, fmt.Errorf("the dir source needs --endpoint with a tile directory")
		}
		agg.Fetcher = &source.DirFetcher{Dir: args.Endpoint}
		agg.Decoder = source.MVTDecoder{}
		if tj, err := tileutils.ParseTileJSON(args.Endpoint + "/tiles.json"); err == nil && tileutils.MbTilesFormat(tj.Format) == tileutils.MbTilesFormatJSON {
			agg.Decoder = source.NebulaDecoder{}
		}
	default:
		return nil, fmt.Errorf("unknown source %q", args.Source)
	}
	return agg, nil
}

// newSink opens the export sink for args.Sink
func newSink(ctx context.Context, args Args) (export.Sink, func(), error) {
	switch args.Sink {
	case "file":
		return &export.FileSink{Dir: args.Output, Compress: args.Gzip}, func() {}, nil
	case "postgres":
		if args.Dsn == "" {
			return nil, nil, fmt.Errorf("the postgres sink needs --dsn")
		}
		sink, closeDB, err := export.NewPostgresSink(ctx, args.Dsn, args.Table)
		if err != nil {
			return nil, nil, err
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
		return sink, closeDB, nil
	case "redis":
		client := export.OpenRedis(args.RedisAddr, args.RedisPass, args.RedisDB)
		if client == nil {
			return nil, nil, fmt.Errorf("the redis sink needs --redis-addr")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("pinging redis: %w", err)
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.L().Warn("redis_close", "err", err)
			}
		}
		return &export.RedisSink{Client: client, Prefix: args.RedisPrefix, TTL: args.RedisTTL}, closeClient, nil
	}
	return nil, nil, fmt.Errorf("unknown sink %q", args.Sink)
}

// newArchive opens the raw tile archive, or returns nil when none is asked for
func newArchive(args Args) (*tileutils.Archiver, func(), error) {
	if args.Archive == "" {
		return nil, func() {}, nil
	}
	kinds, err := parseLayers(args.Layers)
	if err != nil {
		return nil, nil, err
	}
	if len(kinds) == 0 {
		kinds = source.AllLayerKinds
	}
	format := archiveFormat(args.Source)
	tj := tileutils.NewTileJSON("mapcraft-"+args.Source, format, nil, source.LayerNames(kinds))
	tj.MinZoom, tj.MaxZoom = args.Zoom, args.Zoom
	return tileutils.NewArchiver(args.Archive, tj, tileutils.CreateMetadataOptions{
		Filename: args.Archive,
		Format:   format,
	})
}

// zoomRange is the source's data zoom range; nebula has a built-in one
func zoomRange(args Args) tileutils.ZoomRange {
	r := tileutils.ZoomRange{Min: args.MinZoom, Max: args.MaxZoom}
	if r.Min == 0 && r.Max == 0 && args.Source == "nebula" {
		return source.NebulaZoomRange
	}
	return r
}

// newSession builds the session run() drives
func newSession(args Args, src pipeline.TileSource, sink export.Sink) *pipeline.Session {
	deps := pipeline.Deps{
		Source:   src,
		Geo:      geo.WebMercator{},
		Exporter: &export.Serializer{Projector: geo.WebMercator{}, Sink: sink},
	}
	if args.Preview != "" {
		deps.Redraw = redrawTo(args.Preview)
	}
	return pipeline.New(deps, pipeline.Options{Zoom: args.Zoom, ZoomRange: zoomRange(args)})
}

// redrawTo returns a hook that rewrites the preview PNG at path
func redrawTo(path string) func(pipeline.Snapshot) {
	return func(snap pipeline.Snapshot) {
		anchor := snap.Anchor
		err := preview.SavePNG(path, snap.Elements, previewOptions(&anchor))
		if err != nil {
			logger.L().Warn("preview_failed", "path", path, "err", err)
			return
		}
		logger.L().Debug("preview_written", "path", path, "gen", snap.Generation)
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("metrics_server", "addr", addr, "err", err)
		}
	}()
	logger.L().Info("metrics_listening", "addr", addr)
	return srv
}

// selectInitial runs the selection given on the command line, if any
func selectInitial(ctx context.Context, args Args, s *pipeline.Session) (bool, error) {
	switch {
	case args.TilesFile != "":
		tiles, err := tileutils.TilesFromFile(args.TilesFile)
		if err != nil {
			return false, err
		}
		_, err = s.SelectTiles(ctx, tiles)
		return true, err
	case args.From != "" || args.To != "":
		c1, err := parsePoint(args.From)
		if err != nil {
			return false, err
		}
		c2, err := parsePoint(args.To)
		if err != nil {
			return false, err
		}
		_, err = s.SelectArea(ctx, c1, c2)
		return true, err
	}
	return false, nil
}

func run(ctx context.Context, args Args) error {
	if args.Verify {
		vctx, cancel := context.WithTimeout(ctx, verifyTimeout)
		defer cancel()
		if err := (&source.NebulaFetcher{}).Verify(vctx, args.Endpoint, args.Key); err != nil {
			return err
		}
		fmt.Println("key ok")
		return nil
	}

	archive, closeArchive, err := newArchive(args)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer closeArchive()

	agg, err := newAggregator(args, archive)
	if err != nil {
		return err
	}
	sink, closeSink, err := newSink(ctx, args)
	if err != nil {
		return fmt.Errorf("opening sink: %w", err)
	}
	defer closeSink()

	session := newSession(args, agg, sink)

	if args.Rules != "" {
		o, err := style.LoadOverrides(args.Rules)
		if err != nil {
			return err
		}
		if _, err := session.ApplyOverrides(o); err != nil {
			return err
		}
		logger.L().Info("rules_loaded", "path", args.Rules)
	}

	selected, err := selectInitial(ctx, args, session)
	if err != nil {
		if !args.Interactive {
			return err
		}
		fmt.Fprintf(os.Stderr, "selection failed: %v\n", err)
	}

	if args.Interactive {
		c := &console{session: session, out: os.Stdout, preview: args.Preview}
		return c.loop(ctx, os.Stdin)
	}
	if !selected {
		return fmt.Errorf("nothing to do: give --from and --to, --file, or --interactive")
	}
	id, err := session.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func main() {
	// a missing .env is fine; flags and the environment still apply
	_ = godotenv.Load()

	var args Args
	arg.MustParse(&args)
	logger.Setup(args.LogLevel, args.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.MetricsAddr != "" {
		srv := serveMetrics(args.MetricsAddr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	if err := run(ctx, args); err != nil {
		logger.L().Error("exiting", "type", apperrors.GetType(err), "err", err)
		stop()
		os.Exit(1)
	}
}
