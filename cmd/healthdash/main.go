package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/healthdash/internal/api"
	"github.com/lox/healthdash/internal/config"
	"github.com/lox/healthdash/internal/export"
	"github.com/lox/healthdash/internal/importer"
	"github.com/lox/healthdash/internal/logging"
	"github.com/lox/healthdash/internal/models"
	"github.com/lox/healthdash/internal/source"
	"github.com/lox/healthdash/internal/store"
)

type Globals struct {
	ctx   context.Context
	store *store.Store
}

type CLI struct {
	EnvFile     kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`
	DB          string                   `name:"db" env:"DATABASE_PATH" default:"data/health.db" help:"Path to SQLite database."`
	LogLevel    string                   `env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogJSON     bool                     `name:"log-json" help:"Log as JSON."`
	PresetsFile string                   `env:"PRESETS_FILE" type:"existingfile" help:"YAML file overriding range presets."`

	Serve  ServeCmd  `cmd:"" help:"Serve the dashboard and API."`
	Import ImportCmd `cmd:"" help:"Replace all stored data with an export (path, file://, http(s):// or ftp://)."`
	Series SeriesCmd `cmd:"" help:"Print one metric over a range."`
	Export ExportCmd `cmd:"" help:"Write all records to a Parquet file."`
	Status StatusCmd `cmd:"" help:"Show stored data and recent imports."`
}

func (c *CLI) presets() (config.Presets, error) {
	if c.PresetsFile == "" {
		return config.DefaultPresets(), nil
	}
	return config.LoadPresets(c.PresetsFile)
}

type ServeCmd struct {
	Port           string        `env:"PORT" default:"8080" help:"HTTP port."`
	UploadPassword string        `env:"UPLOAD_PASSWORD" default:"changeme" help:"Password required for uploads."`
	ChartTTL       time.Duration `default:"5m" help:"How long rendered charts are cached."`
}

func (c *ServeCmd) Run(cli *CLI, g *Globals) error {
	presets, err := cli.presets()
	if err != nil {
		return err
	}
	server := api.NewServer(g.store, importer.New(g.store), presets, api.Options{
		Port:           c.Port,
		UploadPassword: c.UploadPassword,
		ChartTTL:       c.ChartTTL,
	})
	return server.Run(g.ctx)
}

type ImportCmd struct {
	Location    string `arg:"" help:"export.zip or export.xml location."`
	BatchSize   int    `default:"5000" help:"Rows per insert batch."`
	DownloadDir string `type:"path" help:"Directory for downloads and extraction (default: a temporary directory)."`
}

func (c *ImportCmd) Run(g *Globals) error {
	dir := c.DownloadDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "healthdash-import-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path, err := source.NewFetcher(dir).Fetch(g.ctx, c.Location)
	if err != nil {
		return fmt.Errorf("fetch export: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		if path, err = importer.ExtractExport(path, dir); err != nil {
			return err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	im := importer.New(g.store)
	im.SetBatchSize(c.BatchSize)
	res, err := im.Import(g.ctx, c.Location, f)
	if err != nil {
		return err
	}

	table := newTable("Table", "Rows")
	rows := [][]string{
		{"records", strconv.Itoa(res.Records)},
		{"activity_summaries", strconv.Itoa(res.ActivitySummaries)},
		{"workouts", strconv.Itoa(res.Workouts)},
		{"filtered", strconv.Itoa(res.Filtered)},
	}
	for reason, n := range res.Skipped {
		rows = append(rows, []string{"skipped: " + reason, strconv.Itoa(n)})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("imported %d rows in %s\n", res.Total(), res.Duration.Round(time.Millisecond))
	return nil
}

type SeriesCmd struct {
	Metric string `required:"" help:"Metric key (glucose, steps, heart_rate, active_calories, resting_energy, walking_running_distance, cycling_distance, exercise_minutes)."`
	Range  string `default:"7d" help:"Range preset."`
	All    bool   `help:"Include ticks without data."`
}

func (c *SeriesCmd) Run(cli *CLI, g *Globals) error {
	presets, err := cli.presets()
	if err != nil {
		return err
	}
	srv := api.NewServer(g.store, nil, presets, api.Options{})
	sr, p, err := srv.Series(g.ctx, c.Metric, c.Range)
	if err != nil {
		return err
	}
	if len(sr.Ticks) == 0 {
		fmt.Println("no data imported")
		return nil
	}

	layout := p.Granularity.LabelLayout()
	values := sr.Floats()
	var rows [][]string
	for i, t := range sr.Ticks {
		v := values[i]
		if v == nil && !c.All {
			continue
		}
		value := "-"
		if v != nil {
			value = strconv.FormatFloat(*v, 'f', -1, 64)
		}
		rows = append(rows, []string{t.Format(layout), value})
	}

	table := newTable("Time", c.Metric)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("%s: %d of %d ticks with data (smoothing %d)\n", p.Key, sr.ValidCount(), len(sr.Ticks), p.Smoothing)
	return nil
}

type ExportCmd struct {
	Out string `required:"" type:"path" help:"Output Parquet file."`
}

func (c *ExportCmd) Run(g *Globals) error {
	n, err := export.WriteRecordsParquetFile(g.ctx, g.store, c.Out)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d records to %s\n", n, c.Out)
	return nil
}

type StatusCmd struct {
	Limit int `default:"10" help:"Number of recent imports to list."`
}

func (c *StatusCmd) Run(g *Globals) error {
	latest, ok, err := g.store.LatestTimestamp(g.ctx)
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("latest measurement: %s\n", models.FormatTimestamp(latest))
	} else {
		fmt.Println("latest measurement: none")
	}

	counts, err := g.store.Counts(g.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("records: %d  activity_summaries: %d  workouts: %d\n", counts.Records, counts.ActivitySummaries, counts.Workouts)

	runs, err := g.store.RecentImportRuns(g.ctx, c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	table := newTable("Started", "Source", "Result", "Records", "Skipped")
	var rows [][]string
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
			if r.ErrorMessage.Valid {
				result = "failed: " + r.ErrorMessage.String
			}
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			result,
			nullInt(r.Records.Int64, r.Records.Valid),
			nullInt(r.Skipped.Int64, r.Skipped.Valid),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func nullInt(v int64, valid bool) string {
	if !valid {
		return "-"
	}
	return strconv.FormatInt(v, 10)
}

func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	return table
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("healthdash"),
		kong.Description("Apple Health export importer and dashboard."),
		kong.UsageOnError(),
	)

	level, err := logging.ParseLevel(cli.LogLevel)
	kctx.FatalIfErrorf(err)
	logging.Init(level, cli.LogJSON)
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dir := filepath.Dir(cli.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("create database directory", "error", err)
			os.Exit(1)
		}
	}

	db, err := store.Open(cli.DB)
	if err != nil {
		log.Error("open database", "path", cli.DB, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}

	kctx.FatalIfErrorf(kctx.Run(&cli, &Globals{ctx: ctx, store: st}))
}
