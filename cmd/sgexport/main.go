package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BryceDouglasJames/surfacegeom/internal/config"
	"github.com/BryceDouglasJames/surfacegeom/internal/logging"
	"github.com/BryceDouglasJames/surfacegeom/pkg/appearance"
	"github.com/BryceDouglasJames/surfacegeom/pkg/reader"
)

// Build info
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	// CLI flags (shared)
	configFile string
	outputJSON bool
	outputFile string
	quiet      bool
	verbose    bool

	workers         int
	batchSize       int
	useXLink        bool
	appendID        bool
	idPrefix        string
	exportAppear    bool
	appearTable     string
	appearBatchSize int
	failOnError     bool
	implicit        bool
	logLevel        string

	// Postgres flags
	pgDSN    string
	pgSchema string

	// SQLite flags
	sqlitePath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sgexport",
	Short: "Rebuild surface geometries from a 3D City Database",
	Long: `sgexport reads surface_geometry trees by root id and rebuilds them into
typed geometries (polygons, composite and multi surfaces, solids, TINs).

Repeated xlink geometries are written as references or duplicated under a
fresh gml:id. Ids of geometries that may carry textures can be recorded in an
appearance cache table.

Examples:
  sgexport postgres --dsn "postgres://citydb@localhost/citydb" 1201 1202
  sgexport sqlite --db city.sqlite --json --output geometries.json 10 20 30
  sgexport sqlite --db city.sqlite --xlink=false --append-id 10 20`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "YAML config file")
	pf.BoolVarP(&outputJSON, "json", "j", false, "Output as JSON (for pipelines)")
	pf.StringVarP(&outputFile, "output", "o", "", "Write results to file instead of stdout")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Only output summary line (for scripts/pipelines)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Show per-geometry details")

	pf.IntVarP(&workers, "workers", "w", 4, "Number of export workers")
	pf.IntVarP(&batchSize, "batch-size", "b", 100, "Root ids per batch (clamped to the source maximum)")
	pf.BoolVar(&useXLink, "xlink", true, "Write repeated geometries as xlink references")
	pf.BoolVar(&appendID, "append-id", false, "Append the original gml:id to minted ids")
	pf.StringVar(&idPrefix, "id-prefix", "UUID_", "Prefix for minted gml:ids")
	pf.BoolVar(&exportAppear, "appearance", false, "Record textured geometry ids in the appearance cache table")
	pf.StringVar(&appearTable, "appearance-table", appearance.DefaultTableName, "Appearance cache table name")
	pf.IntVar(&appearBatchSize, "appearance-batch", 0, "Appearance cache batch size (0 = source maximum)")
	pf.BoolVar(&failOnError, "fail-on-error", false, "Abort on missing or invalid geometry trees")
	pf.BoolVar(&implicit, "implicit", false, "Read implicit (prototype) geometries")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(postgresCmd)
	rootCmd.AddCommand(sqliteCmd)

	// Postgres command flags
	postgresCmd.Flags().StringVar(&pgDSN, "dsn", "", "PostgreSQL connection string")
	postgresCmd.Flags().StringVar(&pgSchema, "schema", "citydb", "3D City Database schema")

	// SQLite command flags
	sqliteCmd.Flags().StringVar(&sqlitePath, "db", "", "SQLite database file")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sgexport %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

var postgresCmd = &cobra.Command{
	Use:   "postgres [root-id...]",
	Short: "Export surface geometries from PostgreSQL/PostGIS",
	Long: `Export surface geometries from a 3D City Database on PostgreSQL/PostGIS.

Examples:
  sgexport postgres --dsn "postgres://citydb@localhost/citydb" 1201 1202

  # Duplicate repeated geometries instead of referencing them
  sgexport postgres --dsn "postgres://localhost/citydb?sslmode=disable" \
    --xlink=false --append-id --id-prefix GEOM_ 1201

  # Fill the appearance cache with 500 ids per round trip
  sgexport postgres --config sgexport.yaml --appearance --appearance-batch 500 1201`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPostgresExport,
}

var sqliteCmd = &cobra.Command{
	Use:   "sqlite [root-id...]",
	Short: "Export surface geometries from a SQLite file",
	Long: `Export surface geometries from a SQLite file holding a surface_geometry
table with WKB payloads.

Examples:
  sgexport sqlite --db city.sqlite 10 20 30
  sgexport sqlite --db city.sqlite --json --implicit 400`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQLiteExport,
}

func runPostgresExport(cmd *cobra.Command, args []string) error {
	cfg, logger, ids, err := setup(cmd, args)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("--dsn or postgres.dsn in the config file is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	src, err := reader.NewPostgresSource(reader.PostgresConfig{
		DSN:    cfg.Postgres.DSN,
		Schema: cfg.Postgres.Schema,
		Ctx:    ctx,
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer src.Close()

	job := exportJob{
		name:   "postgres:" + src.Schema(),
		source: src,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.Appearance.Enabled {
		sink := appearance.NewPgxSink(src.Pool(), appearance.NewCacheTable(src.Schema(), cfg.Appearance.Table))
		if err := sink.EnsureTable(ctx); err != nil {
			return err
		}
		job.sink = sink
	}

	result, err := job.run(ctx, ids)
	if err != nil {
		return err
	}
	return writeResult(result)
}

func runSQLiteExport(cmd *cobra.Command, args []string) error {
	cfg, logger, ids, err := setup(cmd, args)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.SQLite.Path == "" {
		return fmt.Errorf("--db or sqlite.path in the config file is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	src, err := reader.OpenSQLite(ctx, cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	job := exportJob{
		name:   "sqlite:" + cfg.SQLite.Path,
		source: src,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.Appearance.Enabled {
		sink := appearance.NewSQLSink(src.DB(), appearance.NewCacheTable("", cfg.Appearance.Table))
		if err := sink.EnsureTable(ctx); err != nil {
			return err
		}
		job.sink = sink
	}

	result, err := job.run(ctx, ids)
	if err != nil {
		return err
	}
	return writeResult(result)
}

// setup loads the config file, applies flags that were set explicitly and
// builds the logger.
func setup(cmd *cobra.Command, args []string) (config.Config, *zap.Logger, []int64, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return cfg, nil, nil, err
		}
		cfg = loaded
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, err
	}

	ids, err := parseIDs(args)
	if err != nil {
		return cfg, nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development || verbose)
	if err != nil {
		return cfg, nil, nil, err
	}
	logging.Set(logger)
	return cfg, logger, ids, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("workers", func() { cfg.Export.Workers = workers })
	set("batch-size", func() { cfg.Export.BatchSize = batchSize })
	set("fail-on-error", func() { cfg.Export.FailOnError = failOnError })
	set("implicit", func() { cfg.Export.Implicit = implicit })
	set("xlink", func() { cfg.XLink.Reference = useXLink })
	set("append-id", func() { cfg.XLink.AppendID = appendID })
	set("id-prefix", func() { cfg.XLink.IDPrefix = idPrefix })
	set("appearance", func() { cfg.Appearance.Enabled = exportAppear })
	set("appearance-table", func() { cfg.Appearance.Table = appearTable })
	set("appearance-batch", func() { cfg.Appearance.BatchSize = appearBatchSize })
	set("log-level", func() { cfg.Log.Level = logLevel })
	set("dsn", func() { cfg.Postgres.DSN = pgDSN })
	set("schema", func() { cfg.Postgres.Schema = pgSchema })
	set("db", func() { cfg.SQLite.Path = sqlitePath })
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid root id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeResult(result ExportResult) error {
	// Determine output destination
	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if outputJSON {
		if err := outputAsJSON(out, result); err != nil {
			return err
		}
	} else {
		outputAsText(out, result)
	}

	// Print where output was written if using file
	if outputFile != "" && !quiet {
		fmt.Printf("Results written to: %s\n", outputFile)
	}
	return nil
}

func outputAsJSON(out io.Writer, result ExportResult) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputAsText(out io.Writer, result ExportResult) {
	// Quiet mode: only output the summary line
	if quiet {
		fmt.Fprintf(out, "%d exported, %d failed, %d polygons, %d references\n",
			result.Exported, len(result.Failed), result.Summary.Polygons, result.Summary.References)
		return
	}

	fmt.Fprintf(out, "\n  Source:  %s\n", result.Source)
	fmt.Fprintf(out, "  Roots:   %d requested in %d batches (%s)\n", result.Requested, result.Batches, result.Duration)

	fmt.Fprintln(out, "\n──────────────")
	fmt.Fprintln(out, "  Geometries")
	fmt.Fprintln(out, "──────────────")
	for _, g := range result.Geometries {
		fmt.Fprintf(out, "  %-12d %-22s polygons=%d triangles=%d references=%d\n",
			g.RootID, g.Kind, g.Stats.Polygons, g.Stats.Triangles, g.Stats.References)
		if verbose && g.Geometry.ID != "" {
			fmt.Fprintf(out, "      --> gml:id %s (reversed surfaces: %d)\n", g.Geometry.ID, g.Stats.Reversed)
		}
	}

	if len(result.Failed) > 0 {
		fmt.Fprintln(out, "\n──────────")
		fmt.Fprintln(out, "  Failed")
		fmt.Fprintln(out, "──────────")
		for _, id := range result.Failed {
			fmt.Fprintf(out, "  %d\n", id)
		}
	}

	fmt.Fprintln(out, "\n───────────────────────────────────────────────────────────────")
	fmt.Fprintf(out, "  Summary: %d exported, %d failed, %d polygons, %d triangles, %d references, %d xlink ids\n",
		result.Exported, len(result.Failed), result.Summary.Polygons, result.Summary.Triangles,
		result.Summary.References, result.XLinks)
	fmt.Fprintln(out, "───────────────────────────────────────────────────────────────")
}
