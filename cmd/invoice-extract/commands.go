package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/tsawler/tabula/tables"

	"github.com/zombor/invoice-extract/internal/batch"
	"github.com/zombor/invoice-extract/internal/imaging"
	"github.com/zombor/invoice-extract/internal/invoice"
	"github.com/zombor/invoice-extract/internal/ocr"
	"github.com/zombor/invoice-extract/internal/output"
	"github.com/zombor/invoice-extract/internal/pdftext"
	"github.com/zombor/invoice-extract/internal/pipeline"
	"github.com/zombor/invoice-extract/internal/segment"
	"github.com/zombor/invoice-extract/internal/server"
	"github.com/zombor/invoice-extract/internal/store"
	"github.com/zombor/invoice-extract/internal/tabular"
	"github.com/zombor/invoice-extract/internal/watch"
)

// errFailures is returned when at least one document failed
var errFailures = errors.New("one or more documents failed")

var errInvalidEngine = errors.New("invalid ocr engine")

// app holds the flags shared by every subcommand
type app struct {
	stdout io.Writer
	stderr io.Writer
	mu     sync.Mutex

	flags *ff.FlagSet

	logLevel        *string
	logFormat       *string
	engine          *string
	language        *string
	psm             *int
	geminiKey       *string
	geminiModel     *string
	ollamaURL       *string
	ollamaModel     *string
	ocrRPS          *float64
	ocrBurst        *int
	pdfBackend      *string
	preprocess      *string
	ruleSet         *string
	rulesFile       *string
	strict          *bool
	timeout         *time.Duration
	totalFromTables *bool
	dbPath          *string
	storagePath     *string

	tableFraction *float64
	rowMinArea    *int
	cellMinArea   *int
	rowSmear      *int
	stripRules    *bool
	sortRegions   *bool
	cellMinHeight *int
}

func newApp(stdout, stderr io.Writer) *app {
	fs := ff.NewFlagSet("invoice-extract")
	a := &app{stdout: stdout, stderr: stderr, flags: fs}

	a.logLevel = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
	a.logFormat = fs.StringLong("log-format", "text", "Log format: text or json")
	a.engine = fs.StringLong("ocr", "tesseract", "OCR engine: tesseract, gemini or ollama")
	a.language = fs.StringLong("lang", "eng", "OCR language")
	a.psm = fs.IntLong("psm", 0, "Tesseract page segmentation mode, 0 for the engine default")
	a.geminiKey = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	a.geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
	a.ollamaURL = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
	a.ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name")
	a.ocrRPS = fs.Float64Long("ocr-rps", 0, "Maximum OCR calls per second for remote engines, 0 for unlimited")
	a.ocrBurst = fs.IntLong("ocr-burst", 1, "OCR rate limit burst")
	a.pdfBackend = fs.StringLong("pdf-backend", "fitz", "PDF text backend: fitz or pdfcpu")
	a.preprocess = fs.StringLong("preprocess", "raw", "Image preprocessing preset: "+strings.Join(imaging.PresetNames(), ", "))
	a.ruleSet = fs.StringLong("rule-set", "default", "Field rule set name")
	a.rulesFile = fs.StringLong("rules", "", "YAML file with additional rule sets")
	a.strict = fs.BoolLong("strict", "Reject unknown extensions instead of trying them as images")
	a.timeout = fs.DurationLong("timeout", 2*time.Minute, "Timeout for each OCR, PDF text or table call")
	a.totalFromTables = fs.BoolLong("total-from-tables", "Sum a PDF table's Total column when the text has no total")
	a.dbPath = fs.StringLong("db", "invoice-extract.db", "History database file path")
	a.storagePath = fs.StringLong("storage", "./uploads", "Upload storage directory path")
	a.tableFraction = fs.Float64Long("table-fraction", segment.DefaultFraction, "Tables must cover more than this fraction of a 100x100 reference area")
	a.rowMinArea = fs.IntLong("row-min-area", 0, "Minimum row area in pixels, 0 for no filter")
	a.cellMinArea = fs.IntLong("cell-min-area", 0, "Minimum cell area in pixels, 0 for no filter")
	a.rowSmear = fs.IntLong("row-smear", 0, "Horizontal smear in pixels that merges a line into one row, -1 for the full width")
	a.stripRules = fs.BoolLong("strip-rules", "Remove table border lines before finding rows")
	a.sortRegions = fs.BoolLong("sort-regions", "Order rows and cells by area, largest first, instead of discovery order")
	a.cellMinHeight = fs.IntLong("cell-min-height", 32, "Upscale cells shorter than this before OCR, 0 to disable")
	fs.StringLong("config", "", "Config file path")
	return a
}

func (a *app) command() *ff.Command {
	return &ff.Command{
		Name:      "invoice-extract",
		Usage:     "invoice-extract [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "extract invoice fields and tables from images and PDFs",
		Flags:     a.flags,
		Subcommands: []*ff.Command{
			a.extractCommand(),
			a.serveCommand(),
			a.watchCommand(),
			a.historyCommand(),
		},
		Exec: func(ctx context.Context, args []string) error {
			return ff.ErrHelp
		},
	}
}

func (a *app) extractCommand() *ff.Command {
	fs := ff.NewFlagSet("extract").SetParent(a.flags)
	var (
		out     = fs.StringLong("out", output.DefaultDir, "Directory for result files")
		xlsx    = fs.BoolLong("xlsx", "Also write an .xlsx workbook per document")
		history = fs.BoolLong("history", "Record every outcome in the history database")
		workers = fs.IntLong("workers", 0, "Documents processed at once, 0 for the CPU count")
	)
	return &ff.Command{
		Name:      "extract",
		Usage:     "invoice-extract extract [FLAGS] FILE...",
		ShortHelp: "extract one or more documents to JSON",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("no files given")
			}
			logger := a.setupLogger()

			p, closeCaps, err := a.pipeline(logger)
			if err != nil {
				return err
			}
			defer closeCaps()

			sink, closeSink, err := a.sink(*out, *xlsx, *history, logger)
			if err != nil {
				return err
			}
			defer closeSink()

			outcomes := batch.NewRunner(p, *workers, sink, logger).Run(ctx, args)
			failed := batch.Failed(outcomes)
			fmt.Fprintf(a.stdout, "%d processed, %d failed\n", len(outcomes), failed)
			if failed > 0 {
				return errFailures
			}
			return nil
		},
	}
}

func (a *app) serveCommand() *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(a.flags)
	var (
		port     = fs.IntLong("port", 8080, "HTTP server port")
		authUser = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
	)
	return &ff.Command{
		Name:      "serve",
		Usage:     "invoice-extract serve [FLAGS]",
		ShortHelp: "serve the extraction HTTP API",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			logger := a.setupLogger()

			p, closeCaps, err := a.pipeline(logger)
			if err != nil {
				return err
			}
			defer closeCaps()

			logger.Info("initializing database", "path", *a.dbPath)
			db, err := store.NewBoltDB(*a.dbPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer db.Close()

			logger.Info("initializing storage", "path", *a.storagePath)
			storage, err := store.NewLocalStorage(*a.storagePath)
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}

			service := store.NewService(db, storage, p, logger)
			srv := server.New(service, server.BasicAuth{Username: *authUser, Password: *authPass}, logger)
			if *authUser != "" || *authPass != "" {
				logger.Info("basic auth enabled", "user", *authUser)
			}
			return srv.Start(ctx, fmt.Sprintf(":%d", *port))
		},
	}
}

func (a *app) watchCommand() *ff.Command {
	fs := ff.NewFlagSet("watch").SetParent(a.flags)
	var (
		out      = fs.StringLong("out", output.DefaultDir, "Directory for result files")
		xlsx     = fs.BoolLong("xlsx", "Also write an .xlsx workbook per document")
		history  = fs.BoolLong("history", "Record every outcome in the history database")
		debounce = fs.DurationLong("debounce", time.Second, "Quiet period before a changed file is processed")
		existing = fs.BoolLong("initial-scan", "Process files already in the directories")
	)
	return &ff.Command{
		Name:      "watch",
		Usage:     "invoice-extract watch [FLAGS] DIR...",
		ShortHelp: "extract documents as they appear in directories",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("no directories given")
			}
			logger := a.setupLogger()

			p, closeCaps, err := a.pipeline(logger)
			if err != nil {
				return err
			}
			defer closeCaps()

			sink, closeSink, err := a.sink(*out, *xlsx, *history, logger)
			if err != nil {
				return err
			}
			defer closeSink()

			paths, _, err := watch.Start(ctx, watch.Config{
				Roots:       args,
				InitialScan: *existing,
				Debounce:    *debounce,
			}, logger)
			if err != nil {
				return err
			}

			logger.Info("watching", "roots", args)
			runner := batch.NewRunner(p, 1, sink, logger)
			for path := range paths {
				runner.Run(ctx, []string{path})
			}
			return nil
		},
	}
}

func (a *app) historyCommand() *ff.Command {
	fs := ff.NewFlagSet("history").SetParent(a.flags)
	limit := fs.IntLong("limit", 20, "Number of records to show, 0 for all")
	return &ff.Command{
		Name:      "history",
		Usage:     "invoice-extract history [FLAGS]",
		ShortHelp: "list recorded extractions, newest first",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			a.setupLogger()

			db, err := store.NewBoltDB(*a.dbPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer db.Close()

			records, err := db.List()
			if err != nil {
				return fmt.Errorf("listing records: %w", err)
			}
			if *limit > 0 && len(records) > *limit {
				records = records[:*limit]
			}
			return printHistory(a.stdout, records)
		},
	}
}

func printHistory(w io.Writer, records []*store.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tFILE\tKIND\tSTATUS\tVENDOR\tTOTAL")
	for _, r := range records {
		status, vendor, total := "ok", "", ""
		if r.Failed() {
			status = string(r.ErrorKind)
		}
		if r.Result != nil {
			vendor = r.Result.Fields[invoice.VendorName]
			total = r.Result.Fields[invoice.TotalAmount]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Format(time.DateTime), r.Filename, r.Kind, status, vendor, total)
	}
	return tw.Flush()
}

// setupLogger installs the process-wide slog handler from the log flags
func (a *app) setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(*a.logLevel)}
	var handler slog.Handler
	if strings.EqualFold(*a.logFormat, "json") {
		handler = slog.NewJSONHandler(a.stderr, opts)
	} else {
		handler = slog.NewTextHandler(a.stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// config builds the pipeline configuration from the flags
func (a *app) config() (pipeline.Config, error) {
	config := pipeline.DefaultConfig()

	preprocess, err := imaging.Preset(*a.preprocess)
	if err != nil {
		return config, err
	}
	config.Preprocess = preprocess
	config.OCR = ocr.Options{Language: *a.language, PageSegMode: *a.psm}
	if config.OCR.PageSegMode == 0 && *a.preprocess == "otsu" {
		config.OCR.PageSegMode = 6
	}
	config.Segment.Table.MinArea = segment.TableMinArea(segment.DefaultReference, *a.tableFraction)
	config.Segment.Row = segment.Policy{
		MinArea:    *a.rowMinArea,
		Smear:      image.Pt(*a.rowSmear, 0),
		StripRules: *a.stripRules,
		Sort:       *a.sortRegions,
	}
	config.Segment.Cell = segment.Policy{MinArea: *a.cellMinArea, Sort: *a.sortRegions}
	config.Segment.CellMinHeight = *a.cellMinHeight

	config.RuleSet = *a.ruleSet
	config.RulesFile = *a.rulesFile
	config.StrictExtensions = *a.strict
	config.CapabilityTimeout = *a.timeout
	config.TotalFromTables = *a.totalFromTables
	return config, nil
}

// pipeline builds the pipeline and the capabilities behind it. The returned
// func releases the OCR engine.
func (a *app) pipeline(logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	config, err := a.config()
	if err != nil {
		return nil, nil, err
	}

	recognizer, err := a.recognizer(logger)
	if errors.Is(err, errInvalidEngine) {
		return nil, nil, err
	}
	if err != nil {
		// PDFs with a text layer still extract without OCR; images fail
		// with a text acquisition error.
		logger.Warn("ocr engine unavailable; image documents will fail", "engine", *a.engine, "error", err)
		recognizer = nil
	}
	release := func() {
		if recognizer != nil {
			recognizer.Close()
		}
	}

	var texter pdftext.PageTexter
	switch *a.pdfBackend {
	case "fitz":
		texter = pdftext.NewFitz()
	case "pdfcpu":
		texter = pdftext.NewPDFCPU()
	default:
		release()
		return nil, nil, fmt.Errorf("invalid pdf backend %q (valid: fitz, pdfcpu)", *a.pdfBackend)
	}

	p, err := pipeline.New(config, pipeline.Capabilities{
		Recognizer: recognizer,
		PageTexter: texter,
		Tables:     tabular.NewTabula(tables.Config{}),
	}, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

func (a *app) recognizer(logger *slog.Logger) (ocr.Recognizer, error) {
	var (
		recognizer ocr.Recognizer
		err        error
	)
	switch *a.engine {
	case "tesseract":
		logger.Info("initializing tesseract", "lang", *a.language)
		recognizer, err = ocr.NewTesseract(*a.language)
	case "gemini":
		apiKey := *a.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		logger.Info("initializing gemini", "model", *a.geminiModel)
		recognizer, err = ocr.NewGemini(apiKey, *a.geminiModel)
	case "ollama":
		logger.Info("initializing ollama", "url", *a.ollamaURL, "model", *a.ollamaModel)
		recognizer, err = ocr.NewOllama(*a.ollamaURL, *a.ollamaModel)
	default:
		return nil, fmt.Errorf("%w %q (valid: tesseract, gemini, ollama)", errInvalidEngine, *a.engine)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", *a.engine, err)
	}
	if *a.ocrRPS > 0 {
		recognizer = ocr.NewLimited(recognizer, *a.ocrRPS, *a.ocrBurst)
	}
	return recognizer, nil
}

// sink writes each outcome to the output directory and optionally the
// history database. The returned func closes the database.
func (a *app) sink(out string, xlsx, history bool, logger *slog.Logger) (batch.Sink, func(), error) {
	var service *store.Service
	closeDB := func() {}
	if history {
		db, err := store.NewBoltDB(*a.dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing database: %w", err)
		}
		service = store.NewService(db, nil, nil, logger)
		closeDB = func() { db.Close() }
	}

	sink := func(ctx context.Context, o batch.Outcome) {
		if service != nil {
			if _, err := service.Remember(o.Path, o.Result, o.Err, o.Duration); err != nil {
				logger.Error("failed to record history", "path", o.Path, "error", err)
			}
		}
		if o.Err != nil {
			a.printf("%s: FAILED (%s): %v\n", o.Path, invoice.KindOf(o.Err), o.Err)
			return
		}

		name := output.BaseName(o.Path)
		written, err := output.WriteJSON(out, name, o.Result)
		if err != nil {
			logger.Error("failed to write result", "path", o.Path, "error", err)
			a.printf("%s: FAILED writing result: %v\n", o.Path, err)
			return
		}
		if xlsx {
			if _, err := output.WriteXLSX(out, name, o.Result); err != nil {
				logger.Error("failed to write workbook", "path", o.Path, "error", err)
			}
		}
		a.printf("%s: %s\n%s", o.Path, written, summary(o.Result))
	}
	return sink, closeDB, nil
}

func (a *app) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.stdout, format, args...)
}

func summary(result *invoice.Result) string {
	var b strings.Builder
	for _, f := range invoice.AllFields {
		fmt.Fprintf(&b, "  %s: %s\n", f, result.Fields[f])
	}
	fmt.Fprintf(&b, "  Tables: %d\n", len(result.Tables))
	return b.String()
}
