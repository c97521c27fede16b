// Package main is the kaiwa CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kaiwa/internal/cli"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/extract"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/search"
	"github.com/hyperjump/kaiwa/internal/server"
	"github.com/hyperjump/kaiwa/internal/watcher"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kaiwa/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present, and a missing default file yields the built-in defaults.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "build-context":
		runBuildContext()
	case "query-context":
		runQueryContext()
	case "questions":
		runQuestions()
	case "rebuild":
		runRebuild()
	case "stats":
		runStats()
	case "version", "--version", "-v":
		fmt.Printf("kaiwa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds a logger and every component. Failures exit the process.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode, "kaiwa")
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.QuestionBank.Watch && cfg.QuestionBank.CuratedPath != "" {
		general := components.Banks.General
		w, err := watcher.New([]string{cfg.QuestionBank.CuratedPath}, func(ctx context.Context, path string) {
			if err := general.Rebuild(ctx); err != nil {
				logger.Warn("curated bank reload failed", zap.String("path", path), zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		logger.Info("watching curated question bank", zap.String("path", cfg.QuestionBank.CuratedPath))
	}

	srv := server.NewServer(server.Deps{
		Retrieval:  components.Retrieval,
		Banks:      components.Banks,
		Interviews: components.Interviews,
		Extractor:  extract.NewExtractor(),
		Events:     components.Events,
		Logger:     logger,
	}, &cfg.Server)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// joinArgs joins all positional args with spaces so multi-word text works the same with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional text to the
// front so that flag.Parse() sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func outputFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return format
}

func exitOn(err error, what string) {
	if err != nil {
		fmt.Printf("%s: %v\n", what, err)
		os.Exit(1)
	}
}

// readDocument extracts text from a résumé or job posting file; "" yields "".
func readDocument(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return extract.NewExtractor().Extract(path)
}

func runBuildContext() {
	fs := flag.NewFlagSet("build-context", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	userID := fs.String("user", "", "user id (required)")
	resumePath := fs.String("resume", "", "résumé file (pdf, docx, odt, rtf, txt, md)")
	jobPath := fs.String("job", "", "job posting file")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	if *userID == "" || (*resumePath == "" && *jobPath == "") {
		fmt.Println("Usage: kaiwa build-context --user <id> [--resume <file>] [--job <file>]")
		os.Exit(1)
	}
	resume, err := readDocument(*resumePath)
	exitOn(err, "Failed to read résumé")
	job, err := readDocument(*jobPath)
	exitOn(err, "Failed to read job posting")

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	stats, err := components.Retrieval.BuildContext(context.Background(), retrieval.NamespaceForUser(*userID), resume, job)
	exitOn(err, "Build failed")
	exitOn(cli.WriteBuildStats(os.Stdout, stats, format), "Output failed")
}

func runQueryContext() {
	fs := flag.NewFlagSet("query-context", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	userID := fs.String("user", "", "user id (required)")
	k := fs.Int("k", 0, "number of fragments (default from config)")
	source := fs.String("source", "", "restrict to one source: resume or job_posting")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := outputFormat(*output)

	query := joinArgs(fs.Args())
	if *userID == "" || query == "" {
		fmt.Println("Usage: kaiwa query-context --user <id> [--k N] [--source resume|job_posting] <query>")
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ns := retrieval.NamespaceForUser(*userID)
	hits, err := components.Retrieval.QueryRecords(context.Background(), ns, query, *k, *source)
	exitOn(err, "Query failed")
	exitOn(cli.WriteContext(os.Stdout, ns, hits, format), "Output failed")
}

func runQuestions() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kaiwa questions <random|search|query> [flags] [text]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("questions "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	category := fs.String("category", "", "question category")
	difficulty := fs.String("difficulty", "", "easy, medium or hard")
	ragID := fs.String("rag", "", "personalized bank id (random and query)")
	limit := fs.Int("limit", 10, "number of results (search and query)")
	fuzzy := fs.Bool("fuzzy", false, "typo-tolerant matching (search)")
	keywordOnly := fs.Bool("keyword", false, "keyword matching only (search)")
	semanticOnly := fs.Bool("semantic", false, "semantic matching only (search)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	format := outputFormat(*output)

	var cat models.Category
	if *category != "" {
		c, err := models.ParseCategory(*category)
		exitOn(err, "Invalid category")
		cat = c
	}
	diff, err := models.ParseDifficulty(*difficulty)
	exitOn(err, "Invalid difficulty")
	text := joinArgs(fs.Args())
	zero := 0.0

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	switch sub {
	case "random":
		q, err := components.Banks.GetRandom(ctx, *ragID, cat, diff, nil)
		exitOn(err, "No question")
		exitOn(cli.WriteQuestions(os.Stdout, []*models.Question{q}, format), "Output failed")
	case "search":
		if text == "" {
			fmt.Println("Usage: kaiwa questions search [--limit N] [--fuzzy] [--keyword|--semantic] [--category c] <text>")
			os.Exit(1)
		}
		query := &search.Query{Text: text, Limit: *limit, Category: cat, Difficulty: diff, Fuzzy: *fuzzy}
		if *keywordOnly {
			query.SemanticWeight = &zero
		}
		if *semanticOnly {
			query.KeywordWeight = &zero
		}
		resp, err := search.NewEngine(components.Banks.General, 0).Search(ctx, query)
		exitOn(err, "Search failed")
		exitOn(cli.WriteResults(os.Stdout, resp, format), "Output failed")
	case "query":
		if text == "" {
			fmt.Println("Usage: kaiwa questions query [--limit N] [--category c] [--rag id] <text>")
			os.Exit(1)
		}
		var qs []*models.Question
		if *ragID == "" {
			qs, err = components.Banks.General.Query(ctx, text, *limit, cat)
		} else {
			qs, err = components.Banks.QuerySemantic(ctx, *ragID, text, *limit)
		}
		exitOn(err, "Query failed")
		exitOn(cli.WriteQuestions(os.Stdout, qs, format), "Output failed")
	default:
		fmt.Printf("Unknown questions command: %s\n", sub)
		os.Exit(1)
	}
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	exitOn(components.Banks.General.Rebuild(ctx), "Rebuild failed")
	stats, err := components.Banks.Stats(ctx, "")
	exitOn(err, "Stats failed")
	exitOn(cli.WriteStats(os.Stdout, stats, format), "Output failed")
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read the stores directly)")
	ragID := fs.String("rag", "", "personalized bank id")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)

	if *serverURL != "" {
		stats, err := statsViaHTTP(*serverURL, *ragID)
		if err == nil {
			exitOn(cli.WriteStats(os.Stdout, stats, format), "Output failed")
			return
		}
		fmt.Fprintf(os.Stderr, "Server unavailable (%v), reading stores directly\n", err)
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	stats, err := components.Banks.Stats(context.Background(), *ragID)
	exitOn(err, "Stats failed")
	exitOn(cli.WriteStats(os.Stdout, stats, format), "Output failed")
}

func statsViaHTTP(serverURL, ragID string) (*questionbank.Stats, error) {
	endpoint := strings.TrimRight(serverURL, "/") + "/api/v1/stats"
	if ragID != "" {
		endpoint += "?rag_id=" + url.QueryEscape(ragID)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	var stats questionbank.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &stats, nil
}

func printUsage() {
	fmt.Println(`kaiwa - Personalized mock-interview and retrieval server

Usage:
  kaiwa server [flags]                          Start the HTTP server
  kaiwa build-context [flags]                   Index a résumé and job posting for a user
  kaiwa query-context [flags] <query>           Retrieve a user's context fragments
  kaiwa questions random [flags]                Draw a question
  kaiwa questions search [flags] <text>         Hybrid keyword and semantic search over the curated bank
  kaiwa questions query [flags] <text>          Semantic search over a bank
  kaiwa rebuild [flags]                         Reload the curated question bank
  kaiwa stats [flags]                           Show question-bank statistics
  kaiwa version                                 Show version
  kaiwa help                                    Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kaiwa/config.yaml, or ./config.yaml if present)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Build-context Flags:
  --user string      User id (required)
  --resume string    Résumé file (pdf, docx, odt, rtf, txt, md)
  --job string       Job posting file

Query-context Flags:
  --user string      User id (required)
  --k int            Number of fragments (default from config)
  --source string    resume or job_posting

Questions Flags:
  --category string    self_introduction, technical, behavioral, soft_skills or scenario
  --difficulty string  easy, medium or hard
  --rag string         Personalized bank id (random, query)
  --limit int          Number of results (default: 10)
  --fuzzy              Typo-tolerant keyword search
  --keyword            Keyword matching only (search)
  --semantic           Semantic matching only (search)

Stats Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to read the stores directly.
  --rag string       Personalized bank id

Examples:
  kaiwa server
  kaiwa build-context --user jane --resume resume.pdf --job posting.txt
  kaiwa query-context --user jane --source resume kubernetes experience
  kaiwa questions random --category technical --difficulty hard
  kaiwa questions search --fuzzy featur store
  kaiwa stats --output json`)
}
