// Package main is the Kensaku CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// components holds the wired core: embedder, index layer, and store client.
type components struct {
	ES       *elasticsearch.Client
	Embedder embedding.Embedder
	Schema   *index.SchemaManager
	Writer   *index.Writer
	Searcher *index.Searcher
	Health   *index.HealthMonitor
}

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// initializeComponents wires the embedder and index layer. The schema
// manager validates that the configured index dimension matches the model
// dimension, so a misconfiguration fails here rather than at query time.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	es, err := index.NewClient(cfg.Store)
	if err != nil {
		return nil, err
	}

	provider := embedding.NewProvider(cfg.Model, embedding.WithProviderLogger(logger))
	generator := embedding.NewGenerator(provider,
		embedding.WithItemTimeout(time.Duration(cfg.Model.ItemTimeoutMS)*time.Millisecond),
		embedding.WithGeneratorLogger(logger),
	)

	schema, err := index.NewSchemaManager(es, index.Schema{
		Name:       cfg.Index.Name,
		Dimensions: cfg.Model.Dimensions,
		Metric:     cfg.Index.Metric,
	}, generator.Dimensions(), index.WithSchemaLogger(logger))
	if err != nil {
		return nil, err
	}

	return &components{
		ES:       es,
		Embedder: generator,
		Schema:   schema,
		Writer:   index.NewWriter(es, cfg.Index.Name, generator.Dimensions(), index.WithWriterLogger(logger)),
		Searcher: index.NewSearcher(es, cfg.Index.Name, generator.Dimensions(),
			index.WithNumCandidates(cfg.Search.NumCandidates),
			index.WithSearcherLogger(logger),
		),
		Health: index.NewHealthMonitor(es),
	}, nil
}

func (c *components) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = c.Embedder.Close(ctx)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "health":
		runHealth()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	ensureCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := comps.Schema.EnsureIndex(ensureCtx); err != nil {
		cancel()
		logger.Fatal("Failed to ensure index", zap.Error(err))
	}
	cancel()

	srv := server.NewServer(comps.Embedder, comps.Writer, comps.Searcher, comps.Health, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(ctx)
}

// runIndex bulk-loads documents from a JSONL file (one DocumentInput per
// line) through batch embedding. Items whose embedding fails are reported
// and skipped, never stored with a sentinel vector.
func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("file", "", "JSONL file of documents to index")
	_ = fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Println("Usage: kensaku index -file <documents.jsonl>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	ctx := context.Background()
	if err := comps.Schema.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure index", zap.Error(err))
	}

	inputs, err := readDocuments(*file)
	if err != nil {
		logger.Fatal("Failed to read documents", zap.Error(err))
	}
	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Content
	}

	batch, err := comps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Fatal("Batch embedding failed", zap.Error(err))
	}

	stored := 0
	for i, in := range inputs {
		if batch.Failed(i) {
			continue
		}
		doc := &models.Document{
			ID:        in.ID,
			Content:   in.Content,
			Metadata:  in.Metadata,
			Embedding: batch.Vectors[i],
		}
		if err := comps.Writer.StoreDocument(ctx, doc); err != nil {
			fmt.Printf("Failed to store %s: %v\n", in.ID, err)
			continue
		}
		stored++
	}
	fmt.Printf("Indexed %d/%d documents", stored, len(inputs))
	if len(batch.Failures) > 0 {
		fmt.Printf(" (%d embedding failures)", len(batch.Failures))
	}
	fmt.Println()
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	k := fs.Int("k", 0, "number of results (default from config)")
	_ = fs.Parse(os.Args[2:])

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: kensaku search [flags] <query>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	if *k <= 0 {
		*k = cfg.Search.DefaultK
	}

	ctx := context.Background()
	vec, err := comps.Embedder.Embed(ctx, query)
	if err != nil {
		logger.Fatal("Query embedding failed", zap.Error(err))
	}
	results, err := comps.Searcher.SearchSimilar(ctx, vec, *k)
	if err != nil {
		logger.Fatal("Search failed", zap.Error(err))
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, res := range results {
		fmt.Printf("%2d. [%.4f] %s  %s\n", i+1, res.Score, res.ID, utils.Truncate(res.Content, 80))
	}
}

func runHealth() {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	es, err := index.NewClient(cfg.Store)
	if err != nil {
		fmt.Printf("Failed to create store client: %v\n", err)
		os.Exit(1)
	}
	status, err := index.NewHealthMonitor(es).Health(context.Background())
	if err != nil {
		fmt.Printf("Cluster health failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("cluster=%s status=%s\n", status.ClusterName, status.Status)
}

// readDocuments parses a JSONL file of DocumentInput values, assigning UUIDs
// to entries without an ID.
func readDocuments(path string) ([]models.DocumentInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var inputs []models.DocumentInput
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var input models.DocumentInput
		if err := json.Unmarshal([]byte(text), &input); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if input.ID == "" {
			input.ID = uuid.New().String()
		}
		inputs = append(inputs, input)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return inputs, nil
}

func printUsage() {
	fmt.Println(`Kensaku - semantic document search

Usage:
  kensaku server [-config path] [-debug]     Start the HTTP API server
  kensaku index -file docs.jsonl             Bulk-index documents from a JSONL file
  kensaku search [-k N] <query>              Search for similar documents
  kensaku health                             Show store cluster health
  kensaku version                            Show version`)
}
