package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"websearch-mcp/internal/adapter/content"
	"websearch-mcp/internal/adapter/mcpserver"
	"websearch-mcp/internal/adapter/search"
	"websearch-mcp/internal/adapter/tool"
	"websearch-mcp/internal/adapter/upstream"
	"websearch-mcp/internal/infra/config"
	"websearch-mcp/internal/infra/logger"
	"websearch-mcp/internal/infra/tracer"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "--version", "version":
			fmt.Println(mcpserver.ServerName, mcpserver.ServerVersion)
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`mcp-websearch - web search and page extraction over the Model Context Protocol

USAGE:
    mcp-websearch [FLAGS]

The server speaks line-delimited JSON-RPC on stdin/stdout. Logs go to stderr.

TOOLS:
    web_search      Search the web (query, limit, offset, format)
    fetch_content   Fetch a webpage and extract its readable text (url)

FLAGS:
    -h, --help         Show this help message
    --version          Print the server name and version
    --config PATH      Config file path (default: ./websearch.yaml, optional)

CONFIGURATION:
    Config file: ./websearch.yaml (missing file means defaults)
    Environment: WEBSEARCH_* variables override config; a .env file is loaded if present`)
}

func run() error {
	// 1. Config
	_ = godotenv.Load()

	cfg, err := config.Load(configPath(os.Args[1:]))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Tools
	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	// 4. Serve
	srv := mcpserver.New(registry, log)
	err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}

	log.Info("mcp server stopped")
	return nil
}

// buildRegistry wires the shared limiter, fetchers, engine and extractor
// into the tool registry.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*tool.Registry, error) {
	limiter := upstream.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
	fetcher := upstream.NewHTTPFetcher(cfg.Fetch, log.With("component", "fetcher"))

	var searchFetcher upstream.Fetcher = fetcher
	if cfg.Breaker.Enabled {
		searchFetcher = upstream.NewBreakerFetcher(fetcher, "search", cfg.Breaker, log)
	}

	engine := search.NewEngine(searchFetcher, limiter, cfg.Search, log.With("component", "search"))
	extractor := content.NewExtractor(fetcher, limiter, cfg.Fetch, log.With("component", "content"))

	registry := tool.NewRegistry(log)
	if err := registry.Register(tool.NewWebSearchTool(engine, log)); err != nil {
		return nil, err
	}
	if err := registry.Register(tool.NewFetchContentTool(extractor, log)); err != nil {
		return nil, err
	}

	log.Debug("tools ready",
		"rate_limit", cfg.RateLimit.RequestsPerWindow,
		"rate_window", cfg.RateLimit.Window,
		"breaker", cfg.Breaker.Enabled,
	)
	return registry, nil
}

// configPath resolves the config file from --config, WEBSEARCH_CONFIG, or the default.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("WEBSEARCH_CONFIG"); p != "" {
		return p
	}
	return "websearch.yaml"
}
