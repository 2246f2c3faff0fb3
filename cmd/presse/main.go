// Entry point for the presse article-extraction service. Runs one-shot URL
// processing, batch draining, cache sweeps, an HTTP status API or an MCP
// stdio server depending on flags.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/presse/dbopen"
	"github.com/hazyhaar/presse/harvest"
	"github.com/hazyhaar/presse/llm"
	"github.com/hazyhaar/presse/mcpquic"
	"github.com/hazyhaar/presse/shield"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		url        = flag.String("url", "", "process a single URL and exit")
		title      = flag.String("title", "", "expected article title for -url")
		pending    = flag.Int("pending", 0, "process up to N pending URLs and exit")
		force      = flag.Bool("force", false, "re-process already extracted URLs")
		skipValid  = flag.Bool("skip-validation", false, "accept the first non-empty fetch unvalidated")
		sweep      = flag.Bool("sweep", false, "sweep the selector cache and exit")
		serve      = flag.String("serve", "", "HTTP listen address, e.g. :8086")
		mcpStdio   = flag.Bool("mcp", false, "serve MCP tools over stdio")
		mcpQUIC    = flag.String("mcp-quic", "", "MCP QUIC listen address, e.g. :9444")
		logLevel   = flag.String("log-level", env("LOG_LEVEL", "info"), "debug, info, warn, error")
	)
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// MCP stdio owns stdout; everything else logs JSON there.
	logOut := os.Stdout
	if *mcpStdio {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := harvest.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(harvest.Schema),
		dbopen.WithSchema(shield.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var completer harvest.Completer
	anthropic := llm.NewAnthropic("")
	if anthropic.Available() {
		completer = llm.NewClient(logger, anthropic)
	} else {
		slog.Warn("no LLM provider configured, LLM extraction tiers disabled")
	}

	svc, err := harvest.New(db, completer, *cfg, logger)
	if err != nil {
		slog.Error("service", "error", err)
		os.Exit(1)
	}

	opts := harvest.Options{Force: *force, SkipValidation: *skipValid}

	switch {
	case *url != "":
		res := svc.ProcessURL(ctx, harvest.URLInput{URL: *url, Title: *title}, opts)
		printJSON(res)
		if !res.Success {
			os.Exit(1)
		}

	case *pending > 0:
		urls, err := svc.PendingURLs(ctx, *pending)
		if err != nil {
			slog.Error("pending urls", "error", err)
			os.Exit(1)
		}
		var failed int
		for _, u := range urls {
			if ctx.Err() != nil {
				break
			}
			res := svc.ProcessURL(ctx, u, opts)
			if !res.Success {
				failed++
			}
		}
		slog.Info("batch done", "total", len(urls), "failed", failed)
		if failed > 0 {
			os.Exit(1)
		}

	case *sweep:
		removed, err := svc.Sweep(ctx)
		if err != nil {
			slog.Error("sweep", "error", err)
			os.Exit(1)
		}
		printJSON(map[string]any{"removed": len(removed), "patterns": removed})

	case *mcpStdio:
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "presse",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(srv)
		slog.Info("MCP stdio server starting")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("mcp", "error", err)
			os.Exit(1)
		}

	case *mcpQUIC != "":
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "presse",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(srv)

		var tlsCfg *tls.Config
		certFile, keyFile := os.Getenv("TLS_CERT"), os.Getenv("TLS_KEY")
		if certFile != "" && keyFile != "" {
			cert, err := tls.LoadX509KeyPair(certFile, keyFile)
			if err != nil {
				slog.Error("load TLS keypair", "error", err)
				os.Exit(1)
			}
			tlsCfg = &tls.Config{
				Certificates: []tls.Certificate{cert},
				NextProtos:   []string{mcpquic.ALPNProtocolMCP},
				MinVersion:   tls.VersionTLS13,
			}
		} else {
			slog.Warn("no TLS_CERT/TLS_KEY, using a self-signed certificate")
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
			if err != nil {
				slog.Error("self-signed TLS", "error", err)
				os.Exit(1)
			}
		}

		ql, err := mcpquic.NewListener(*mcpQUIC, tlsCfg, srv, logger)
		if err != nil {
			slog.Error("MCP QUIC listener", "error", err)
			os.Exit(1)
		}
		defer ql.Close()
		slog.Info("MCP QUIC starting", "addr", *mcpQUIC)
		if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
			slog.Error("MCP QUIC", "error", err)
			os.Exit(1)
		}

	case *serve != "":
		r := chi.NewRouter()
		for _, mw := range shield.DefaultAPIStack(db) {
			r.Use(mw)
		}
		svc.RegisterHTTP(r)

		httpSrv := &http.Server{
			Addr:              *serve,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			slog.Info("server starting", "addr", *serve)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("server error", "error", err)
				os.Exit(1)
			}
		}()

		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
		slog.Info("server stopped")

	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -url, -pending, -sweep, -serve or -mcp")
		flag.Usage()
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
