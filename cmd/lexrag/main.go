// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command lexrag answers questions about a legal/licensing document corpus.
//
// Usage:
//
//	lexrag serve --config config.yaml
//	lexrag query "What is a subscriber?" --source cme
//	lexrag sources --config config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/httpclient"
	"github.com/kadirpekel/lexrag/pkg/logger"
	"github.com/kadirpekel/lexrag/pkg/pipeline"
	"github.com/kadirpekel/lexrag/pkg/ratelimit"
	"github.com/kadirpekel/lexrag/pkg/server"
	"github.com/kadirpekel/lexrag/pkg/version"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Query    QueryCmd    `cmd:"" help:"Run one question through the pipeline and print the answer."`
	Sources  SourcesCmd  `cmd:"" help:"List configured sources and corpus statistics."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"config.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or json)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := version.Get()
	fmt.Printf("lexrag %s (commit %s, built %s)\n", info.Version, info.GitCommit, info.BuildDate)
	return nil
}

// ValidateCmd checks that the config file loads, expands and validates.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid (%d sources, llm=%s, vector=%s)\n",
		cli.Config, len(cfg.Corpus.Sources), cfg.LLM.Type, cfg.Vector.Type)
	return nil
}

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Port int `help:"Override the configured port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := server.New(server.Deps{
		Config:       cfg,
		Orchestrator: app.orchestrator,
		Sink:         app.sink,
		Limiter:      ratelimit.NewSlidingWindow(cfg.Server.RateLimitPerMin),
		Metrics:      app.metrics,
		Chunks:       app.chunks,
		Vector:       app.vector,
		Lexical:      app.lexical,
		HTTPClient:   httpclient.New(),
		Logger:       app.logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		app.logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// QueryCmd runs the pipeline once from the terminal, no server involved.
type QueryCmd struct {
	Question string   `arg:"" help:"Question to ask."`
	Source   []string `help:"Source tag(s) to search (default: all configured)."`
	Mode     string   `help:"Search mode (vector, lexical, hybrid)."`
	Debug    bool     `help:"Write a debug audit record for this query."`
	Timeout  int      `help:"Deadline in seconds." default:"120"`
}

func (c *QueryCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.Timeout)*time.Second)
	defer cancel()

	result, err := app.orchestrator.Query(ctx, &pipeline.Request{
		Question:   c.Question,
		Sources:    c.Source,
		SearchMode: c.Mode,
		Debug:      c.Debug,
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	fmt.Println()
	if len(result.Citations) > 0 {
		fmt.Println("Citations:")
		for _, cit := range result.Citations {
			section := cit.Section
			if section == "" {
				section = "-"
			}
			fmt.Printf("  %s | %s | pp. %d-%d | %s\n",
				cit.Document, section, cit.PageStart, cit.PageEnd, strings.ToUpper(cit.Source))
		}
		fmt.Println()
	}
	fmt.Printf("query_id=%s mode=%s reranked=%t chunks=%d/%d tokens=%d/%d latency=%dms\n",
		result.QueryID, result.EffectiveSearchMode, result.ScoresAreReranked,
		result.ChunksUsed, result.ChunksRetrieved,
		result.InputTokens, result.OutputTokens, result.LatencyMs)
	return nil
}

// SourcesCmd lists the configured corpus.
type SourcesCmd struct{}

func (c *SourcesCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Printf("%-16s %10s %10s\n", "SOURCE", "DOCUMENTS", "CHUNKS")
	for _, source := range app.chunks.Sources() {
		fmt.Printf("%-16s %10d %10d\n",
			source, app.chunks.DocumentCount(source), app.chunks.ChunkCount(source))
	}
	return nil
}

func main() {
	// Missing .env is fine; the config expands plain environment variables.
	_ = godotenv.Load()

	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("lexrag"),
		kong.Description("Grounded Q&A over a legal/licensing document corpus."),
		kong.UsageOnError(),
	)

	output := os.Stderr
	if cli.LogFile != "" {
		f, closeFn, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer closeFn()
		output = f
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)

	if err := kctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "lexrag: %v\n", err)
		os.Exit(1)
	}
}
