//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Command semgraph runs an interactive editing session over one
// workspace/system pair, with the broadcast server listening for other
// terminals of the same graph.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trpc.group/trpc-go/semgraph/broadcast"
	"trpc.group/trpc-go/semgraph/config"
	"trpc.group/trpc-go/semgraph/dataservice"
	"trpc.group/trpc-go/semgraph/engine"
	"trpc.group/trpc-go/semgraph/log"
	"trpc.group/trpc-go/semgraph/model"
	"trpc.group/trpc-go/semgraph/model/anthropic"
	"trpc.group/trpc-go/semgraph/model/openai"
	"trpc.group/trpc-go/semgraph/prompt"
	"trpc.group/trpc-go/semgraph/session"
	"trpc.group/trpc-go/semgraph/storage/inmemory"
	"trpc.group/trpc-go/semgraph/tool"
	"trpc.group/trpc-go/semgraph/tool/graphquery"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to the YAML config file")
		workspaceID = flag.String("workspace", "default", "workspace identifier")
		systemID    = flag.String("system", "default", "system identifier")
		userID      = flag.String("user", "local", "user identifier")
	)
	flag.Parse()

	if err := run(*configPath, *workspaceID, *systemID, *userID); err != nil {
		fmt.Fprintln(os.Stderr, "semgraph:", err)
		os.Exit(1)
	}
}

func run(configPath, workspaceID, systemID, userID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.SetLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		log.SetWriter(f)
	}

	llm, err := buildModel(cfg)
	if err != nil {
		return err
	}

	svc := dataservice.For(workspaceID, systemID, dataservice.WithCacheTTL(cfg.Cache.TTL))
	registry := tool.NewRegistry()
	if err := registry.Register(graphquery.New(svc)); err != nil {
		return err
	}

	assemblerOpts := []prompt.Option{prompt.WithHistoryLimit(cfg.Prompt.HistoryLimit)}
	if cfg.Prompt.RulesFile != "" {
		assemblerOpts = append(assemblerOpts, prompt.WithRulesFile(cfg.Prompt.RulesFile))
	}
	eng := engine.New(svc, llm, registry,
		engine.WithPromptBudget(cfg.Prompt.TokenBudget),
		engine.WithMaxTokens(cfg.Model.MaxTokens),
		engine.WithAssemblerOptions(assemblerOpts...),
	)

	bus, err := broadcast.NewServer(broadcast.WithPath(cfg.WebSocket.Path))
	if err != nil {
		return err
	}
	bus.Start(cfg.WebSocket.Addr)
	log.Infof("broadcast listening on %s%s", cfg.WebSocket.Addr, cfg.WebSocket.Path)

	sess := session.New(workspaceID, systemID, userID, inmemory.New(), eng, session.WithBus(bus))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Shutdown(context.Background())

	return repl(ctx, sess)
}

func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.Model.APIKey)}
		if cfg.Model.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Model.BaseURL))
		}
		return anthropic.New(cfg.Model.Name, opts...), nil
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithAPIKey(cfg.Model.APIKey)}
		if cfg.Model.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Model.BaseURL))
		}
		return openai.New(cfg.Model.Name, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func repl(ctx context.Context, sess *session.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Println("semgraph ready. /help for commands, exit to quit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		streamed := false
		onChunk := func(chunk *engine.Chunk) {
			switch chunk.Type {
			case engine.ChunkText:
				streamed = true
				fmt.Print(chunk.Text)
			case engine.ChunkContent:
				streamed = true
				fmt.Printf("\n%s\n", chunk.Text)
			}
		}
		out, done, err := sess.HandleInput(ctx, scanner.Text(), onChunk)
		if streamed {
			fmt.Println()
		}
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if out != "" && !streamed {
			fmt.Println(out)
		}
		if done {
			return nil
		}
	}
	return scanner.Err()
}
