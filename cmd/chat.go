package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/embermind/engram/core/agent"
	"github.com/embermind/engram/core/embedding"
	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/identity"
	"github.com/embermind/engram/core/retrieval"
	"github.com/embermind/engram/core/tools"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"serve"},
	Short:   "Start an interactive conversation",
	Long: `Start an interactive conversation with the persona. Each turn
retrieves relevant memories from the graph and offers the registered
tools to the model. Press Ctrl+C or type /quit to exit.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := graph.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer store.Close()

	identities := identity.NewService(store, logger)

	embedder, err := embedding.NewProvider(ctx, cfg.Embedding)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	engine, err := retrieval.NewEngine(store, identities, embedder, logger)
	if err != nil {
		return fmt.Errorf("retrieval engine: %w", err)
	}
	defer engine.Close()

	registry, err := tools.NewRegistry(cfg.Tools.Dir, memoryHandlers(store, identities, embedder), logger)
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}

	if cfg.Tools.WatchEnabled {
		watcher, err := tools.NewWatcher(registry, tools.WatchConfig{Debounce: cfg.Tools.Debounce}, logger)
		if err != nil {
			return fmt.Errorf("tool watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start tool watcher: %w", err)
		}
		defer watcher.Stop()
	}

	completer, err := agent.NewAnthropicCompleter(cfg.Agent)
	if err != nil {
		return err
	}

	a := agent.New(engine, registry, identities, completer, agent.Options{
		MaxIterations: cfg.Agent.MaxIterations,
		Logger:        logger,
	})

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s%sengram chat%s %s(%s, %d tools)%s\n",
		colorBold, colorCyan, colorReset,
		colorGray, completer.ModelName(), registry.Count(), colorReset)
	fmt.Fprintf(w, "%sType /quit to exit.%s\n\n", colorGray, colorReset)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprintf(w, "%s>%s ", colorGreen, colorReset)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		reply, err := a.Respond(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(w, "%serror:%s %v\n", colorRed, colorReset, err)
			continue
		}

		if reply.Fallback {
			fmt.Fprintf(w, "%s(memory unavailable this turn)%s\n", colorYellow, colorReset)
		}
		if len(reply.ToolsUsed) > 0 {
			fmt.Fprintf(w, "%s[used: %s]%s\n", colorGray, strings.Join(reply.ToolsUsed, ", "), colorReset)
		}
		fmt.Fprintf(w, "%s\n\n", reply.Text)
	}

	fmt.Fprintf(w, "\n%sGoodbye.%s\n", colorGray, colorReset)
	return scanner.Err()
}

// memoryHandlers backs the starter tool definitions written by init.
func memoryHandlers(store *graph.Store, identities *identity.Service, embedder embedding.Provider) tools.HandlerTable {
	return tools.HandlerTable{
		"memory.search": func(ctx context.Context, input map[string]any) (any, error) {
			query, _ := input["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("query required")
			}
			nodeType, _ := input["node_type"].(string)

			vec, err := embedder.Embed(ctx, query)
			if err == nil {
				if scored, err := store.VectorSearch(vec, graph.NodeType(nodeType), 5, 0.3); err == nil && len(scored) > 0 {
					return scored, nil
				}
			}
			return store.SearchAll(query, 5)
		},

		"memory.remember": func(ctx context.Context, input map[string]any) (any, error) {
			title, _ := input["title"].(string)
			content, _ := input["content"].(string)
			memoryType, _ := input["memory_type"].(string)
			if title == "" || content == "" {
				return nil, fmt.Errorf("title and content required")
			}
			if memoryType == "" {
				memoryType = "episodic"
			}

			mem, err := identities.RecordMemory(title, content, memoryType, "")
			if err != nil {
				return nil, err
			}
			if vec, err := embedder.Embed(ctx, content); err == nil {
				if err := store.SetEmbedding(mem.ID, vec); err != nil {
					return nil, err
				}
			}
			return map[string]any{"id": mem.ID, "stored": true}, nil
		},
	}
}
