package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/cogitoproject/cogito/pkg/agent"
	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/conversations"
	"github.com/cogitoproject/cogito/pkg/databases"
	"github.com/cogitoproject/cogito/pkg/embedders"
	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/metadata"
	"github.com/cogitoproject/cogito/pkg/observability"
	"github.com/cogitoproject/cogito/pkg/research"
	"github.com/cogitoproject/cogito/pkg/sources"
	"github.com/cogitoproject/cogito/pkg/utils"
)

// ChatCmd runs the interactive loop against a new or existing conversation.
type ChatCmd struct {
	Conversation int    `short:"n" help:"Continue an existing conversation by id."`
	Name         string `help:"Name for a new conversation." default:"Untitled"`
	MetricsPort  int    `help:"Serve Prometheus metrics on this port (0 = disabled)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return &usageError{err}
	}

	cleanup, err := initLogger(cli, cfg)
	if err != nil {
		return &usageError{err}
	}
	defer cleanup()

	if c.MetricsPort > 0 {
		observability.Serve(c.MetricsPort)
	}

	store, err := conversations.NewStoreFromConfig(&cfg.Conversations)
	if err != nil {
		return err
	}

	conv, err := c.openConversation(store)
	if err != nil {
		return err
	}

	researcher, closers, err := buildAgent(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Conversation %d: %s (type 'exit' to quit)\n\n", conv.ID, conv.Name)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		conv.Conversation = append(conv.Conversation, llms.User(input))

		started := time.Now()
		output, err := researcher.Run(ctx, conv.Conversation)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted.")
				return nil
			}
			return fmt.Errorf("turn failed: %w", err)
		}

		fmt.Printf("\ncogito> %s\n", output.Response)
		printResourceSummary(output, time.Since(started))

		conv.Conversation = append(conv.Conversation, llms.Assistant(output.Response))
		if err := store.Save(conv); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
	}

	return scanner.Err()
}

func (c *ChatCmd) openConversation(store *conversations.Store) (*conversations.Conversation, error) {
	if c.Conversation > 0 {
		return store.Get(c.Conversation)
	}
	return store.Create(c.Name)
}

// buildAgent wires every collaborator from config. The returned closers run
// in reverse-build order on shutdown.
func buildAgent(cfg *config.Config) (*agent.Agent, []func() error, error) {
	var closers []func() error

	tokenizerModel := cfg.LLM.TokenizerModel
	if tokenizerModel == "" {
		tokenizerModel = cfg.LLM.Model
	}
	tokens, err := utils.NewTokenCounter(tokenizerModel)
	if err != nil {
		return nil, closers, fmt.Errorf("failed to create token counter: %w", err)
	}

	llm, err := llms.NewOpenAIProviderFromConfig(&cfg.LLM)
	if err != nil {
		return nil, closers, err
	}
	closers = append([]func() error{llm.Close}, closers...)

	embedder, err := embedders.NewOpenAIEmbedderFromConfig(&cfg.Embedder)
	if err != nil {
		return nil, closers, err
	}

	db, err := databases.NewQdrantDatabaseFromConfig(&cfg.VectorStore)
	if err != nil {
		return nil, closers, err
	}
	closers = append([]func() error{db.Close}, closers...)

	catalog, err := metadata.NewPostgresCatalogFromConfig(&cfg.Metadata)
	if err != nil {
		return nil, closers, err
	}
	closers = append([]func() error{catalog.Close}, closers...)

	vector := sources.NewVectorStore(embedder, db, catalog, &cfg.VectorStore, &cfg.Research)
	encyclopedia := sources.NewEncyclopediaFromConfig(&cfg.Encyclopedia, llm)

	researcher, err := agent.NewAgent(agent.Options{
		LLM:          llm,
		Tokens:       tokens,
		Vector:       vector,
		Encyclopedia: encyclopedia,
		Research:     &cfg.Research,
		Status: func(text string) {
			fmt.Fprintf(os.Stderr, "  … %s\n", text)
		},
	})
	if err != nil {
		return nil, closers, err
	}

	return researcher, closers, nil
}

// printResourceSummary lists the distinct sources cited during the turn.
func printResourceSummary(output *agent.Output, elapsed time.Duration) {
	seen := make(map[string]struct{})
	var cited []string
	for _, result := range output.QueryResults {
		_, citation, ok := result.Result.Evidence()
		if !ok {
			continue
		}
		label := fmt.Sprintf("%s — %s (%s)",
			strings.Join(citation.Authors, ", "), citation.Title, citation.Source)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		cited = append(cited, label)
	}
	sort.Strings(cited)

	fmt.Printf("\n[%s research, %d queries, %.1fs]\n",
		output.Effort.String(), countQueries(output.QueryResults), elapsed.Seconds())
	if len(cited) > 0 {
		fmt.Println("Sources consulted:")
		for _, label := range cited {
			fmt.Printf("  - %s\n", label)
		}
	}
	fmt.Println()
}

func countQueries(results []research.QueryResult) int {
	seen := make(map[string]struct{})
	for _, r := range results {
		seen[r.Query.Key()] = struct{}{}
	}
	return len(seen)
}
