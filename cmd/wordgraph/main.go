// Command wordgraph resolves relations, prints demo graphs, lists claims and
// purges the image cache from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/portfolio-globe/backend/internal/config"
	"github.com/portfolio-globe/backend/internal/storage"
	"github.com/portfolio-globe/backend/internal/util"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/ai/ollama"
	"github.com/portfolio-globe/backend/pkg/ai/openai"
	"github.com/portfolio-globe/backend/pkg/claims"
	"github.com/portfolio-globe/backend/pkg/ledger"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/logger/console"
	"github.com/portfolio-globe/backend/pkg/relation"
	"github.com/portfolio-globe/backend/pkg/scene"
)

const usage = `usage: wordgraph <command> [flags]

commands:
  resolve SOURCE RELATION   ask the configured provider for a related word
  demo                      print a generated demo graph as JSON
  claims                    list the names claimed on the ledger
  purge-images              empty the S3 image cache
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "resolve":
		err = runResolve(ctx, args)
	case "demo":
		err = runDemo(args)
	case "claims":
		err = runClaims(ctx, args)
	case "purge-images":
		err = runPurgeImages(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "wordgraph:", err)
		os.Exit(1)
	}
}

func load(flags *pflag.FlagSet, args []string) (*config.Config, error) {
	config.Flags(flags)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Log.Debug,
		JSON:  cfg.Log.JSON,
	}))
	return cfg, nil
}

func runResolve(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	model := flags.String("model", "", "model override")
	cfg, err := load(flags, args)
	if err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return fmt.Errorf("resolve needs SOURCE and RELATION")
	}

	local, err := ollama.NewOllamaClient(ollama.NewOllamaClientParams{
		Model:                 cfg.AI.Local.Model,
		BaseURL:               cfg.AI.Local.URL,
		MaxConcurrentRequests: cfg.AI.Local.Parallel,
	})
	if err != nil {
		return err
	}
	resolver := relation.NewResolver(
		&relation.LocalProvider{Client: local},
		&relation.RemoteProvider{Client: openai.NewOpenAIClient(openai.NewOpenAIClientParams{
			Model:   cfg.AI.Remote.Model,
			ChatURL: cfg.AI.Remote.URL,
			ChatKey: cfg.AI.Remote.Key,
		})},
	)

	var opts []ai.GenerateOption
	if *model != "" {
		opts = append(opts, ai.WithModel(*model))
	}
	source, rel := flags.Arg(0), flags.Arg(1)
	fmt.Println(relation.Normalize(resolver.Resolve(ctx, source, rel, relation.ParseKind(cfg.AI.Provider), opts...)))
	return nil
}

type demoGraph struct {
	Nodes    []scene.Node `json:"nodes"`
	Edges    []scene.Edge `json:"edges"`
	Clusters [][]string   `json:"clusters"`
}

func runDemo(args []string) error {
	flags := pflag.NewFlagSet("demo", pflag.ContinueOnError)
	nodes := flags.Int("nodes", 50, "number of nodes")
	clusters := flags.Int("clusters", 4, "number of clusters")
	seed := flags.Uint64("seed", 1, "random seed")
	if _, err := load(flags, args); err != nil {
		return err
	}

	store := scene.NewStore()
	if err := store.BulkGenerate(*nodes, *clusters, rand.New(rand.NewPCG(*seed, 0))); err != nil {
		return err
	}
	snap := store.Snapshot()
	return printJSON(demoGraph{Nodes: snap.Nodes(), Edges: snap.Edges(), Clusters: snap.Clusters()})
}

func runClaims(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("claims", pflag.ContinueOnError)
	cfg, err := load(flags, args)
	if err != nil {
		return err
	}

	cache := claims.New(ledger.NewClient(ledger.ClientParams{
		URL: cfg.Ledger.URL,
		Program: ledger.Program{
			Package:  cfg.Ledger.Program,
			Module:   cfg.Ledger.Module,
			Function: cfg.Ledger.Function,
		},
		Tries:    cfg.Ledger.Tries,
		PageSize: cfg.Ledger.PageSize,
	}))
	if err := cache.Refresh(ctx); err != nil {
		return err
	}
	return printJSON(cache.Snapshot())
}

func runPurgeImages(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("purge-images", pflag.ContinueOnError)
	cfg, err := load(flags, args)
	if err != nil {
		return err
	}
	if cfg.Storage.Bucket == "" {
		return fmt.Errorf("no storage bucket configured; the memory cache lives in the server process")
	}

	cache, err := storage.NewImageCache(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	n, err := cache.Purge(ctx)
	if err != nil {
		return err
	}
	logger.Info("[Storage] image cache purged", "bucket", cfg.Storage.Bucket, "deleted", n)
	return printJSON(map[string]int{"deleted": n})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
