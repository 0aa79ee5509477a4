package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/frossi85/researcher-agent/api"
	"github.com/frossi85/researcher-agent/chat"
	"github.com/frossi85/researcher-agent/chunker"
	"github.com/frossi85/researcher-agent/config"
	"github.com/frossi85/researcher-agent/document"
	"github.com/frossi85/researcher-agent/embeddings"
	"github.com/frossi85/researcher-agent/ingestion"
	"github.com/frossi85/researcher-agent/llm"
	"github.com/frossi85/researcher-agent/query"
	"github.com/frossi85/researcher-agent/vectorstore"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "delete":
		deleteCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type services struct {
	tracker *document.Tracker
	store   vectorstore.Store
	ingest  *ingestion.Service
	chat    *chat.Service
}

func buildServices(ctx context.Context, cfg config.Config, logger *log.Logger) (*services, error) {
	provider, err := embeddings.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	gateway := embeddings.NewGateway(provider, embeddings.GatewayOptions{
		Model:     cfg.Embeddings.Model,
		BatchSize: cfg.Embeddings.BatchSize,
		Logger:    logger,
	})

	store, err := vectorstore.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("vector store setup: %w", err)
	}

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunker setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	tracker := document.NewTracker()
	processor := query.NewProcessor(gateway, store, query.Options{
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarityThreshold,
	}, logger)

	return &services{
		tracker: tracker,
		store:   store,
		ingest:  ingestion.NewService(ch, gateway, store, tracker, logger),
		chat:    chat.NewService(processor, llmClient, logger),
	}, nil
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "address for the HTTP server to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(svcs.ingest, svcs.chat, svcs.tracker, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := flags.String("file", "", "path to a PDF file to ingest")
	session := flags.String("session", "", "session id to attach the document to")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	if strings.TrimSpace(*file) == "" {
		logger.Fatalf("ingest requires --file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("read pdf: %v", err)
	}

	result, err := svcs.ingest.ProcessDocument(ctx, data, *file, *session)
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}

	fmt.Printf("document %s: %d chunks across %d pages\n", result.DocumentID, result.ChunkCount, result.PageCount)
	for _, sample := range result.SampleChunks {
		fmt.Printf("  page %d: %s\n", sample.Page, sample.TextPreview)
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	doc := flags.String("doc", "", "document id to query")
	question := flags.String("question", "", "question to ask about the document")
	topK := flags.Int("top-k", cfg.TopK, "number of context chunks to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if strings.TrimSpace(*doc) == "" || strings.TrimSpace(*question) == "" {
		logger.Fatalf("ask requires --doc and --question")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	resp, err := svcs.chat.Answer(ctx, *question, *doc, *topK)
	if err != nil {
		logger.Fatalf("ask failed: %v", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range resp.Sources {
			fmt.Printf("%d. page %d (chunk %s)\n", idx+1, source.PageNumber, source.ChunkID)
		}
	}
}

func deleteCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("delete", flag.ExitOnError)
	doc := flags.String("doc", "", "document id to delete")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse delete flags: %v", err)
	}

	if strings.TrimSpace(*doc) == "" {
		logger.Fatalf("delete requires --doc")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	// The tracker is per-process, so the CLI drops vectors straight from the
	// store instead of going through the ingestion service.
	if err := svcs.store.Delete(ctx, *doc); err != nil {
		logger.Fatalf("delete failed: %v", err)
	}

	fmt.Printf("vectors for document %s deleted\n", *doc)
}

func printUsage() {
	fmt.Println("Usage: researcher-agent <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API server")
	fmt.Println("  ingest   Ingest a PDF document into the vector index (use --file)")
	fmt.Println("  ask      Ask a question about an ingested document (use --doc and --question)")
	fmt.Println("  delete   Remove a document's vectors from the index (use --doc)")
	fmt.Println("")
	fmt.Println("ingest, ask, and delete only share state across invocations when")
	fmt.Println("VECTOR_STORE is postgres or pinecone; the memory store is per-process.")
}
