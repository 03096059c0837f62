package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"bill-analyst/internal/bill"
	"bill-analyst/internal/chat"
	"bill-analyst/internal/extraction"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()

	fs := ff.NewFlagSet("bill-analyst")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "bill-analyst.db", "Session database file path")
		provider    = fs.StringLong("provider", "gemini", "Model provider: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		visionModel = fs.StringLong("ollama-vision-model", "llava", "Ollama vision model for extraction (e.g. llava, qwen2-vl)")
		chatModel   = fs.StringLong("ollama-chat-model", "llama3.1", "Ollama model for conversation")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_ANALYST"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing session database...")
	db, err := bill.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize session database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var extractor extraction.Extractor
	var responder chat.Responder
	switch *provider {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini provider...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini extractor", "error", err)
			os.Exit(1)
		}
		responder, err = chat.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini responder", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama provider...", "url", *ollamaURL, "vision_model", *visionModel, "chat_model", *chatModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *visionModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama extractor", "error", err)
			os.Exit(1)
		}
		responder, err = chat.NewOllama(*ollamaURL, *chatModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama responder", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid provider", "provider", *provider, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()
	defer responder.Close()

	service := bill.NewService(db, extractor, responder)

	basicAuth := bill.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := bill.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
