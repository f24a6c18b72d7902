package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pampalabs/gabriela/internal/agent"
	"github.com/pampalabs/gabriela/internal/channel"
	"github.com/pampalabs/gabriela/internal/config"
	"github.com/pampalabs/gabriela/internal/llm"
	"github.com/pampalabs/gabriela/internal/logger"
	"github.com/pampalabs/gabriela/internal/session"
	"github.com/pampalabs/gabriela/internal/storage"
	"github.com/pampalabs/gabriela/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	// Storage misconfiguration is fatal here rather than on first tool call.
	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		logger.L.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var journal *session.Journal
	if sqliteStore, ok := store.(*storage.SQLiteStore); ok {
		journal, err = session.NewJournal(sqliteStore.DB())
		if err != nil {
			logger.L.Warn("session journal unavailable", "error", err)
		}
	}

	llmClient := llm.NewClient(cfg.LLM)
	catalog := tools.DefaultCatalog(store)
	sessions := session.NewStore()
	ag := agent.New(llmClient, cfg.LLM, cfg.Agent, catalog, sessions, journal)

	mux := http.NewServeMux()
	mux.Handle("/whatsapp", channel.NewWhatsAppHandler(ag))

	// plain text endpoint for local poking
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		sender := r.URL.Query().Get("from")
		if sender == "" {
			sender = "local"
		}
		response, err := ag.Process(r.Context(), sender, string(body), "")
		if err != nil {
			logger.L.Error("process error", "err", err, "body", string(body))
			http.Error(w, "failed to process request", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(response))
	})

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", serverAddr)
	if err := http.ListenAndServe(serverAddr, mux); err != nil {
		logger.L.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
