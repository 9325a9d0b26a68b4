package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"party-doorman/internal/config"
	"party-doorman/internal/handler"
	"party-doorman/internal/llm"
	"party-doorman/internal/outbox"
	"party-doorman/internal/storage"
)

const usage = `Usage: doorman <command> [flags]

Commands:
  serve             run the bot (WhatsApp, sweeper, social worker, API, console)
  create-event      create the active event interactively
  message           route one message offline: --from <phone> --text <text>
  list              print the guest list: [--style tree|simple]
  stats             print event stats
  login-instagram   open a browser to log in to Instagram once
`

func main() {
	cmd := "serve"
	args := []string{}
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg)

	switch cmd {
	case "serve":
		err = serve(cfg, log)
	case "create-event":
		err = createEvent(cfg, log)
	case "message":
		err = message(cfg, log, args)
	case "list":
		err = list(cfg, log, args)
	case "stats":
		err = stats(cfg, log)
	case "login-instagram":
		err = loginInstagram(cfg)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func dispatcherConfig(cfg *config.Config) handler.Config {
	return handler.Config{
		Region:          cfg.DefaultRegion,
		HostDisplayName: cfg.HostDisplayName,
		BotName:         cfg.BotName,
	}
}

func newModel(cfg *config.Config, log zerolog.Logger) *llm.Client {
	return llm.New(llm.Config{
		APIKey:  cfg.AnthropicAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		BotName: cfg.BotName,
		Region:  cfg.DefaultRegion,
	}, log)
}

// offlineDispatcher routes messages without a transport: outbound messages
// are only written to the message log.
func offlineDispatcher(cfg *config.Config, store *storage.Store, log zerolog.Logger) (*handler.Dispatcher, *outbox.Outbox) {
	out := outbox.New(nil, store, log)
	model := newModel(cfg, log)
	return handler.NewDispatcher(store, out, dispatcherConfig(cfg), log,
		handler.WithClassifiers(model),
		handler.WithAnswerer(model),
	), out
}
