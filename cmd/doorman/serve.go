package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"party-doorman/internal/api"
	"party-doorman/internal/browser"
	"party-doorman/internal/config"
	"party-doorman/internal/expiry"
	"party-doorman/internal/handler"
	"party-doorman/internal/location"
	"party-doorman/internal/outbox"
	"party-doorman/internal/social"
	"party-doorman/internal/whatsapp"
)

func serve(cfg *config.Config, log zerolog.Logger) error {
	fmt.Println("🎉 Party Doorman")
	fmt.Println("================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	wa, err := whatsapp.NewService(ctx, whatsapp.Config{DataDir: cfg.DataDir}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize WhatsApp service: %w", err)
	}
	out := outbox.New(wa, store, log)
	model := newModel(cfg, log)

	opts := []handler.Option{
		handler.WithClassifiers(model),
		handler.WithAnswerer(model),
		handler.WithContacts(wa),
		handler.WithDropper(location.NewDropper(store, out, cfg.LocationDropDelay, log)),
	}

	var worker *social.Worker
	if cfg.Social.Enabled {
		ig := browser.New(cfg.Browser, log)
		defer ig.Close()
		worker = social.New(store, ig, out, cfg.Social, log)
		opts = append(opts, handler.WithSocial(worker))
	}

	disp := handler.NewDispatcher(store, out, dispatcherConfig(cfg), log, opts...)
	wa.SetMessageHandler(func(ctx context.Context, in whatsapp.Incoming) error {
		disp.Respond(ctx, handler.Inbound{From: in.Phone, Text: in.Text, VCard: in.VCard})
		return nil
	})

	fmt.Println("Connecting to WhatsApp...")
	if err := wa.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}
	defer wa.Disconnect()
	fmt.Println("✅ Connected to WhatsApp!")

	go func() {
		if err := expiry.New(store, out, cfg.Expiry, cfg.DefaultRegion, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Expiration sweeper stopped")
		}
	}()

	var summarizer api.Summarizer
	if worker != nil {
		summarizer = worker
		if _, err := worker.Recover(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to recover social jobs")
		}
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Social worker stopped")
			}
		}()
	}

	if cfg.APIToken != "" {
		srv := api.New(store, disp, out, summarizer, api.Config{
			Addr:  cfg.HTTPAddr,
			Token: cfg.APIToken,
			Debug: cfg.LogLevel == "debug",
		}, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("HTTP server stopped")
				stop()
			}
		}()
	} else {
		log.Info().Msg("API_TOKEN not set, HTTP API disabled")
	}

	if cfg.CLIEnabled {
		go startCLI(ctx, stop, disp, store)
	}

	<-ctx.Done()
	fmt.Println("\n\nShutting down...")
	fmt.Println("Goodbye! 👋")
	return nil
}
