package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"party-doorman/internal/browser"
	"party-doorman/internal/config"
	"party-doorman/internal/handler"
	"party-doorman/internal/models"
	"party-doorman/internal/phone"
)

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func createEvent(cfg *config.Config, log zerolog.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	scanner := bufio.NewScanner(os.Stdin)
	ev := &models.Event{
		Name:             prompt(scanner, "Event name: "),
		Date:             prompt(scanner, "Date (YYYY-MM-DD): "),
		TimeWindow:       prompt(scanner, "Time window (e.g. 9pm-late): "),
		LocationDropTime: prompt(scanner, "Location drop time (e.g. 8pm): "),
	}
	if ev.Name == "" {
		return errors.New("event name is required")
	}
	if _, err := time.Parse("2006-01-02", ev.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", ev.Date, err)
	}

	fmt.Println("House rules, one per line (empty line to finish):")
	for {
		rule := prompt(scanner, "  - ")
		if rule == "" {
			break
		}
		ev.Rules = append(ev.Rules, rule)
	}

	host, err := phone.Normalize(prompt(scanner, "Host phone: "), cfg.DefaultRegion)
	if err != nil {
		return fmt.Errorf("invalid host phone: %w", err)
	}
	ev.HostPhone = host

	created, err := store.CreateEvent(context.Background(), ev)
	if err != nil {
		return err
	}
	log.Info().Int64("event_id", created.ID).Str("name", created.Name).Msg("Event created")
	fmt.Printf("\n✅ %s on %s is now the active event.\n", created.Name, created.FormattedDate())
	return nil
}

func message(cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("message", flag.ExitOnError)
	from := fs.String("from", "", "sender phone number")
	text := fs.String("text", "", "message text")
	vcardPath := fs.String("vcard", "", "path to a vCard file to send as a contact card")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" {
		return errors.New("--from is required")
	}

	in := handler.Inbound{From: *from, Text: *text}
	if *vcardPath != "" {
		b, err := os.ReadFile(*vcardPath)
		if err != nil {
			return fmt.Errorf("failed to read vCard: %w", err)
		}
		in.VCard = string(b)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	disp, out := offlineDispatcher(cfg, store, log)
	r := disp.Handle(ctx, in)
	if r.Text != "" {
		out.LogReply(ctx, r.EventID, r.To, r.Text)
	}
	fmt.Println(r.Text)
	return nil
}

func list(cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	style := fs.String("style", "tree", "output style: tree or simple")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *style != "tree" && *style != "simple" {
		return fmt.Errorf("unknown style %q", *style)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	ev, err := store.ActiveEvent(ctx)
	if err != nil {
		return err
	}
	disp, _ := offlineDispatcher(cfg, store, log)

	var text string
	if *style == "simple" {
		text, err = disp.ConfirmedList(ctx, ev)
	} else {
		text, err = disp.GuestTree(ctx, ev)
	}
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func stats(cfg *config.Config, log zerolog.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	ev, err := store.ActiveEvent(ctx)
	if err != nil {
		return err
	}
	disp, _ := offlineDispatcher(cfg, store, log)
	text, err := disp.StatsText(ctx, ev)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func loginInstagram(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Browser.ProfileDir, 0o700); err != nil {
		return fmt.Errorf("failed to create browser profile dir: %w", err)
	}
	fmt.Printf("Opening a browser with profile %s\n", cfg.Browser.ProfileDir)
	return browser.Login(context.Background(), cfg.Browser, func() error {
		fmt.Println("Log in to Instagram in the browser window, then press Enter here.")
		_, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println("✅ Session saved.")
		return nil
	})
}
