package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"party-doorman/internal/handler"
	"party-doorman/internal/models"
	"party-doorman/internal/phone"
	"party-doorman/internal/storage"
)

func startCLI(ctx context.Context, stop context.CancelFunc, disp *handler.Dispatcher, store *storage.Store) {
	scanner := bufio.NewScanner(os.Stdin)

	for ctx.Err() == nil {
		fmt.Println("\nCommands:")
		fmt.Println("  1. Send invitation")
		fmt.Println("  2. View all guests")
		fmt.Println("  3. View guests by status")
		fmt.Println("  4. Stats")
		fmt.Println("  5. Exit")
		fmt.Print("\nEnter command (1-5): ")

		if !scanner.Scan() {
			return
		}

		command := strings.TrimSpace(scanner.Text())
		if command == "5" {
			fmt.Println("Exiting...")
			stop()
			return
		}

		ev, err := store.ActiveEvent(ctx)
		if errors.Is(err, storage.ErrNoActiveEvent) {
			fmt.Println("No active event. Run 'doorman create-event' first.")
			continue
		}
		if err != nil {
			fmt.Printf("❌ Error loading event: %v\n", err)
			continue
		}

		switch command {
		case "1":
			sendInvitation(ctx, scanner, disp, ev)
		case "2":
			printText(disp.GuestTree(ctx, ev))
		case "3":
			viewGuestsByStatus(ctx, scanner, store, ev)
		case "4":
			printText(disp.StatsText(ctx, ev))
		default:
			fmt.Println("Invalid command. Please try again.")
		}
	}
}

func printText(text string, err error) {
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return
	}
	fmt.Println("\n" + text)
}

func sendInvitation(ctx context.Context, scanner *bufio.Scanner, disp *handler.Dispatcher, ev *models.Event) {
	fmt.Print("Enter phone number: ")
	if !scanner.Scan() {
		return
	}
	raw := strings.TrimSpace(scanner.Text())

	fmt.Printf("\nSending invitation to %s...\n", raw)
	g, err := disp.SendHostInvite(ctx, ev, raw)
	switch {
	case errors.Is(err, storage.ErrAlreadyInvited):
		fmt.Println("This person is already invited.")
	case err != nil:
		fmt.Printf("❌ Error sending invitation: %v\n", err)
	default:
		fmt.Printf("✅ Invitation sent to %s\n", phone.Mask(g.Phone))
	}
}

func viewGuestsByStatus(ctx context.Context, scanner *bufio.Scanner, store *storage.Store, ev *models.Event) {
	fmt.Println("\nSelect status:")
	fmt.Println("  1. Pending")
	fmt.Println("  2. Confirmed")
	fmt.Println("  3. Declined")
	fmt.Println("  4. Expired")
	fmt.Print("Enter choice (1-4): ")

	if !scanner.Scan() {
		return
	}

	var status models.GuestStatus
	switch strings.TrimSpace(scanner.Text()) {
	case "1":
		status = models.GuestPending
	case "2":
		status = models.GuestConfirmed
	case "3":
		status = models.GuestDeclined
	case "4":
		status = models.GuestExpired
	default:
		fmt.Println("Invalid choice.")
		return
	}

	guests, err := store.ListGuests(ctx, ev.ID, status)
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return
	}
	if len(guests) == 0 {
		fmt.Printf("\nNo guests with status '%s'.\n", status)
		return
	}

	fmt.Printf("\n📋 Guests with status '%s' (%d total):\n", status, len(guests))
	fmt.Println(strings.Repeat("-", 60))
	for _, g := range guests {
		fmt.Printf("Name: %s\n", g.DisplayName("-"))
		fmt.Printf("Phone: %s\n", g.Phone)
		if g.Handle != "" {
			fmt.Printf("Instagram: @%s\n", g.Handle)
		}
		if g.RespondedAt != nil {
			fmt.Printf("Responded: %s\n", g.RespondedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println(strings.Repeat("-", 60))
	}
}
