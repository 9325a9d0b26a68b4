package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"party-doorman/internal/intent"
	"party-doorman/internal/location"
	"party-doorman/internal/models"
	"party-doorman/internal/phone"
	"party-doorman/internal/storage"
)

func (d *Dispatcher) handleHost(ctx context.Context, ev *models.Event, text string, card phone.Card) (string, error) {
	st, err := d.store.GetState(ctx, ev.ID, ev.HostPhone)
	if err != nil {
		return "", err
	}
	if st.State == models.StateAnsweringQuestion {
		return d.relayHostAnswer(ctx, ev, st, text)
	}

	if card.Phone != "" {
		return d.hostInvites(ctx, ev, []string{card.Phone}), nil
	}

	if strings.Contains(text, "|") {
		if det, ok := location.ParseDetails(text); ok {
			return d.executeDrop(ctx, ev, det)
		}
	}

	if cmd, arg, ok := intent.DetectHostCommand(text); ok {
		switch cmd {
		case intent.CmdList:
			return d.GuestTree(ctx, ev)
		case intent.CmdStats:
			return d.StatsText(ctx, ev)
		case intent.CmdSearch:
			return d.searchText(ctx, ev, arg)
		case intent.CmdDrop:
			return d.dropInstructions(ctx, ev)
		case intent.CmdCancelDrop:
			if d.drops != nil && d.drops.Cancel() {
				return msgHostDropCancelled, nil
			}
			return msgHostNoDropPending, nil
		case intent.CmdGraph:
			if d.social == nil {
				return msgHostGraphOff, nil
			}
			return d.social.Summary(ctx, ev.ID)
		}
	}

	if phones := phone.ExtractAll(text, d.cfg.Region); len(phones) > 0 {
		return d.hostInvites(ctx, ev, phones), nil
	}

	if d.answerer != nil {
		if reply, err := d.answerer.AnswerHost(ctx, text, ev); err == nil && reply != "" {
			return reply, nil
		}
	}
	return msgHostHelp, nil
}

// relayHostAnswer passes the host's reply to the guest whose question is
// pending. "skip" drops the question.
func (d *Dispatcher) relayHostAnswer(ctx context.Context, ev *models.Event, st *models.ConversationState, text string) (string, error) {
	guestPhone := st.Context.String(models.CtxGuestPhone)
	name := st.Context.String(models.CtxGuestName)
	question := st.Context.String(models.CtxQuestion)

	// Clearing the pending question is the transition; a concurrent host
	// message that already cleared it wins.
	err := d.store.Transition(ctx, ev.ID, ev.HostPhone, st.Version, models.StateIdle, models.Context{}, nil)
	if errors.Is(err, storage.ErrStateConflict) {
		return "That question was already handled.", nil
	}
	if err != nil {
		return "", err
	}
	if guestPhone == "" {
		return msgHostLostGuest, nil
	}
	if strings.EqualFold(strings.Trim(strings.TrimSpace(text), ".!"), "skip") {
		return fmt.Sprintf("Dropped the question from %s.", name), nil
	}

	answer := text
	if d.answerer != nil {
		if polished, err := d.answerer.RewriteHostAnswer(ctx, text, question); err == nil && polished != "" {
			answer = polished
		}
	}
	if !d.out.Send(ctx, ev.ID, guestPhone, answer) {
		return fmt.Sprintf("Couldn't send to %s. Try again.", name), nil
	}
	return fmt.Sprintf("Sent to %s.", name), nil
}

// hostInvites sends a direct invite to every phone and summarises the result.
func (d *Dispatcher) hostInvites(ctx context.Context, ev *models.Event, phones []string) string {
	var (
		sent, already int
		failed        []string
	)
	for _, p := range phones {
		_, err := d.SendHostInvite(ctx, ev, p)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, storage.ErrAlreadyInvited):
			already++
		default:
			zerolog.Ctx(ctx).Error().Err(err).Str("phone", phone.Mask(p)).Msg("Failed to invite")
			failed = append(failed, d.displayPhone(p))
		}
	}

	var parts []string
	switch sent {
	case 0:
	case 1:
		parts = append(parts, "Sent 1 invite.")
	default:
		parts = append(parts, fmt.Sprintf("Sent %d invites.", sent))
	}
	if already > 0 {
		parts = append(parts, fmt.Sprintf("%d already invited.", already))
	}
	if len(failed) > 0 {
		parts = append(parts, "Couldn't invite: "+strings.Join(failed, ", "))
	}
	if len(parts) == 0 {
		return "No invites sent."
	}
	return strings.Join(parts, "\n")
}

func statusEmoji(s models.GuestStatus) string {
	switch s {
	case models.GuestConfirmed:
		return "✅"
	case models.GuestPending:
		return "⏳"
	case models.GuestDeclined:
		return "❌"
	case models.GuestExpired:
		return "⏰"
	}
	return "❓"
}

func guestLabel(g *models.Guest) string {
	return g.DisplayName(phone.Mask(g.Phone))
}

// GuestTree renders the invite tree: host invites at the root, plus-ones
// nested under whoever invited them.
func (d *Dispatcher) GuestTree(ctx context.Context, ev *models.Event) (string, error) {
	guests, err := d.store.ListGuests(ctx, ev.ID, "")
	if err != nil {
		return "", err
	}
	known := map[string]bool{}
	for _, g := range guests {
		known[g.Phone] = true
	}
	var roots []*models.Guest
	children := map[string][]*models.Guest{}
	for i := range guests {
		g := &guests[i]
		if !known[g.InvitedByPhone] {
			roots = append(roots, g)
			continue
		}
		children[g.InvitedByPhone] = append(children[g.InvitedByPhone], g)
	}
	if len(roots) == 0 {
		return fmt.Sprintf("📋 %s\n\nNo guests invited yet.", ev.Name), nil
	}

	lines := []string{"📋 " + ev.Name, ""}
	var walk func(g *models.Guest, depth int)
	walk = func(g *models.Guest, depth int) {
		prefix := ""
		if depth > 0 {
			prefix = strings.Repeat("   ", depth-1) + "  └─ "
		}
		lines = append(lines, prefix+statusEmoji(g.Status)+" "+guestLabel(g))
		for _, c := range children[g.Phone] {
			walk(c, depth+1)
		}
	}
	for _, g := range roots {
		walk(g, 0)
	}
	return strings.Join(lines, "\n"), nil
}

// ConfirmedList renders confirmed guests only.
func (d *Dispatcher) ConfirmedList(ctx context.Context, ev *models.Event) (string, error) {
	guests, err := d.store.ListGuests(ctx, ev.ID, models.GuestConfirmed)
	if err != nil {
		return "", err
	}
	if len(guests) == 0 {
		return fmt.Sprintf("📋 %s\n\nNo confirmed guests yet.", ev.Name), nil
	}
	lines := []string{fmt.Sprintf("✅ Confirmed (%d):", len(guests))}
	for i := range guests {
		lines = append(lines, "  • "+guestLabel(&guests[i]))
	}
	return strings.Join(lines, "\n"), nil
}

// StatsText renders guest counts for the host.
func (d *Dispatcher) StatsText(ctx context.Context, ev *models.Event) (string, error) {
	st, err := d.store.EventStats(ctx, ev.ID)
	if err != nil {
		return "", err
	}
	lines := []string{
		"📊 " + ev.Name,
		"",
		fmt.Sprintf("✅ Confirmed: %d", st.Confirmed),
		fmt.Sprintf("⏳ Pending: %d", st.Pending),
		fmt.Sprintf("❌ Declined: %d", st.Declined),
	}
	if st.Expired > 0 {
		lines = append(lines, fmt.Sprintf("⏰ Expired: %d", st.Expired))
	}
	lines = append(lines,
		fmt.Sprintf("📥 Total invited: %d", st.Total),
		fmt.Sprintf("➕ +1s used: %d", st.PlusOnesUsed))
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) searchText(ctx context.Context, ev *models.Event, query string) (string, error) {
	results, err := d.store.SearchGuests(ctx, ev.ID, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results for '%s'", query), nil
	}

	lines := []string{fmt.Sprintf("🔍 Results for '%s':", query), ""}
	for i := range results {
		g := &results[i]
		origin := "initial invite"
		if g.IsPlusOne() {
			inviter := phone.Mask(g.InvitedByPhone)
			if in, err := d.store.GuestByPhone(ctx, ev.ID, g.InvitedByPhone); err == nil && in.Name != "" {
				inviter = in.Name
			}
			origin = "invited by " + inviter
		}
		lines = append(lines, fmt.Sprintf("%s %s (%s) · invites %d/%d",
			statusEmoji(g.Status), guestLabel(g), origin, g.QuotaUsed, models.QuotaCap))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) dropInstructions(ctx context.Context, ev *models.Event) (string, error) {
	st, err := d.store.EventStats(ctx, ev.ID)
	if err != nil {
		return "", err
	}
	if st.Confirmed == 0 {
		return msgHostNoGuestsDrop, nil
	}
	return fmt.Sprintf("Ready to drop location to %d confirmed guests.\n\n"+
		"Before I send it:\n"+
		"1. What's the address?\n"+
		"2. Any arrival window?\n"+
		"3. Any last notes?\n\n"+
		"Reply with: [address] | [arrival window] | [notes]", st.Confirmed), nil
}

func (d *Dispatcher) executeDrop(ctx context.Context, ev *models.Event, det location.Details) (string, error) {
	if d.drops == nil {
		return "Location drops are not set up.", nil
	}
	drop, err := d.drops.Trigger(ctx, ev, det)
	if errors.Is(err, location.ErrNoRecipients) {
		return msgHostNoRecipients, nil
	}
	if err != nil {
		return "", err
	}
	delay := location.HumanDelay(d.drops.Delay())
	return fmt.Sprintf("Location drop initiated! 🎉\n\n"+
		"Sending to %d confirmed guests:\n"+
		"• Part 1: \"Location drops in %s\" (sent now)\n"+
		"• Part 2: Address reveal (in %s)\n\n"+
		"Reply 'cancel drop' to stop the reveal.\n\n"+
		"Address: %s", drop.Recipients, delay, delay, det.Address), nil
}
