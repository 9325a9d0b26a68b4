package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"party-doorman/internal/intent"
	"party-doorman/internal/models"
	"party-doorman/internal/phone"
	"party-doorman/internal/storage"
)

// contactRetries is how many unreadable numbers a guest may send before the
// bot stops asking.
const contactRetries = 3

// guestTurn is one attempt at deciding a guest message against a fresh read
// of the guest and their conversation state.
type guestTurn struct {
	ev    *models.Event
	guest *models.Guest
	state *models.ConversationState
	text  string
	card  phone.Card
}

// transition commits next for this turn. It fails with
// storage.ErrStateConflict when another message got there first.
func (d *Dispatcher) transition(ctx context.Context, t *guestTurn, next models.State, c models.Context, mutate func(*storage.Tx) error) error {
	return d.store.Transition(ctx, t.ev.ID, t.guest.Phone, t.state.Version, next, c, mutate)
}

func (d *Dispatcher) handleGuest(ctx context.Context, ev *models.Event, g *models.Guest, text string, card phone.Card) (string, error) {
	for attempt := 1; ; attempt++ {
		reply, err := d.guestStep(ctx, ev, g.ID, text, card)
		if !errors.Is(err, storage.ErrStateConflict) || attempt == maxAttempts {
			return reply, err
		}
		zerolog.Ctx(ctx).Debug().Int("attempt", attempt).Msg("Conversation moved underneath us, retrying")
	}
}

func (d *Dispatcher) guestStep(ctx context.Context, ev *models.Event, guestID int64, text string, card phone.Card) (string, error) {
	g, err := d.store.GetGuest(ctx, guestID)
	if err != nil {
		return "", err
	}
	if g.Status == models.GuestExpired {
		return msgExpired, nil
	}
	st, err := d.store.GetState(ctx, ev.ID, g.Phone)
	if err != nil {
		return "", err
	}
	if g.Status == models.GuestDeclined || st.State.Terminal() {
		if st.State == models.StateExpired {
			return msgExpired, nil
		}
		return msgDeclinedTerminal, nil
	}

	t := &guestTurn{ev: ev, guest: g, state: st, text: text, card: card}
	switch st.State {
	case models.StateAwaitingRSVP:
		return d.onAwaitingRSVP(ctx, t)
	case models.StateCollectingName:
		return d.onCollectingName(ctx, t)
	case models.StateCollectingHandle:
		return d.onCollectingHandle(ctx, t)
	case models.StateOfferingPlusOne:
		return d.onOfferingPlusOne(ctx, t)
	case models.StateCollectingContact:
		return d.onCollectingContact(ctx, t)
	case models.StateIdle:
		return d.onIdle(ctx, t)
	}

	zerolog.Ctx(ctx).Warn().Str("state", string(st.State)).Msg("Unknown conversation state, resetting to idle")
	if err := d.transition(ctx, t, models.StateIdle, nil, nil); err != nil {
		return "", err
	}
	return d.onIdle(ctx, t)
}

func (d *Dispatcher) onAwaitingRSVP(ctx context.Context, t *guestTurn) (string, error) {
	r, faq := d.classify(ctx, t.text, intent.KindYesNo)
	if faq != "" {
		return faqAnswer(faq, t.ev, t.guest), nil
	}

	switch r.Intent {
	case intent.IntentYes:
		err := d.transition(ctx, t, models.StateCollectingName, nil, func(tx *storage.Tx) error {
			return tx.ConfirmGuest(ctx, t.guest.ID)
		})
		if errors.Is(err, storage.ErrNotPending) {
			return msgExpired, nil
		}
		if err != nil {
			return "", err
		}
		zerolog.Ctx(ctx).Info().Int64("guest_id", t.guest.ID).Msg("Guest accepted")
		return msgAskName, nil

	case intent.IntentNo:
		err := d.transition(ctx, t, models.StateDeclined, nil, func(tx *storage.Tx) error {
			return tx.DeclineGuest(ctx, t.guest.ID)
		})
		if errors.Is(err, storage.ErrNotPending) {
			return msgExpired, nil
		}
		if err != nil {
			return "", err
		}
		zerolog.Ctx(ctx).Info().Int64("guest_id", t.guest.ID).Msg("Guest declined")
		return msgDeclined, nil
	}
	return rsvpUnclear(t.ev), nil
}

func (d *Dispatcher) onCollectingName(ctx context.Context, t *guestTurn) (string, error) {
	r, faq := d.classify(ctx, t.text, intent.KindName)
	if faq != "" {
		return faqAnswer(faq, t.ev, t.guest), nil
	}
	if r.Name == "" {
		return msgInvalidName, nil
	}

	err := d.transition(ctx, t, models.StateCollectingHandle, nil, func(tx *storage.Tx) error {
		return tx.SetGuestName(ctx, t.guest.ID, r.Name)
	})
	if err != nil {
		return "", err
	}
	d.syncContact(ctx, t.guest.Phone, r.Name)
	return msgAskHandle, nil
}

func (d *Dispatcher) onCollectingHandle(ctx context.Context, t *guestTurn) (string, error) {
	r, faq := d.classify(ctx, t.text, intent.KindHandle)
	if faq != "" {
		return faqAnswer(faq, t.ev, t.guest), nil
	}

	// Invites revoked while onboarding skip the offer.
	next, reply := models.StateOfferingPlusOne, msgOfferPlusOne
	if t.guest.QuotaLeft() == 0 {
		next, reply = models.StateIdle, msgAllSet
	}

	switch {
	case r.Skip:
		err := d.transition(ctx, t, next, models.Context{models.CtxHandleSkipped: true}, nil)
		if err != nil {
			return "", err
		}
	case r.Handle != "":
		err := d.transition(ctx, t, next, nil, func(tx *storage.Tx) error {
			return tx.SetGuestHandle(ctx, t.guest.ID, r.Handle)
		})
		if err != nil {
			return "", err
		}
		if d.social != nil {
			d.social.Enqueue(models.ScrapeTarget{EventID: t.ev.ID, GuestID: t.guest.ID, Handle: r.Handle})
		}
	default:
		return msgInvalidHandle, nil
	}
	return reply, nil
}

func (d *Dispatcher) onOfferingPlusOne(ctx context.Context, t *guestTurn) (string, error) {
	if t.guest.QuotaLeft() == 0 {
		err := d.transition(ctx, t, models.StateIdle, models.Context{models.CtxPlusOneExpired: true}, nil)
		if err != nil {
			return "", err
		}
		return msgInviteWindowShut, nil
	}
	if t.card.Phone != "" {
		return d.invitePlusOne(ctx, t, t.card.Phone)
	}

	r, faq := d.classify(ctx, t.text, intent.KindPlusOne)
	if faq != "" {
		return faqAnswer(faq, t.ev, t.guest), nil
	}
	switch r.Intent {
	case intent.IntentContact:
		return d.invitePlusOne(ctx, t, r.Phone)
	case intent.IntentYes:
		if err := d.transition(ctx, t, models.StateCollectingContact, nil, nil); err != nil {
			return "", err
		}
		return msgPlusOneAccepted, nil
	case intent.IntentNo:
		if err := d.transition(ctx, t, models.StateIdle, nil, nil); err != nil {
			return "", err
		}
		return msgPlusOneDeclined, nil
	}
	return msgPlusOneUnclear, nil
}

func (d *Dispatcher) onCollectingContact(ctx context.Context, t *guestTurn) (string, error) {
	if t.card.Phone != "" {
		return d.invitePlusOne(ctx, t, t.card.Phone)
	}

	r, faq := d.classify(ctx, t.text, intent.KindPlusOne)
	if faq != "" {
		return faqAnswer(faq, t.ev, t.guest), nil
	}
	switch r.Intent {
	case intent.IntentContact:
		return d.invitePlusOne(ctx, t, r.Phone)
	case intent.IntentYes:
		return msgPlusOneAccepted, nil
	case intent.IntentNo:
		if err := d.transition(ctx, t, models.StateIdle, nil, nil); err != nil {
			return "", err
		}
		return msgPlusOneDeclined, nil
	}

	retries := t.state.Context.Int(models.CtxRetryCount) + 1
	if retries >= contactRetries {
		if err := d.transition(ctx, t, models.StateIdle, nil, nil); err != nil {
			return "", err
		}
		return msgContactGaveUp, nil
	}
	err := d.transition(ctx, t, models.StateCollectingContact, models.Context{models.CtxRetryCount: retries}, nil)
	if err != nil {
		return "", err
	}
	return msgInvalidPhone, nil
}

func (d *Dispatcher) onIdle(ctx context.Context, t *guestTurn) (string, error) {
	if t.card.Phone != "" {
		return d.invitePlusOne(ctx, t, t.card.Phone)
	}
	if t.card != (phone.Card{}) {
		return msgInvalidPhone, nil
	}
	if p, ok := phone.Extract(t.text, d.cfg.Region); ok {
		return d.invitePlusOne(ctx, t, p)
	}

	// A yes right after "want to invite someone else?" continues the plus-one flow.
	if t.state.Context.String(models.CtxInvitedPlusOne) != "" && t.guest.QuotaLeft() > 0 {
		switch intent.YesNo(t.text) {
		case intent.Yes:
			if err := d.transition(ctx, t, models.StateCollectingContact, nil, nil); err != nil {
				return "", err
			}
			return msgPlusOneAccepted, nil
		case intent.No:
			if err := d.transition(ctx, t, models.StateIdle, nil, nil); err != nil {
				return "", err
			}
			return msgPlusOneDeclined, nil
		}
	}

	if faq := intent.DetectFAQ(t.text); faq != "" {
		return faqAnswer(faq, t.ev, t.guest), nil
	}
	return d.answerGuest(ctx, t), nil
}

// invitePlusOne spends one of the guest's invites on invitee and moves the
// guest to idle. Policy failures are reported to the guest, not returned.
func (d *Dispatcher) invitePlusOne(ctx context.Context, t *guestTurn, invitee string) (string, error) {
	var (
		created  *models.Guest
		left     int
		spendErr error
	)
	// Only a spent invite earns the "another one?" follow-up.
	next := models.Context{}
	err := d.transition(ctx, t, models.StateIdle, next, func(tx *storage.Tx) error {
		created, spendErr = tx.SpendQuota(ctx, t.guest.ID, invitee)
		switch {
		case spendErr == nil:
			next[models.CtxInvitedPlusOne] = invitee
		case errors.Is(spendErr, storage.ErrQuotaExhausted),
			errors.Is(spendErr, storage.ErrNotConfirmed),
			errors.Is(spendErr, storage.ErrAlreadyInvited):
			return nil
		default:
			return spendErr
		}
		inviter, err := tx.Guest(ctx, t.guest.ID)
		if err != nil {
			return err
		}
		left = inviter.QuotaLeft()
		return nil
	})
	if err != nil {
		return "", err
	}

	log := zerolog.Ctx(ctx)
	switch {
	case errors.Is(spendErr, storage.ErrQuotaExhausted):
		return msgQuotaExceeded, nil
	case errors.Is(spendErr, storage.ErrNotConfirmed):
		return msgNotConfirmedYet, nil
	case errors.Is(spendErr, storage.ErrAlreadyInvited):
		return msgAlreadyInvited, nil
	}

	log.Info().Int64("inviter_id", t.guest.ID).Int64("invitee_id", created.ID).Int("left", left).Msg("Plus-one invited")
	inviter := t.guest.DisplayName("A friend")
	d.out.Send(ctx, t.ev.ID, created.Phone, inviteText(d.cfg.BotName, inviter, t.ev))
	if left > 0 {
		return msgInviteSent + msgOneMoreInvite, nil
	}
	return msgInviteSent, nil
}

// answerGuest hands free text to the open-domain answerer and escalates to
// the host when it asks for that.
func (d *Dispatcher) answerGuest(ctx context.Context, t *guestTurn) string {
	if d.answerer == nil {
		return msgIdleFallback
	}
	ans, err := d.answerer.AnswerGuest(ctx, t.text, t.ev, t.guest)
	if err != nil || (ans.Text == "" && !ans.Escalate) {
		return msgIdleFallback
	}
	if !ans.Escalate {
		return ans.Text
	}

	name := t.guest.DisplayName(d.displayPhone(t.guest.Phone))
	err = d.store.ResetState(ctx, t.ev.ID, t.ev.HostPhone, models.StateAnsweringQuestion, models.Context{
		models.CtxGuestPhone: t.guest.Phone,
		models.CtxGuestName:  name,
		models.CtxQuestion:   t.text,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to store escalation")
		return msgIdleFallback
	}
	d.out.Send(ctx, t.ev.ID, t.ev.HostPhone, escalationText(name, t.text))
	zerolog.Ctx(ctx).Info().Int64("guest_id", t.guest.ID).Msg("Escalated question to host")
	return msgCheckingWithHost
}

// syncContact writes the guest's name into the contact directory without
// holding up the reply.
func (d *Dispatcher) syncContact(ctx context.Context, p, name string) {
	if d.contacts == nil {
		return
	}
	log := zerolog.Ctx(ctx)
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := d.contacts.PutContactName(bg, p, name); err != nil {
			log.Warn().Err(err).Str("phone", phone.Mask(p)).Msg("Failed to sync contact")
		}
	}()
}

// SendHostInvite puts phone on the list as a direct host invite and sends
// the invitation.
func (d *Dispatcher) SendHostInvite(ctx context.Context, ev *models.Event, raw string) (*models.Guest, error) {
	p, err := phone.Normalize(raw, d.cfg.Region)
	if err != nil {
		return nil, err
	}
	if p == ev.HostPhone {
		return nil, fmt.Errorf("%w: that's the host", storage.ErrAlreadyInvited)
	}
	g, reinvited, err := d.store.InviteGuest(ctx, ev.ID, p)
	if err != nil {
		return g, err
	}
	d.log.Info().Int64("guest_id", g.ID).Bool("reinvited", reinvited).Msg("Host invite sent")
	d.out.Send(ctx, ev.ID, p, inviteText(d.cfg.BotName, d.cfg.HostDisplayName, ev))
	return g, nil
}
