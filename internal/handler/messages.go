package handler

import (
	"fmt"

	"party-doorman/internal/intent"
	"party-doorman/internal/models"
)

// Reply copy.
const (
	msgAskName           = "Great! What's your name?"
	msgAskHandle         = "What's your Instagram? (or say \"skip\" if you don't have one)"
	msgOfferPlusOne      = "You get two invites to share. Want to invite someone?"
	msgPlusOneAccepted   = "Send me a contact card or their phone number."
	msgPlusOneDeclined   = "No problem. See you there!\n\nGot questions about the event? Just ask."
	msgInviteSent        = "Invite sent! I'll let you know when they respond.\n\nGot questions about the event? Just ask."
	msgOneMoreInvite     = "\n\nYou have one more invite. Want to invite someone else?"
	msgAllSet            = "You're all set. See you there!\n\nGot questions about the event? Just ask."
	msgDeclined          = "Thanks for letting me know!"
	msgDeclinedTerminal  = "You passed on this one. If that changes, reach out to whoever invited you."
	msgQuotaExceeded     = "You've used both invites! Each guest gets two invites to share."
	msgInviteWindowShut  = "Your invite window has closed. See you at the event!"
	msgNotConfirmedYet   = "You get two invites to share after you confirm."
	msgInvalidName       = "Got it - what name should I use for the list? (first name is fine)"
	msgInvalidHandle     = "Couldn't find a handle in that. Drop your @ or say \"skip\"."
	msgInvalidPhone      = "That doesn't look like a valid number. Can you send a contact card or try again?"
	msgContactGaveUp     = "No worries. Text me a number whenever you're ready."
	msgAlreadyInvited    = "This person is already invited!"
	msgExpired           = "Sorry, your invite has expired."
	msgPlusOneUnclear    = "Want to invite someone? Send me their contact card or phone number, or reply NO if not."
	msgIdleFallback      = "Hey! If you have questions about the event, just ask. I can tell you about location, timing, or +1s."
	msgCheckingWithHost  = "Let me check on that for you."
	msgStranger          = "I don't have you on the list. If you think this is a mistake, reach out to whoever invited you."
	msgBadNumber         = "Sorry, I couldn't recognize your phone number."
	msgNoActiveEvent     = "No active event."
	msgApology           = "Sorry, something went wrong on my end. Try again in a minute."
	msgHostHelp          = "I didn't catch that. Try 'list', 'stats', 'search [name]', 'graph', or 'drop location'."
	msgHostNoGuestsDrop  = "No confirmed guests yet. Location drop is for confirmed guests only."
	msgHostNoRecipients  = "No confirmed guests to send location to."
	msgHostNoDropPending = "No location drop pending."
	msgHostDropCancelled = "Location drop cancelled. Nobody got the address."
	msgHostGraphOff      = "Social graph is turned off."
	msgHostLostGuest     = "Something went wrong - couldn't find the guest. State cleared."
)

func rsvpUnclear(ev *models.Event) string {
	return fmt.Sprintf("Reply YES to confirm for %s or NO to pass.", ev.Name)
}

func inviteText(botName, inviter string, ev *models.Event) string {
	return fmt.Sprintf("I'm %s - a text-only doorman. Someone put you on the list.\n\n"+
		"%s invited you to %s on %s, %s.\n\n"+
		"Let me know if you'd like to come.",
		botName, inviter, ev.Name, ev.FormattedDate(), ev.TimeWindow)
}

func faqAnswer(kind intent.FAQ, ev *models.Event, g *models.Guest) string {
	switch kind {
	case intent.FAQWhere:
		return fmt.Sprintf("Location drops at %s on the day of.", ev.LocationDropTime)
	case intent.FAQWhen:
		return fmt.Sprintf("%s, %s. Location drops at %s.", ev.FormattedDate(), ev.TimeWindow, ev.LocationDropTime)
	case intent.FAQDrop:
		return fmt.Sprintf("Location drops at %s on %s.", ev.LocationDropTime, ev.FormattedDate())
	case intent.FAQPlusOne:
		if g.Status != models.GuestConfirmed {
			return msgNotConfirmedYet
		}
		switch g.QuotaLeft() {
		case models.QuotaCap:
			return "You get two invites to share! Want to invite someone now?"
		case 0:
			return "You've used both your invites."
		default:
			return "You have one invite left! Want to use it?"
		}
	}
	return "If you have questions, just ask! I can tell you about location, timing, or bringing someone."
}

func escalationText(guestName, question string) string {
	return fmt.Sprintf("%s asked: \"%s\"\n\nReply and I'll pass it along.", guestName, question)
}
