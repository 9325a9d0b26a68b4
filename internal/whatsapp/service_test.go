package whatsapp

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func str(s string) *string { return &s }

func userJID(user string) types.JID {
	return types.NewJID(user, types.DefaultUserServer)
}

func message(sender types.JID, m *waE2E.Message) *events.Message {
	msg := &events.Message{Message: m}
	msg.Info.Sender = sender
	msg.Info.Chat = sender
	return msg
}

func TestIncomingFrom(t *testing.T) {
	vcard := "BEGIN:VCARD\nVERSION:3.0\nFN:Ann Kim\nTEL:+12025550155\nEND:VCARD"

	tests := []struct {
		name string
		msg  *events.Message
		want Incoming
		ok   bool
	}{
		{
			name: "plain text",
			msg:  message(userJID("12025550123"), &waE2E.Message{Conversation: str("yes!")}),
			want: Incoming{Phone: "+12025550123", Text: "yes!"},
			ok:   true,
		},
		{
			name: "extended text",
			msg: message(userJID("12025550123"), &waE2E.Message{
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: str("where is it?")},
			}),
			want: Incoming{Phone: "+12025550123", Text: "where is it?"},
			ok:   true,
		},
		{
			name: "contact card",
			msg: message(userJID("12025550123"), &waE2E.Message{
				ContactMessage: &waE2E.ContactMessage{DisplayName: str("Ann Kim"), Vcard: str(vcard)},
			}),
			want: Incoming{Phone: "+12025550123", Text: "Ann Kim", VCard: vcard},
			ok:   true,
		},
		{
			name: "unsupported kind",
			msg: message(userJID("12025550123"), &waE2E.Message{
				ImageMessage: &waE2E.ImageMessage{},
			}),
		},
		{
			name: "non-user server",
			msg:  message(types.NewJID("1234", types.NewsletterServer), &waE2E.Message{Conversation: str("hi")}),
		},
		{
			name: "nil message",
			msg:  &events.Message{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := incomingFrom(tt.msg)
			if ok != tt.ok || got != tt.want {
				t.Errorf("incomingFrom() = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestIncomingFromSkipsOwnAndGroupMessages(t *testing.T) {
	own := message(userJID("12025550123"), &waE2E.Message{Conversation: str("hi")})
	own.Info.IsFromMe = true
	if _, ok := incomingFrom(own); ok {
		t.Error("own message was accepted")
	}

	group := message(userJID("12025550123"), &waE2E.Message{Conversation: str("hi")})
	group.Info.IsGroup = true
	group.Info.Chat = types.NewJID("120363000000000000", types.GroupServer)
	if _, ok := incomingFrom(group); ok {
		t.Error("group message was accepted")
	}
}

func TestIncomingFromUsesPhoneForHiddenSender(t *testing.T) {
	msg := message(types.NewJID("99887766554433", types.HiddenUserServer), &waE2E.Message{Conversation: str("yes")})
	msg.Info.SenderAlt = userJID("12025550123")

	got, ok := incomingFrom(msg)
	if !ok || got.Phone != "+12025550123" {
		t.Errorf("incomingFrom() = %+v, %v; want phone +12025550123", got, ok)
	}

	msg.Info.SenderAlt = types.JID{}
	if _, ok := incomingFrom(msg); ok {
		t.Error("hidden sender without a phone JID was accepted")
	}
}
