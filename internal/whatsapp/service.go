// Package whatsapp is the WhatsApp transport: a linked-device session that
// delivers inbound texts and contact cards and sends plain-text replies.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

var ErrNotOnWhatsApp = errors.New("number is not on WhatsApp")

// Incoming is a message received from a single user chat.
type Incoming struct {
	Phone string
	Text  string
	VCard string
}

// MessageHandler is called for every inbound direct message.
type MessageHandler func(ctx context.Context, in Incoming) error

type Config struct {
	DataDir string
}

type Service struct {
	client         *whatsmeow.Client
	cfg            Config
	log            zerolog.Logger
	messageHandler MessageHandler
}

// NewService creates a new WhatsApp service
func NewService(ctx context.Context, cfg Config, log zerolog.Logger) (*Service, error) {
	logger := log.With().Str("component", "WhatsApp").Logger()

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Zerolog(logger.With().Str("module", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Zerolog(logger.With().Str("module", "client").Logger().Level(zerolog.WarnLevel)))

	service := &Service{
		client: client,
		cfg:    cfg,
		log:    logger,
	}
	client.AddEventHandler(service.eventHandler)

	return service, nil
}

// Connect connects to WhatsApp, printing a pairing QR code on first use.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Printf("QR Code: %s\n", evt.Code)
			continue
		}
		fmt.Println("\n" + q.ToSmallString(false))
		fmt.Println("📱 Scan the QR code above with WhatsApp:")
		fmt.Println("   Settings > Linked Devices > Link a Device")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// SendMessage sends a plain text message to an E.164 number.
func (s *Service) SendMessage(ctx context.Context, phone, text string) error {
	jid, err := s.resolve(ctx, phone)
	if err != nil {
		return err
	}
	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &text})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", jid, err)
	}
	s.log.Debug().Str("jid", jid.String()).Str("message_id", sent.ID).Msg("Message sent")
	return nil
}

func (s *Service) resolve(ctx context.Context, phone string) (types.JID, error) {
	number := "+" + strings.TrimPrefix(phone, "+")
	resp, err := s.client.IsOnWhatsApp(ctx, []string{number})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("%w: %s", ErrNotOnWhatsApp, number)
	}
	return resp[0].JID, nil
}

// PutContactName saves name for phone in the linked device's contact list.
func (s *Service) PutContactName(ctx context.Context, phone, name string) error {
	jid := types.NewJID(strings.TrimPrefix(phone, "+"), types.DefaultUserServer)
	first, _, _ := strings.Cut(name, " ")
	if err := s.client.Store.Contacts.PutContactName(ctx, jid, name, first); err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

// SetMessageHandler sets a custom handler for incoming messages
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// eventHandler handles incoming WhatsApp events
func (s *Service) eventHandler(evt any) {
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}

func (s *Service) handleMessage(msg *events.Message) {
	in, ok := incomingFrom(msg)
	if !ok {
		return
	}
	if s.messageHandler == nil {
		s.log.Info().Str("sender", msg.Info.Sender.String()).Msg("Received message with no handler set")
		return
	}
	if err := s.messageHandler(context.Background(), in); err != nil {
		s.log.Error().Err(err).Msg("Error handling message")
	}
}

// incomingFrom extracts a direct text or contact-card message. Own messages,
// group chats and other message kinds are ignored.
func incomingFrom(msg *events.Message) (Incoming, bool) {
	if msg == nil || msg.Message == nil || msg.Info.IsFromMe || msg.Info.IsGroup {
		return Incoming{}, false
	}
	sender := msg.Info.Sender
	if sender.Server == types.HiddenUserServer && !msg.Info.SenderAlt.IsEmpty() {
		sender = msg.Info.SenderAlt
	}
	if sender.Server != types.DefaultUserServer || sender.User == "" {
		return Incoming{}, false
	}
	in := Incoming{Phone: "+" + sender.User}

	m := msg.Message
	switch {
	case m.GetConversation() != "":
		in.Text = m.GetConversation()
	case m.GetExtendedTextMessage().GetText() != "":
		in.Text = m.GetExtendedTextMessage().GetText()
	case m.GetContactMessage().GetVcard() != "":
		in.VCard = m.GetContactMessage().GetVcard()
		in.Text = m.GetContactMessage().GetDisplayName()
	default:
		return Incoming{}, false
	}
	return in, true
}
