// Package llm wraps the hosted language model used as a fallback intent
// classifier and as the open-domain answerer for guests, the host and strangers.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"party-doorman/internal/intent"
	"party-doorman/internal/models"
	"party-doorman/internal/phone"
)

// ErrUnavailable is returned when no API key is configured or the model call fails.
var ErrUnavailable = intent.ErrUnavailable

const escalateMarker = "[ESCALATE]"

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	BotName string
	Region  string
}

// Client talks to the Anthropic Messages API. A Client without an API key
// answers every call with ErrUnavailable.
type Client struct {
	api     anthropic.Client
	enabled bool
	cfg     Config
	log     zerolog.Logger
}

// New creates a new model client
func New(cfg Config, log zerolog.Logger) *Client {
	c := &Client{
		cfg: cfg,
		log: log.With().Str("component", "LLM").Logger(),
	}
	if cfg.APIKey == "" {
		c.log.Info().Msg("No API key configured, model fallback disabled")
		return c
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.api = anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(1),
	)
	c.enabled = true
	return c
}

// Enabled reports whether calls can reach the model.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error) {
	if !c.Enabled() {
		return "", ErrUnavailable
	}
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("Model call failed")
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrUnavailable
	}
	return out, nil
}

// Classify implements intent.Classifier.
func (c *Client) Classify(ctx context.Context, text string, kind intent.Kind) (intent.Result, error) {
	instr, ok := parsePrompts[kind]
	if !ok {
		return intent.Result{}, fmt.Errorf("unsupported kind %q", kind)
	}
	raw, err := c.complete(ctx, parseSystemPrompt, fmt.Sprintf("%s\n\nUser message: %q", instr, text), 100)
	if err != nil {
		return intent.Result{}, err
	}
	r, err := parseResult(raw, kind, c.cfg.Region)
	if err != nil {
		c.log.Debug().Err(err).Str("kind", string(kind)).Msg("Unparseable classification")
		return intent.Result{}, err
	}
	return r, nil
}

type rawResult struct {
	Intent string  `json:"intent"`
	Name   *string `json:"name"`
	Handle string  `json:"handle"`
	Skip   bool    `json:"skip"`
	Phone  string  `json:"phone"`
}

// parseResult decodes the model's JSON reply, tolerating a markdown code fence.
func parseResult(raw string, kind intent.Kind, region string) (intent.Result, error) {
	raw = stripFence(raw)
	var rr rawResult
	if err := json.Unmarshal([]byte(raw), &rr); err != nil {
		return intent.Result{}, fmt.Errorf("failed to decode classification: %w", err)
	}

	var r intent.Result
	switch kind {
	case intent.KindYesNo, intent.KindPlusOne:
		switch strings.ToLower(rr.Intent) {
		case "yes":
			r.Intent = intent.IntentYes
		case "no":
			r.Intent = intent.IntentNo
		case "contact":
			if kind != intent.KindPlusOne {
				break
			}
			if p, err := phone.Normalize(rr.Phone, region); err == nil {
				r.Intent, r.Phone = intent.IntentContact, p
			}
		}
	case intent.KindName:
		if rr.Name != nil {
			r.Name = strings.TrimSpace(*rr.Name)
		}
	case intent.KindHandle:
		r.Skip = rr.Skip
		r.Handle = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(rr.Handle), "@"))
	}
	return r, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Answer is the open-domain reply to a guest. When Escalate is set, Text is
// a one-line summary of what the host needs to weigh in on.
type Answer struct {
	Text     string
	Escalate bool
}

func parseAnswer(raw string) Answer {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, escalateMarker); ok {
		return Answer{Text: strings.TrimSpace(rest), Escalate: true}
	}
	return Answer{Text: raw}
}

// AnswerGuest answers a free-text question from a guest.
func (c *Client) AnswerGuest(ctx context.Context, question string, ev *models.Event, g *models.Guest) (Answer, error) {
	prompt := fmt.Sprintf("%s\n\nGuest asks: %s", eventContext(ev, g), question)
	raw, err := c.complete(ctx, c.persona(guestSystemPrompt), prompt, 150)
	if err != nil {
		return Answer{}, err
	}
	return parseAnswer(raw), nil
}

// AnswerHost replies to a host message that matched no command.
func (c *Client) AnswerHost(ctx context.Context, text string, ev *models.Event) (string, error) {
	return c.complete(ctx, c.persona(hostSystemPrompt), fmt.Sprintf("%s\n\nHost says: %s", eventContext(ev, nil), text), 150)
}

// AnswerStranger replies to someone who is not on the list.
func (c *Client) AnswerStranger(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, c.persona(strangerSystemPrompt), text, 100)
}

// RewriteHostAnswer puts the host's reply to a forwarded question in the bot's voice.
func (c *Client) RewriteHostAnswer(ctx context.Context, answer, question string) (string, error) {
	prompt := fmt.Sprintf("Guest asked: %q\nHost answered: %q\n\nRewrite in your voice:", question, answer)
	return c.complete(ctx, c.persona(rewriteSystemPrompt), prompt, 150)
}

func (c *Client) persona(prompt string) string {
	name := c.cfg.BotName
	if name == "" {
		name = "the doorman"
	}
	return strings.ReplaceAll(prompt, "{bot}", name)
}

func eventContext(ev *models.Event, g *models.Guest) string {
	var b strings.Builder
	b.WriteString("EVENT DETAILS (share selectively):\n")
	fmt.Fprintf(&b, "- Event: %s\n", ev.Name)
	fmt.Fprintf(&b, "- Date: %s\n", ev.FormattedDate())
	fmt.Fprintf(&b, "- Time: %s\n", ev.TimeWindow)
	fmt.Fprintf(&b, "- Location drop time: %s\n", ev.LocationDropTime)
	if len(ev.Rules) == 0 {
		b.WriteString("- House rules: none specified\n")
	} else {
		b.WriteString("- House rules:\n")
		for _, r := range ev.Rules {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if g != nil {
		if g.Name != "" {
			fmt.Fprintf(&b, "\nYou're talking to %s. ", g.Name)
		} else {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Their status on the list: %s.", g.Status)
	}
	return b.String()
}
