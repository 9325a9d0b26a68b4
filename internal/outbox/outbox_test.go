package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"party-doorman/internal/models"
)

type memLog struct {
	entries []models.MessageLog
	err     error
}

func (m *memLog) LogMessage(_ context.Context, e *models.MessageLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func TestSendLogsAndDelivers(t *testing.T) {
	rec := &Recorder{}
	logs := &memLog{}
	o := New(rec, logs, zerolog.Nop())
	ctx := context.Background()

	if !o.Send(ctx, 7, "+12025551234", "hello") {
		t.Fatal("Send() = false")
	}
	o.LogInbound(ctx, 0, "+12025551234", "hi")

	if got := rec.To("+12025551234"); len(got) != 1 || got[0] != "hello" {
		t.Errorf("delivered = %v", got)
	}
	if len(logs.entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(logs.entries))
	}
	out := logs.entries[0]
	if out.Direction != models.Outbound || out.FromPhone != BotAddress || out.EventID == nil || *out.EventID != 7 {
		t.Errorf("outbound entry = %+v", out)
	}
	in := logs.entries[1]
	if in.Direction != models.Inbound || in.EventID != nil || in.ToPhone != BotAddress {
		t.Errorf("inbound entry = %+v", in)
	}
}

func TestSendSwallowsFailures(t *testing.T) {
	rec := &Recorder{Fail: errors.New("offline")}
	logs := &memLog{err: errors.New("disk full")}
	o := New(rec, logs, zerolog.Nop())

	if o.Send(context.Background(), 1, "+12025551234", "hello") {
		t.Error("Send() = true with a failing transport")
	}
	if len(rec.Sent()) != 0 {
		t.Error("failing recorder should not record")
	}
}

func TestSendWithoutMessenger(t *testing.T) {
	logs := &memLog{}
	o := New(nil, logs, zerolog.Nop())
	if o.Send(context.Background(), 1, "+12025551234", "hello") {
		t.Error("Send() without messenger = true")
	}
	if len(logs.entries) != 1 {
		t.Errorf("logged %d entries, want 1", len(logs.entries))
	}
}
