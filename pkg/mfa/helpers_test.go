package mfa_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/mfakit/pkg/email"
	"github.com/dmitrymomot/mfakit/pkg/mfa"
)

var (
	epoch  = time.Unix(1_700_000_000, 0).UTC()
	silent = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func users() mfa.StaticDirectory {
	return mfa.StaticDirectory{
		"u1":      {Email: "alice@example.com", DisplayName: "Alice", CreatedAt: epoch.Add(-30 * 24 * time.Hour)},
		"fresh":   {Email: "fresh@example.com", CreatedAt: epoch.Add(-time.Hour)},
		"noemail": {DisplayName: "No Mail", CreatedAt: epoch.Add(-30 * 24 * time.Hour)},
	}
}

// outbox records sent messages.
type outbox struct {
	mu   sync.Mutex
	msgs []email.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg email.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}
