// Package flash stores one-time notification messages in the session.
package flash

import (
	"context"
	"encoding/gob"

	"github.com/alexedwards/scs/v2"
)

const sessionKey = "flashes"

// Kinds map onto the alert styles in the base layout.
const (
	Success = "success"
	Info    = "info"
	Warning = "warning"
	Danger  = "danger"
)

// Flash is a message shown once on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

func init() {
	// scs encodes session values with gob.
	gob.Register([]Flash{})
}

// Add queues a flash for the session bound to ctx.
func Add(ctx context.Context, sm *scs.SessionManager, kind, message string) {
	flashes, _ := sm.Get(ctx, sessionKey).([]Flash)
	sm.Put(ctx, sessionKey, append(flashes, Flash{Kind: kind, Message: message}))
}

// Pop returns and clears the queued flashes.
func Pop(ctx context.Context, sm *scs.SessionManager) []Flash {
	flashes, _ := sm.Pop(ctx, sessionKey).([]Flash)
	return flashes
}
