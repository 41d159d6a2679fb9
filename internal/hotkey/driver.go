package hotkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/gostt-overlay/internal/provider"
	"github.com/chaz8081/gostt-overlay/internal/session"
)

// Sessions is the part of the session controller the driver needs.
// *session.Controller implements it.
type Sessions interface {
	Start(ctx context.Context, sel provider.Selection) (session.Session, error)
	Stop(ctx context.Context) (string, error)
	State() session.Session
	Subscribe() (<-chan session.Event, func())
}

// Mode is how key presses map to sessions.
type Mode int

const (
	// Hold starts on press and stops on release.
	Hold Mode = iota
	// Toggle starts or stops on each press, depending on the session state.
	Toggle
)

// ParseMode maps a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "hold":
		return Hold, nil
	case "toggle":
		return Toggle, nil
	default:
		return 0, fmt.Errorf("hotkey: unknown mode %q (supported: hold, toggle)", s)
	}
}

// Driver starts and stops sessions from hotkey events and hands every
// completed transcript to Deliver, including sessions that stopped on
// silence.
type Driver struct {
	Sessions  Sessions
	Mode      Mode
	Selection func() (provider.Selection, error)
	Deliver   func(text string) error
}

// Run consumes events until the channel closes or ctx is done.
func (d *Driver) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Driver) handle(ctx context.Context, ev Event) {
	active := d.Sessions.State().Status == session.Listening
	switch {
	case ev.Type == EventPress && d.Mode == Toggle && active:
		go d.stop(ctx)
	case ev.Type == EventPress && !active:
		d.start(ctx)
	case ev.Type == EventRelease && d.Mode == Hold && active:
		go d.stop(ctx)
	}
}

func (d *Driver) start(ctx context.Context) {
	sel, err := d.Selection()
	if err != nil {
		slog.Error("[hotkey] resolving provider", "error", err)
		return
	}

	events, unsubscribe := d.Sessions.Subscribe()
	s, err := d.Sessions.Start(ctx, sel)
	if errors.Is(err, session.ErrAlreadyListening) {
		unsubscribe()
		return
	}
	if err != nil {
		// The failure still arrives as the terminal event.
		slog.Error("[hotkey] starting session", "error", err)
	} else {
		slog.Info("[hotkey] listening", "session", s.ID)
	}
	go d.await(events)
}

func (d *Driver) stop(ctx context.Context) {
	if _, err := d.Sessions.Stop(ctx); err != nil {
		slog.Debug("[hotkey] stop returned error", "error", err)
	}
}

// await delivers the transcript carried by the session's terminal event.
func (d *Driver) await(events <-chan session.Event) {
	for ev := range events {
		switch ev.Kind {
		case session.EventAdvisory:
			slog.Warn("[hotkey] " + ev.Text)
		case session.EventCompleted:
			if ev.Text == "" {
				slog.Info("[hotkey] empty transcript, nothing to deliver", "session", ev.SessionID)
				continue
			}
			if err := d.Deliver(ev.Text); err != nil {
				slog.Error("[hotkey] delivering transcript", "error", err)
			}
		case session.EventFailed:
			f := ev.Failure
			if f == nil {
				continue
			}
			slog.Error("[hotkey] session failed", "session", ev.SessionID, "kind", f.Kind, "error", f.Message)
		}
	}
}
