// Package inject delivers finished transcripts into the active application
// using robotgo for keystroke simulation or clipboard paste.
package inject

import (
	"fmt"
	"runtime"

	"github.com/go-vgo/robotgo"
)

// TextInjector delivers a transcript somewhere.
type TextInjector interface {
	Inject(text string) error
}

// Injector handles typing or pasting text into the active application.
type Injector struct {
	method   string // "type" or "paste"
	modifier string
}

var _ TextInjector = (*Injector)(nil)

// NewInjector creates an Injector with the given method.
// method must be "type" (keystroke simulation) or "paste" (clipboard).
func NewInjector(method string) *Injector {
	return &Injector{method: method, modifier: pasteModifier(runtime.GOOS)}
}

// pasteModifier is the key held with V to paste on the given OS.
func pasteModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}

// Inject sends text to the active application using the configured method.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case "paste":
		return inj.paste(text)
	default: // "type"
		robotgo.Type(text)
		return nil
	}
}

// paste copies text to the clipboard and pastes it. The previous clipboard
// contents are restored afterwards.
func (inj *Injector) paste(text string) error {
	prev, _ := robotgo.ReadAll()

	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}
	if err := robotgo.KeyTap("v", inj.modifier); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", inj.modifier, err)
	}

	_ = robotgo.WriteAll(prev)
	return nil
}
