// Package notify delivers best-effort side effects after store commits:
// desktop notifications, sound and voice read-aloud. Effects never block or
// precede a state transition and are never retried.
package notify

import "github.com/rs/zerolog"

// Toggles gates each effect independently, mirroring user preferences.
type Toggles struct {
	Notification bool
	Sound        bool
	Voice        bool
}

// Notifier receives post-commit effects. Implementations must be cheap and
// tolerant of being skipped.
type Notifier interface {
	// Notify shows a desktop notification.
	Notify(title, body string)
	// PlaySound plays the new-message sound.
	PlaySound()
	// Speak reads text aloud.
	Speak(text string)
	// Toast surfaces a user-visible failure message to the sender.
	Toast(text string)
}

// Nop discards all effects.
type Nop struct{}

func (Nop) Notify(string, string) {}
func (Nop) PlaySound()            {}
func (Nop) Speak(string)          {}
func (Nop) Toast(string)          {}

// Log writes effects to the logger. The daemon has no UI surface, so this
// stands in for the host renderer.
type Log struct {
	Logger *zerolog.Logger
}

func (l Log) Notify(title, body string) {
	l.Logger.Info().Str("title", title).Str("body", body).Msg("notification")
}

func (l Log) PlaySound() {
	l.Logger.Debug().Msg("sound effect")
}

func (l Log) Speak(text string) {
	l.Logger.Debug().Str("text", text).Msg("voice readout")
}

func (l Log) Toast(text string) {
	l.Logger.Warn().Str("text", text).Msg("toast")
}
