// Package gateway is the boundary to every external intelligence service the
// bot calls: text completion, speech-to-text, OCR, and translation. Each
// capability is optional per deployment; a missing one answers with
// ErrNotConfigured instead of failing startup. Calls make exactly one
// attempt; the user re-triggers the action to retry.
package gateway

import (
	"context"
	"errors"
)

// ErrNotConfigured marks a capability that is absent on this deployment
// (no credential, no binary), as opposed to a reachable service failing.
var ErrNotConfigured = errors.New("gateway: not configured")

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

type Gateway interface {
	Completer
	Transcriber
	TextExtractor
	Translator
}

// Stack assembles a Gateway from individually optional capabilities. A nil
// field reports ErrNotConfigured.
type Stack struct {
	Completer     Completer
	Transcriber   Transcriber
	TextExtractor TextExtractor
	Translator    Translator
}

func (s *Stack) Complete(ctx context.Context, prompt string) (string, error) {
	if s.Completer == nil {
		return "", ErrNotConfigured
	}
	return s.Completer.Complete(ctx, prompt)
}

func (s *Stack) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if s.Transcriber == nil {
		return "", ErrNotConfigured
	}
	return s.Transcriber.Transcribe(ctx, audio)
}

func (s *Stack) ExtractText(ctx context.Context, image []byte) (string, error) {
	if s.TextExtractor == nil {
		return "", ErrNotConfigured
	}
	return s.TextExtractor.ExtractText(ctx, image)
}

func (s *Stack) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if s.Translator == nil {
		return "", ErrNotConfigured
	}
	return s.Translator.Translate(ctx, text, targetLang)
}
