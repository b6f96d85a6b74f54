// Package action encodes the structured actions carried by inline-keyboard
// callback payloads. Telegram hands callback data back as a single short
// opaque string, so every button tap round-trips through this codec.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedAction = errors.New("action: malformed")

type Kind string

const (
	KindRead        Kind = "read"  // open a chapter
	KindQuizStart   Kind = "quiz"  // start a chapter quiz
	KindQuizAnswer  Kind = "ans"   // answer a chapter quiz question
	KindDailyAnswer Kind = "daily" // answer a random-quiz question
)

const sep = ":"

// Action is the closed set of button-tap payloads. Which fields are
// meaningful depends on Kind; Encode and Decode keep them in sync.
type Action struct {
	Kind      Kind
	ChapterID string // Read, QuizStart, QuizAnswer
	UserID    string // DailyAnswer
	Question  int    // QuizAnswer, DailyAnswer
	Option    int    // QuizAnswer, DailyAnswer
}

func Read(chapterID string) Action {
	return Action{Kind: KindRead, ChapterID: chapterID}
}

func QuizStart(chapterID string) Action {
	return Action{Kind: KindQuizStart, ChapterID: chapterID}
}

func QuizAnswer(chapterID string, question, option int) Action {
	return Action{Kind: KindQuizAnswer, ChapterID: chapterID, Question: question, Option: option}
}

func DailyAnswer(userID string, question, option int) Action {
	return Action{Kind: KindDailyAnswer, UserID: userID, Question: question, Option: option}
}

func Encode(a Action) string {
	switch a.Kind {
	case KindRead, KindQuizStart:
		return string(a.Kind) + sep + a.ChapterID
	case KindQuizAnswer:
		return strings.Join([]string{string(a.Kind), a.ChapterID, strconv.Itoa(a.Question), strconv.Itoa(a.Option)}, sep)
	case KindDailyAnswer:
		return strings.Join([]string{string(a.Kind), a.UserID, strconv.Itoa(a.Question), strconv.Itoa(a.Option)}, sep)
	default:
		return ""
	}
}

// Decode parses a callback payload. Any string not produced by Encode yields
// ErrMalformedAction; it never panics on arbitrary input.
func Decode(payload string) (Action, error) {
	parts := strings.Split(payload, sep)
	switch Kind(parts[0]) {
	case KindRead, KindQuizStart:
		if len(parts) != 2 || parts[1] == "" {
			return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, payload)
		}
		return Action{Kind: Kind(parts[0]), ChapterID: parts[1]}, nil
	case KindQuizAnswer:
		if len(parts) != 4 || parts[1] == "" {
			return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, payload)
		}
		q, opt, err := parseIndexes(parts[2], parts[3])
		if err != nil {
			return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, payload)
		}
		return Action{Kind: KindQuizAnswer, ChapterID: parts[1], Question: q, Option: opt}, nil
	case KindDailyAnswer:
		if len(parts) != 4 || parts[1] == "" {
			return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, payload)
		}
		q, opt, err := parseIndexes(parts[2], parts[3])
		if err != nil {
			return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, payload)
		}
		return Action{Kind: KindDailyAnswer, UserID: parts[1], Question: q, Option: opt}, nil
	default:
		return Action{}, fmt.Errorf("%w: unknown namespace in %q", ErrMalformedAction, payload)
	}
}

func parseIndexes(qs, opts string) (int, int, error) {
	q, err := strconv.Atoi(qs)
	if err != nil || q < 0 {
		return 0, 0, fmt.Errorf("bad question index %q", qs)
	}
	opt, err := strconv.Atoi(opts)
	if err != nil || opt < 0 {
		return 0, 0, fmt.Errorf("bad option index %q", opts)
	}
	return q, opt, nil
}
