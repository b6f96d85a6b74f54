// Package quiz drives the multi-question random quiz. Sessions live inside
// the user record (the store owns them); the engine is the only writer and
// goes through the store's read-modify-write hook so concurrent taps from
// the same user cannot corrupt the cursor.
package quiz

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/testbooklabs/tutorbot/book"
	"github.com/testbooklabs/tutorbot/store"
)

var (
	ErrEmptyBank       = errors.New("quiz: empty question bank")
	ErrSessionNotFound = errors.New("quiz: session not found")
)

type Engine struct {
	store *store.Store

	// shuffle is swappable in tests; defaults to math/rand.
	shuffle func(n int, swap func(i, j int))
}

func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st, shuffle: rand.Shuffle}
}

// StartRandom draws min(sampleSize, len(bank)) distinct questions uniformly
// without replacement and stores a fresh session with index and score zero.
// A session already in progress is replaced.
func (e *Engine) StartRandom(userID string, bank []book.Question, sampleSize int) (store.QuizSession, error) {
	if len(bank) == 0 {
		return store.QuizSession{}, ErrEmptyBank
	}
	n := sampleSize
	if n > len(bank) {
		n = len(bank)
	}
	if n < 1 {
		n = 1
	}

	perm := make([]int, len(bank))
	for i := range perm {
		perm[i] = i
	}
	e.shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	questions := make([]book.Question, 0, n)
	for _, idx := range perm[:n] {
		questions = append(questions, bank[idx])
	}

	sess := store.QuizSession{Questions: questions}
	stored := sess
	stored.Questions = append([]book.Question(nil), questions...)
	if err := e.store.SetPendingQuiz(userID, &stored); err != nil {
		return store.QuizSession{}, err
	}
	return sess, nil
}

// Outcome reports what a submitted answer did to the session.
type Outcome struct {
	// Stale means the answer's question index did not match the session
	// cursor (duplicate tap or replayed callback); nothing was mutated.
	Stale bool

	Correct       bool
	CorrectOption string
	Score         int
	Total         int

	// Done means the session completed and was cleared. Otherwise Next is
	// the question to present, at cursor NextIndex.
	Done      bool
	Next      *book.Question
	NextIndex int
}

// SubmitAnswer scores the answer for the session's current question and
// advances the cursor. Answers for any other question index are ignored:
// the cursor is the single source of truth for which answer is next, which
// is what makes double taps and out-of-order callback delivery harmless.
func (e *Engine) SubmitAnswer(userID string, questionIndex, optionIndex int) (Outcome, error) {
	var out Outcome
	err := e.store.UpdatePendingQuiz(userID, func(sess *store.QuizSession) (bool, error) {
		out.Score = sess.Score
		out.Total = len(sess.Questions)
		if questionIndex != sess.Index {
			out.Stale = true
			return false, nil
		}

		q := sess.Questions[sess.Index]
		out.Correct = optionIndex >= 0 && optionIndex < len(q.Options) && optionIndex == q.Answer
		out.CorrectOption = q.Options[q.Answer]
		if out.Correct {
			sess.Score++
		}
		sess.Index++
		out.Score = sess.Score

		if sess.Index >= len(sess.Questions) {
			out.Done = true
			return true, nil
		}
		next := sess.Questions[sess.Index]
		out.Next = &next
		out.NextIndex = sess.Index
		return false, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNoPendingQuiz) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrSessionNotFound, userID)
		}
		return Outcome{}, err
	}
	return out, nil
}
