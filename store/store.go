// Package store owns all durable per-user state. Every mutation rewrites the
// full JSON snapshot synchronously, so the on-disk file always matches the
// last completed operation and restart recovery needs no replay.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/testbooklabs/tutorbot/book"
	"github.com/testbooklabs/tutorbot/internal/fsstore"
)

const maxLogEntries = 200

var (
	ErrNotFound      = errors.New("store: user not found")
	ErrNoPendingQuiz = errors.New("store: no pending quiz")
)

type Note struct {
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

type LogEntry struct {
	TS   int64  `json:"ts"`
	Text string `json:"text"`
}

// QuizSession is the in-flight multi-question quiz for one user. Questions
// are fixed at session start; Index is the cursor of the next expected
// answer and the single source of truth for duplicate-tap rejection.
type QuizSession struct {
	Questions []book.Question `json:"questions"`
	Index     int             `json:"index"`
	Score     int             `json:"score"`
}

type UserRecord struct {
	Notes       []Note           `json:"notes"`
	Scores      map[string][]int `json:"scores"`
	Lang        string           `json:"lang"`
	Logs        []LogEntry       `json:"logs"`
	PendingQuiz *QuizSession     `json:"pending_quiz,omitempty"`
}

type snapshotFile struct {
	Users map[string]*UserRecord `json:"users"`
}

// Store is the only holder of mutable user state. A single mutex serializes
// mutations; that is also what serializes snapshot writes, so granularity
// finer than the whole map would buy nothing here.
type Store struct {
	path     string
	lockPath string
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	users map[string]*UserRecord
}

// Open loads the snapshot at path. A missing, unreadable, or corrupt
// snapshot degrades to an empty store: staying up matters more than the old
// data, and the failure is logged so the operator can tell.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:     path,
		lockPath: path + ".lck",
		logger:   logger,
		now:      time.Now,
		users:    map[string]*UserRecord{},
	}

	var snap snapshotFile
	ok, err := fsstore.ReadJSON(path, &snap)
	if err != nil {
		logger.Error("user snapshot unreadable, starting empty", "path", path, "err", err)
		return s
	}
	if ok && snap.Users != nil {
		for id, rec := range snap.Users {
			if rec == nil {
				continue
			}
			normalize(rec)
			s.users[id] = rec
		}
	}
	return s
}

func normalize(rec *UserRecord) {
	if rec.Scores == nil {
		rec.Scores = map[string][]int{}
	}
	if rec.Lang == "" {
		rec.Lang = "auto"
	}
	if len(rec.Logs) > maxLogEntries {
		rec.Logs = append([]LogEntry(nil), rec.Logs[len(rec.Logs)-maxLogEntries:]...)
	}
}

// Ensure creates a default record for userID if absent. Idempotent.
func (s *Store) Ensure(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return nil
	}
	s.users[userID] = newRecord()
	return s.persistLocked()
}

func newRecord() *UserRecord {
	return &UserRecord{
		Notes:  []Note{},
		Scores: map[string][]int{},
		Lang:   "auto",
		Logs:   []LogEntry{},
	}
}

// Get returns a copy of the record. Callers must Ensure first.
func (s *Store) Get(userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return UserRecord{}, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return copyRecord(rec), nil
}

func copyRecord(rec *UserRecord) UserRecord {
	out := UserRecord{
		Notes:  append([]Note(nil), rec.Notes...),
		Scores: make(map[string][]int, len(rec.Scores)),
		Lang:   rec.Lang,
		Logs:   append([]LogEntry(nil), rec.Logs...),
	}
	for ch, outcomes := range rec.Scores {
		out.Scores[ch] = append([]int(nil), outcomes...)
	}
	if rec.PendingQuiz != nil {
		sess := *rec.PendingQuiz
		sess.Questions = append([]book.Question(nil), rec.PendingQuiz.Questions...)
		out.PendingQuiz = &sess
	}
	return out
}

// AppendLog appends a timestamped entry and truncates to the most recent 200.
func (s *Store) AppendLog(userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureLocked(userID)
	rec.Logs = append(rec.Logs, LogEntry{TS: s.now().Unix(), Text: text})
	if len(rec.Logs) > maxLogEntries {
		rec.Logs = append([]LogEntry(nil), rec.Logs[len(rec.Logs)-maxLogEntries:]...)
	}
	return s.persistLocked()
}

func (s *Store) AppendNote(userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureLocked(userID)
	rec.Notes = append(rec.Notes, Note{Text: text, TS: s.now().Unix()})
	return s.persistLocked()
}

func (s *Store) AppendScore(userID, chapterID string, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureLocked(userID)
	outcome := 0
	if correct {
		outcome = 1
	}
	rec.Scores[chapterID] = append(rec.Scores[chapterID], outcome)
	return s.persistLocked()
}

func (s *Store) SetLanguage(userID, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureLocked(userID)
	rec.Lang = lang
	return s.persistLocked()
}

// SetPendingQuiz replaces the user's quiz session; nil clears it.
func (s *Store) SetPendingQuiz(userID string, sess *QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureLocked(userID)
	rec.PendingQuiz = sess
	return s.persistLocked()
}

// UpdatePendingQuiz runs fn on the live session under the store lock, so an
// answer's read-modify-write cannot interleave with another update for the
// same user. When fn reports done, the session is cleared in the same
// persisted mutation.
func (s *Store) UpdatePendingQuiz(userID string, fn func(sess *QuizSession) (done bool, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok || rec.PendingQuiz == nil {
		return fmt.Errorf("%w: %s", ErrNoPendingQuiz, userID)
	}
	done, err := fn(rec.PendingQuiz)
	if err != nil {
		return err
	}
	if done {
		rec.PendingQuiz = nil
	}
	return s.persistLocked()
}

func (s *Store) ensureLocked(userID string) *UserRecord {
	rec, ok := s.users[userID]
	if !ok {
		rec = newRecord()
		s.users[userID] = rec
	}
	return rec
}

func (s *Store) persistLocked() error {
	snap := snapshotFile{Users: s.users}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := fsstore.WithLock(ctx, s.lockPath, func() error {
		return fsstore.WriteJSONAtomic(s.path, snap)
	})
	if err != nil {
		return fmt.Errorf("store: persist %s: %w", s.path, err)
	}
	return nil
}
