// Package book holds the study content: chapters with their attached quiz
// questions, plus the shared bank used by the random quiz. Content is loaded
// once at startup and never mutated.
package book

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Question struct {
	Text    string   `yaml:"q" json:"q"`
	Options []string `yaml:"opts" json:"opts"`
	Answer  int      `yaml:"a" json:"a"`
}

type Chapter struct {
	ID      string     `yaml:"id" json:"id"`
	Title   string     `yaml:"title" json:"title"`
	Content string     `yaml:"content" json:"content"`
	Quiz    []Question `yaml:"quiz" json:"quiz"`
}

// Book is the full content set. ByID is derived from Chapters at load time.
type Book struct {
	Chapters []Chapter  `yaml:"chapters"`
	Bank     []Question `yaml:"bank"`

	byID map[string]Chapter
}

func (b *Book) Chapter(id string) (Chapter, bool) {
	ch, ok := b.byID[strings.TrimSpace(id)]
	return ch, ok
}

// Load reads a content file. An empty path returns the embedded default set.
func Load(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("book: read %s: %w", path, err)
	}
	var b Book
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("book: decode %s: %w", path, err)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("book: %s: %w", path, err)
	}
	b.index()
	return &b, nil
}

func (b *Book) validate() error {
	if len(b.Chapters) == 0 {
		return fmt.Errorf("no chapters")
	}
	seen := map[string]bool{}
	for i, ch := range b.Chapters {
		id := strings.TrimSpace(ch.ID)
		if id == "" {
			return fmt.Errorf("chapter %d: empty id", i)
		}
		if seen[id] {
			return fmt.Errorf("chapter %d: duplicate id %q", i, id)
		}
		seen[id] = true
		for j, q := range ch.Quiz {
			if err := validateQuestion(q); err != nil {
				return fmt.Errorf("chapter %s quiz %d: %w", id, j, err)
			}
		}
	}
	for i, q := range b.Bank {
		if err := validateQuestion(q); err != nil {
			return fmt.Errorf("bank question %d: %w", i, err)
		}
	}
	return nil
}

func validateQuestion(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("empty question text")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("need at least 2 options, got %d", len(q.Options))
	}
	if q.Answer < 0 || q.Answer >= len(q.Options) {
		return fmt.Errorf("answer index %d out of range", q.Answer)
	}
	return nil
}

func (b *Book) index() {
	b.byID = make(map[string]Chapter, len(b.Chapters))
	for _, ch := range b.Chapters {
		b.byID[ch.ID] = ch
	}
}

// Default returns the built-in reference content.
func Default() *Book {
	b := &Book{
		Chapters: []Chapter{
			{
				ID:      "ch1",
				Title:   "Adhyay 1: Parichay",
				Content: "Yeh pehla adhyay hai. Isme mool tatvon ka parichay diya gaya hai.",
				Quiz: []Question{
					{
						Text:    "Parichay adhyay ka uddeshya kya hai?",
						Options: []string{"Samanya jankari", "Ganit", "Bhasha", "Itihas"},
						Answer:  0,
					},
				},
			},
			{
				ID:      "ch2",
				Title:   "Adhyay 2: Mool Sankalpnaen",
				Content: "Doosra adhyay: kuch mool sankalpnaen aur udaharan.",
				Quiz: []Question{
					{
						Text:    "Concept A kis se sambandhit hai?",
						Options: []string{"A", "B", "C", "D"},
						Answer:  1,
					},
				},
			},
		},
		Bank: []Question{
			{Text: "Bharat ka rashtriya phool kaun sa hai?", Options: []string{"Rose", "Lotus", "Lily", "Sunflower"}, Answer: 1},
			{Text: "2+2*2 = ?", Options: []string{"6", "8", "4", "10"}, Answer: 0},
			{Text: "Capital of India?", Options: []string{"Mumbai", "Kolkata", "New Delhi", "Chennai"}, Answer: 2},
			{Text: "H2O is chemical for:", Options: []string{"Salt", "Water", "Oxygen", "Hydrogen"}, Answer: 1},
			{Text: "5*6 = ?", Options: []string{"30", "25", "35", "40"}, Answer: 0},
		},
	}
	b.index()
	return b
}
