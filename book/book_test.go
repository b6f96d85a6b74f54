package book

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultContent(t *testing.T) {
	t.Parallel()

	b := Default()
	if len(b.Chapters) != 2 {
		t.Fatalf("Default() chapters = %d, want 2", len(b.Chapters))
	}
	if len(b.Bank) != 5 {
		t.Fatalf("Default() bank = %d, want 5", len(b.Bank))
	}
	ch, ok := b.Chapter("ch1")
	if !ok {
		t.Fatalf("Chapter(ch1) not found")
	}
	if len(ch.Quiz) != 1 {
		t.Fatalf("Chapter(ch1) quiz = %d questions, want 1", len(ch.Quiz))
	}
	if _, ok := b.Chapter("missing"); ok {
		t.Fatalf("Chapter(missing) found, want not found")
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	t.Parallel()

	b, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if len(b.Chapters) != 2 || len(b.Bank) != 5 {
		t.Fatalf("Load(\"\") = %d chapters / %d bank, want default content", len(b.Chapters), len(b.Bank))
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	content := `chapters:
  - id: intro
    title: Introduction
    content: Some text.
    quiz:
      - q: What is this?
        opts: [one, two]
        a: 1
bank:
  - q: Pick the first.
    opts: [first, second, third]
    a: 0
`
	path := filepath.Join(t.TempDir(), "book.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ch, ok := b.Chapter("intro")
	if !ok {
		t.Fatalf("Chapter(intro) not found")
	}
	if ch.Title != "Introduction" {
		t.Fatalf("Chapter(intro) title = %q, want %q", ch.Title, "Introduction")
	}
	if len(b.Bank) != 1 || b.Bank[0].Answer != 0 {
		t.Fatalf("bank = %+v, want single question with answer 0", b.Bank)
	}
}

func TestLoadRejectsInvalidContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
	}{
		{
			name:    "no chapters",
			content: "bank: []\n",
		},
		{
			name: "duplicate chapter id",
			content: `chapters:
  - id: a
    title: A
  - id: a
    title: B
`,
		},
		{
			name: "answer out of range",
			content: `chapters:
  - id: a
    title: A
    quiz:
      - q: Q?
        opts: [x, y]
        a: 2
`,
		},
		{
			name: "single option",
			content: `chapters:
  - id: a
    title: A
bank:
  - q: Q?
    opts: [only]
    a: 0
`,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "book.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("Load() expected error")
			}
		})
	}
}
