package knowledge

import (
	"strings"
	"testing"
)

func TestSplitMarkdownByHeading(t *testing.T) {
	content := `# Install via Docker

Run the compose file.

## Prerequisites

Docker Desktop must be installed.

## Start

docker compose up -d
`
	chunks := SplitMarkdown("docs/docker.md", content)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].SourceID != "docs/docker.md#0" || chunks[2].SourceID != "docs/docker.md#2" {
		t.Fatalf("unexpected source ids: %q, %q", chunks[0].SourceID, chunks[2].SourceID)
	}
	if chunks[0].Title != "Install via Docker" {
		t.Fatalf("unexpected title: %q", chunks[0].Title)
	}
	if chunks[1].Title != "Prerequisites" || !strings.Contains(chunks[1].Text, "Docker Desktop") {
		t.Fatalf("unexpected chunk: %+v", chunks[1])
	}
	// 片段正文包含标题行
	if !strings.HasPrefix(chunks[0].Text, "# Install via Docker") {
		t.Fatalf("chunk text should include heading line: %q", chunks[0].Text)
	}
}

func TestSplitMarkdownPreamble(t *testing.T) {
	content := `Intro paragraph before any heading.

# First Section

Body.
`
	chunks := SplitMarkdown("docs/intro.md", content)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Title != "" || !strings.Contains(chunks[0].Text, "Intro paragraph") {
		t.Fatalf("unexpected preamble chunk: %+v", chunks[0])
	}
}

func TestSplitMarkdownDropsEmptySections(t *testing.T) {
	content := "# Empty\n\n\n# Full\n\nsomething\n"
	chunks := SplitMarkdown("docs/x.md", content)
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			t.Fatalf("empty chunk survived: %+v", c)
		}
	}
}

func TestSplitMarkdownLongSection(t *testing.T) {
	paragraph := strings.Repeat("word ", 200)
	content := "# Long\n\n" + paragraph + "\n\n" + paragraph + "\n\n" + paragraph + "\n"

	chunks := SplitMarkdown("docs/long.md", content)
	if len(chunks) < 2 {
		t.Fatalf("expected long section to be split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c.Text)); n > maxChunkRunes {
			t.Fatalf("chunk %d too long: %d runes", i, n)
		}
		if c.Title != "Long" {
			t.Fatalf("chunk %d lost its title: %q", i, c.Title)
		}
	}
	// SourceID 序号连续
	if chunks[0].SourceID != "docs/long.md#0" || chunks[1].SourceID != "docs/long.md#1" {
		t.Fatalf("unexpected source ids: %q, %q", chunks[0].SourceID, chunks[1].SourceID)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("How do I install Docker-Compose on Windows?")
	want := []string{"install", "docker", "compose", "windows"}
	if len(got) != len(want) {
		t.Fatalf("unexpected tokens: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, got[i], want[i])
		}
	}
}
