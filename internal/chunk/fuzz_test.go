package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzChunkText checks structural invariants for arbitrary input: numbering
// starts at 1 and increases by one, windows never exceed the configured
// size, and non-empty normalized input always yields at least one chunk.
func FuzzChunkText(f *testing.F) {
	f.Add("hello world", 100, 20)
	f.Add("", 500, 50)
	f.Add(strings.Repeat("я", 700), 64, 16)
	f.Add("a\nb\tc  d", 10, 3)

	f.Fuzz(func(t *testing.T, text string, size, overlap int) {
		if size < 2 || size > 2048 || overlap < 0 || overlap > size {
			t.Skip()
		}

		c := New(WithSize(size), WithOverlap(overlap))
		chunks := c.ChunkText("fuzz.txt", text)

		normalized := strings.Join(strings.Fields(text), " ")
		if normalized == "" {
			if len(chunks) != 0 {
				t.Fatalf("empty input produced %d chunks", len(chunks))
			}
			return
		}
		if len(chunks) == 0 {
			t.Fatal("non-empty input produced no chunks")
		}

		for i, ch := range chunks {
			if ch.Number != i+1 {
				t.Fatalf("chunk %d has number %d", i, ch.Number)
			}
			if utf8.RuneCountInString(ch.Text) > c.size {
				t.Fatalf("chunk %d exceeds window size", i+1)
			}
			if ch.Text == "" {
				t.Fatalf("chunk %d is empty", i+1)
			}
		}

		// Reassembly: first chunk plus the non-overlapping tail of each
		// successor must reproduce the normalized input.
		var rebuilt strings.Builder
		for i, ch := range chunks {
			runes := []rune(ch.Text)
			if i == 0 {
				rebuilt.WriteString(ch.Text)
				continue
			}
			if c.overlap < len(runes) {
				rebuilt.WriteString(string(runes[c.overlap:]))
			}
		}
		if rebuilt.String() != normalized {
			t.Fatalf("reassembly mismatch:\n got %q\nwant %q", rebuilt.String(), normalized)
		}
	})
}
