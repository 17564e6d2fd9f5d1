package chunker

import "fmt"

// Chunker splits text into overlapping fixed-size windows. Length is
// measured in runes so a window never splits a UTF-8 sequence.
type Chunker struct {
	size    int
	overlap int
}

// New returns a chunker. The stride size-overlap must be positive.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap cannot be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the windows for text. Text no longer than the chunk size,
// including "", comes back as a single element. Otherwise windows start
// every size-overlap runes and the last window ends at the end of text.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	stride := c.size - c.overlap
	var chunks []string
	for start := 0; ; start += stride {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
