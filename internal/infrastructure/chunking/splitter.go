// Package chunking splits extracted text into overlapping windows for
// chunk-level vector indexing.
package chunking

import "strings"

type Splitter struct {
	WindowSize int
	Overlap    int
}

func NewSplitter(windowSize, overlap int) *Splitter {
	if windowSize <= 0 {
		windowSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= windowSize {
		overlap = windowSize / 10
	}
	return &Splitter{WindowSize: windowSize, Overlap: overlap}
}

// Split returns trimmed overlapping windows over the text. Adjacent
// windows share Overlap runes so signals spanning a boundary survive
// chunking.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	step := s.WindowSize - s.Overlap
	if step <= 0 {
		step = s.WindowSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.WindowSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
