package chunking

import "strings"

// charsPerToken approximates tokenizer output for typical English prose.
const charsPerToken = 4

const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
)

// Splitter cuts normalized text into overlapping windows sized in estimated
// tokens. Windows land on word boundaries so no chunk starts or ends mid-word.
type Splitter struct {
	maxChars     int
	overlapChars int
}

func NewSplitter(maxTokens, overlapTokens int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 10
	}
	return &Splitter{
		maxChars:     maxTokens * charsPerToken,
		overlapChars: overlapTokens * charsPerToken,
	}
}

func (s *Splitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	out := make([]string, 0, 4)
	start := 0
	for start < len(words) {
		chars := 0
		end := start
		for end < len(words) {
			wordChars := len([]rune(words[end])) + 1
			if chars+wordChars > s.maxChars && end > start {
				break
			}
			chars += wordChars
			end++
		}

		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		// Step back far enough to repeat roughly overlapChars of text.
		next := end
		back := 0
		for next > start+1 && back < s.overlapChars {
			next--
			back += len([]rune(words[next])) + 1
		}
		start = next
	}
	return out
}
