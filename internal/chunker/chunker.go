package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/mindmapd/internal/doctree"
)

// DefaultSeparators are tried in order: paragraphs, lines, sentence ends,
// commas, words, and finally single characters.
var DefaultSeparators = []string{
	"\n\n", "\n",
	"。", "！", "？", ". ", "! ", "? ",
	"，", ", ",
	" ",
	"",
}

// Config controls chunking behavior. Sizes are in characters (runes).
type Config struct {
	ChunkSize    int      // Upper bound for a split piece.
	ChunkOverlap int      // Tail of one chunk repeated at the head of the next.
	MinChunk     int      // Merge pass keeps growing a chunk until it reaches this size.
	Separators   []string // Split boundaries in priority order.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    12000,
		ChunkOverlap: 200,
		MinChunk:     1000,
		Separators:   DefaultSeparators,
	}
}

// Splitter breaks long text into overlapping chunks along semantic boundaries.
type Splitter struct {
	cfg Config
}

func NewSplitter(cfg Config) *Splitter {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap <= 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = min(def.ChunkOverlap, cfg.ChunkSize/2)
	}
	if cfg.MinChunk <= 0 {
		cfg.MinChunk = def.MinChunk
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = def.Separators
	}
	return &Splitter{cfg: cfg}
}

// Split returns the chunks of text: a recursive split followed by a merge
// of undersized pieces. Text no longer than the chunk size is returned whole.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	if runeLen(text) <= s.cfg.ChunkSize {
		return []string{text}
	}
	return MergeSmall(s.SplitRecursive(text), s.cfg.MinChunk)
}

// Chunks is Split with position metadata attached.
func (s *Splitter) Chunks(text string) []doctree.Chunk {
	parts := s.Split(text)
	chunks := make([]doctree.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = doctree.Chunk{Text: p, Index: i, Total: len(parts)}
	}
	return chunks
}

// SplitRecursive splits on the highest-priority separator present in text and
// re-splits any piece still above the chunk size with the remaining separators.
// Separators stay at the end of the piece they terminate and nothing is
// trimmed, so every input character lands in at least one chunk.
func (s *Splitter) SplitRecursive(text string) []string {
	return s.split(text, s.cfg.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) < s.cfg.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs pieces into chunks no longer than the chunk size, starting each
// new chunk with the trailing pieces of the previous one up to the overlap.
func (s *Splitter) merge(pieces []string) []string {
	var (
		out     []string
		window  []string
		total   int
		lengths = make([]int, len(pieces))
	)
	for i, p := range pieces {
		lengths[i] = runeLen(p)
	}

	start := 0 // index in pieces of window[0]
	for i, p := range pieces {
		l := lengths[i]
		if total+l > s.cfg.ChunkSize && len(window) > 0 {
			out = append(out, strings.Join(window, ""))
			for total > s.cfg.ChunkOverlap || (total+l > s.cfg.ChunkSize && total > 0) {
				total -= lengths[start]
				window = window[1:]
				start++
			}
		}
		window = append(window, p)
		total += l
	}
	if len(window) > 0 {
		out = append(out, strings.Join(window, ""))
	}
	return out
}

// MergeSmall walks chunks left to right, appending each one to a buffer while
// the buffer is shorter than minSize. The final buffer is always kept.
func MergeSmall(chunks []string, minSize int) []string {
	if len(chunks) == 0 {
		return nil
	}
	var (
		out []string
		buf strings.Builder
	)
	for _, c := range chunks {
		switch {
		case buf.Len() == 0:
			buf.WriteString(c)
		case runeLen(buf.String()) < minSize:
			buf.WriteString("\n")
			buf.WriteString(c)
		default:
			out = append(out, buf.String())
			buf.Reset()
			buf.WriteString(c)
		}
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

// splitKeep splits text on sep, leaving each separator at the end of the piece
// it terminates. An empty separator splits into single runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
