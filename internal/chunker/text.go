package chunker

import (
	"strings"
	"unicode/utf8"
)

// TextChunker режет plain text на последовательные окна фиксированного размера
// без overlap. Границы слов и предложений не учитываются.
type TextChunker struct {
	config Config
}

// NewTextChunker создаёт chunker; неположительный размер окна заменяется на DefaultWindowSize.
func NewTextChunker(config Config) *TextChunker {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	return &TextChunker{config: config}
}

func (s *TextChunker) Name() string {
	return "window"
}

// WindowSize returns the effective window size in characters.
func (s *TextChunker) WindowSize() int {
	return s.config.WindowSize
}

// Chunk возвращает ceil(len/W) чанков; их конкатенация в порядке Index
// в точности равна content.
func (s *TextChunker) Chunk(content, source string) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}

	size := s.config.WindowSize
	total := utf8.RuneCountInString(content)
	chunks := make([]Chunk, 0, (total+size-1)/size)

	start, count := 0, 0
	for i := range content {
		if count == size {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: content[start:i], Source: source})
			start, count = i, 0
		}
		count++
	}
	chunks = append(chunks, Chunk{Index: len(chunks), Text: content[start:], Source: source})
	return chunks, nil
}

// Texts возвращает тексты чанков в исходном порядке
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}
