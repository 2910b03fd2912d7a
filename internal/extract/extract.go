// Package extract turns downloaded document bytes into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNoText means the document decoded fine but holds no text.
	ErrNoText = errors.New("no text extracted from document")
	// ErrDecode means the bytes are not a readable document of the detected format.
	ErrDecode = errors.New("document cannot be decoded")
)

// Format is a supported source document format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Detect определяет формат: сигнатура %PDF-, затем Content-Type, затем
// расширение имени файла, затем содержимое. Всё, что не похоже на текст, считаем PDF.
func Detect(contentType, name string, data []byte) Format {
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch strings.ToLower(mediaType) {
		case "application/pdf", "application/x-pdf":
			return FormatPDF
		case "text/markdown", "text/x-markdown":
			return FormatMarkdown
		case "text/plain":
			if byExtension(name) == FormatMarkdown {
				return FormatMarkdown
			}
			return FormatText
		}
	}

	if f := byExtension(name); f != "" {
		return f
	}
	if len(data) > 0 && utf8.Valid(data) && bytes.IndexByte(data, 0) < 0 {
		return FormatText
	}
	return FormatPDF
}

var pdfMagic = []byte("%PDF-")

func byExtension(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text":
		return FormatText
	}
	return ""
}

// Text extracts plain text from data in the given format. It fails with
// ErrNoText when nothing but whitespace comes out.
func Text(data []byte, format Format) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = PDF(data)
	case FormatMarkdown:
		text, err = Markdown(data)
	case FormatText:
		text = PlainText(data)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// PlainText returns data as a string, replacing invalid UTF-8 sequences.
func PlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
