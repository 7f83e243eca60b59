// Package document turns an uploaded spec sheet into plain text that can be
// used as an extraction source.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxUploadBytes bounds what Text will read.
const MaxUploadBytes = 25 << 20

var (
	ErrUnsupported = errors.New("unsupported document type")
	ErrEmpty       = errors.New("document contains no text")
	ErrTooLarge    = errors.New("document too large")
)

// Text extracts the text of an upload, choosing the reader by extension.
// PDFs yield one "[Page N]" block per page with text.
func Text(filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmpty
	}
	if len(content) > MaxUploadBytes {
		return "", ErrTooLarge
	}

	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		text, err = pdfText(content)
	case ".txt", ".md", ".markdown":
		text = string(content)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "")
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

func pdfText(content []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, t)
	}
	return joinPages(pages), nil
}

// joinPages labels each non-blank page with its 1-based number.
func joinPages(pages []string) string {
	parts := make([]string, 0, len(pages))
	for i, t := range pages {
		if strings.TrimSpace(t) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", i+1, t))
	}
	return strings.Join(parts, "\n\n")
}
