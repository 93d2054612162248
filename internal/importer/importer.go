// Package importer pulls skills out of uploaded documents such as résumés.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxDocumentSize bounds uploaded documents.
const MaxDocumentSize = 10 << 20 // 10MB

// ErrNoText is returned when a document has no extractable text, as with
// scanned, image-only PDFs.
var ErrNoText = errors.New("document has no extractable text")

// ExtractText returns the plain text of every page of a PDF, pages
// separated by blank lines. Pages that fail to decode are skipped.
func ExtractText(r io.ReaderAt, size int64) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}

	if b.Len() == 0 {
		return "", ErrNoText
	}
	return b.String(), nil
}

// ExtractBytes is ExtractText over an in-memory document.
func ExtractBytes(data []byte) (string, error) {
	return ExtractText(bytes.NewReader(data), int64(len(data)))
}

// MatchSkills returns the entries of vocabulary that occur in text as whole
// words, compared case-insensitively. Results follow vocabulary order and
// keep vocabulary casing.
func MatchSkills(text string, vocabulary []string) []string {
	hay := strings.ToLower(text)
	out := []string{}
	seen := map[string]struct{}{}

	for _, skill := range vocabulary {
		needle := strings.ToLower(strings.TrimSpace(skill))
		if needle == "" {
			continue
		}
		if _, dup := seen[needle]; dup {
			continue
		}
		if containsWord(hay, needle) {
			seen[needle] = struct{}{}
			out = append(out, strings.TrimSpace(skill))
		}
	}
	return out
}

// containsWord reports whether needle occurs in hay with no letter or digit
// directly before or after it.
func containsWord(hay, needle string) bool {
	for start := 0; start < len(hay); {
		i := strings.Index(hay[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)

		before, _ := utf8.DecodeLastRuneInString(hay[:i])
		after, _ := utf8.DecodeRuneInString(hay[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		_, w := utf8.DecodeRuneInString(hay[i:])
		start = i + w
	}
	return false
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
