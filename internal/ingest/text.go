package ingest

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// CombineText builds the raw text handed to the entity extractor.
func CombineText(genomics, pathology string) string {
	return fmt.Sprintf("Genomics: %s\nPathology: %s", genomics, pathology)
}

// ReadText reads an uploaded note as UTF-8. When limit is positive the note is cut to
// limit bytes, dropping a rune split by the cut. A note that is still not valid UTF-8
// reads as "", like an unreadable note; only I/O failures are returned as errors.
func ReadText(r io.Reader, limit int64) (string, error) {
	if r == nil {
		return "", nil
	}
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading note: %w", err)
	}
	if limit > 0 && int64(len(data)) == limit {
		data = trimPartialRune(data)
	}
	if !utf8.Valid(data) {
		return "", nil
	}
	return string(data), nil
}

// trimPartialRune drops an incomplete multi-byte sequence at the end of data.
func trimPartialRune(data []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if utf8.RuneStart(b) {
			if !utf8.FullRune(data[len(data)-i:]) {
				return data[:len(data)-i]
			}
			return data
		}
	}
	return data
}
