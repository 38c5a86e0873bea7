package services

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmptyItemName   = errors.New("item name is empty")
	ErrImplausibleItem = errors.New("item name does not look like a product")
)

const (
	minItemRunes  = 2
	maxItemRunes  = 60
	maxItemTokens = 6
)

// Filler that speech capture picks up between commands
var fillerWords = map[string]bool{
	"um": true, "uh": true, "erm": true, "hmm": true, "mm": true,
	"the": true, "a": true, "an": true, "some": true, "please": true,
	"and": true, "to": true, "of": true, "it": true, "that": true, "this": true,
}

// ValidateItemName checks that name is plausible as a list entry:
// non-empty, bounded length and token count, mostly letters, not just filler.
func ValidateItemName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyItemName
	}

	n := utf8.RuneCountInString(name)
	if n < minItemRunes || n > maxItemRunes {
		return ErrImplausibleItem
	}

	tokens := strings.Fields(name)
	if len(tokens) > maxItemTokens {
		return ErrImplausibleItem
	}

	letters, others := 0, 0
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsSpace(r), unicode.IsDigit(r), r == '\'', r == '-', r == '&', r == '.':
		default:
			others++
		}
	}
	if letters < minItemRunes || others > 0 {
		return ErrImplausibleItem
	}

	meaningful := 0
	for _, tok := range tokens {
		if !fillerWords[strings.ToLower(tok)] {
			meaningful++
		}
	}
	if meaningful == 0 {
		return ErrImplausibleItem
	}

	return nil
}
