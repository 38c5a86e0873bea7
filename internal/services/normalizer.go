package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/foxxcyber/voicecart/internal/models"
)

// NormalizedName pairs the dedup key of an item with its display form
type NormalizedName struct {
	Canonical string `json:"canonical"`
	Display   string `json:"display"`
}

// Common shorthand seen in typed input, expanded per whole token
var abbreviations = map[string]string{
	"org":  "organic",
	"whl":  "whole",
	"chkn": "chicken",
	"brst": "breast",
	"bnls": "boneless",
	"frsh": "fresh",
	"frzn": "frozen",
	"veg":  "vegetable",
	"vegs": "vegetables",
	"jce":  "juice",
	"mlk":  "milk",
	"chse": "cheese",
	"brd":  "bread",
	"tp":   "toilet paper",
	"pb":   "peanut butter",
	"oj":   "orange juice",
}

var titleCaser = cases.Title(language.Und)

// Normalizer canonicalizes item names and infers display categories
type Normalizer struct {
	data *Datasets
}

// NewNormalizer creates a normalizer over the given tables
func NewNormalizer(data *Datasets) *Normalizer {
	if data == nil {
		data = DefaultDatasets()
	}
	return &Normalizer{data: data}
}

// Normalize returns the canonical key and title-cased display form of raw
func (n *Normalizer) Normalize(raw string) NormalizedName {
	return NormalizeItem(raw)
}

// NormalizeItem returns the canonical and display forms without category data
func NormalizeItem(raw string) NormalizedName {
	canonical := CanonicalName(raw)
	return NormalizedName{Canonical: canonical, Display: DisplayName(canonical)}
}

// CanonicalName case-folds raw, strips stray punctuation, expands shorthand
// and collapses whitespace. It is the identity key for every component.
func CanonicalName(raw string) string {
	name := strings.ToLower(raw)
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '\'' || r == '-' || r == '&':
			return r
		default:
			return ' '
		}
	}, name)

	tokens := strings.Fields(name)
	for i, tok := range tokens {
		tok = strings.Trim(tok, "'-")
		if full, ok := abbreviations[tok]; ok {
			tok = full
		}
		tokens[i] = tok
	}

	return strings.Join(strings.Fields(strings.Join(tokens, " ")), " ")
}

// DisplayName title-cases a canonical name
func DisplayName(canonical string) string {
	if canonical == "" {
		return ""
	}
	return titleCaser.String(canonical)
}

// Category infers a display category for a canonical name.
// It never affects identity.
func (n *Normalizer) Category(canonical string) string {
	canonical = CanonicalName(canonical)
	if canonical == "" {
		return models.CategoryOther
	}
	if cat, ok := n.data.ExactCategories[canonical]; ok {
		return cat
	}

	tokens := strings.Fields(canonical)
	for _, cat := range models.Categories {
		words := n.data.CategoryKeywords[cat]
		for _, w := range words {
			for _, tok := range tokens {
				if tok == w || singular(tok) == w {
					return cat
				}
			}
		}
	}
	return models.CategoryOther
}

func singular(tok string) string {
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 4:
		return strings.TrimSuffix(tok, "ies") + "y"
	case strings.HasSuffix(tok, "oes") && len(tok) > 4:
		return strings.TrimSuffix(tok, "es")
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") && len(tok) > 3:
		return strings.TrimSuffix(tok, "s")
	}
	return tok
}
