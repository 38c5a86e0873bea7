package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/foxxcyber/voicecart/internal/models"
)

// Parser turns a finalized utterance into an Intent
type Parser interface {
	Parse(ctx context.Context, text, locale string) (models.Intent, error)
}

// localeTable holds the keyword tables for one language
type localeTable struct {
	intents     map[string]models.Action
	numberWords map[string]int
	searchCues  []string
}

var localeTables = map[string]*localeTable{
	"en": {
		intents: map[string]models.Action{
			"add":    models.ActionAdd,
			"remove": models.ActionRemove,
			"delete": models.ActionRemove,
			"find":   models.ActionSearch,
			"search": models.ActionSearch,
		},
		numberWords: map[string]int{
			"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
			"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
			"dozen": 12,
		},
		searchCues: []string{
			"under", "below", "less than", "cheaper", "cheapest", "organic", "brand",
			"gram", "grams", "kg", "ml", "liter", "litre", "ounce", "oz", "lb", "pound",
			"dollar", "dollars", "bucks",
		},
	},
	"es": {
		intents: map[string]models.Action{
			"añadir":    models.ActionAdd,
			"agregar":   models.ActionAdd,
			"quitar":    models.ActionRemove,
			"eliminar":  models.ActionRemove,
			"borrar":    models.ActionRemove,
			"buscar":    models.ActionSearch,
			"encontrar": models.ActionSearch,
		},
		numberWords: map[string]int{
			"uno": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
			"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
			"docena": 12,
		},
		searchCues: []string{
			"menos de", "bajo", "barato", "orgánico", "organico", "marca",
			"gramos", "kg", "ml", "litro", "libra",
			"euros", "pesos", "dólares",
		},
	},
}

// Units and sizes written as a number glued to a unit, e.g. "500g" or "2l"
var sizeCuePattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:g|kg|ml|l|oz|lb|lbs)\b`)

var digitsPattern = regexp.MustCompile(`^\d+$`)

// tableFor resolves a BCP 47 locale such as "en-US" to a keyword table
func tableFor(locale string) *localeTable {
	if locale != "" {
		if tag, err := language.Parse(locale); err == nil {
			base, _ := tag.Base()
			if t, ok := localeTables[base.String()]; ok {
				return t
			}
		}
	}
	return localeTables["en"]
}

// RuleParser is the deterministic keyword parser.
// It never fails and is always the fallback for any other parser.
type RuleParser struct{}

// NewRuleParser creates a deterministic parser
func NewRuleParser() *RuleParser {
	return &RuleParser{}
}

// Parse implements Parser; the returned error is always nil
func (p *RuleParser) Parse(_ context.Context, text, locale string) (models.Intent, error) {
	return p.ParseText(text, locale), nil
}

// ParseText interprets text using the first-token intent keyword and the
// first quantity token. Remaining tokens form the item name.
func (p *RuleParser) ParseText(text, locale string) models.Intent {
	input := strings.TrimSpace(strings.ToLower(text))
	if input == "" {
		return models.UnknownIntent(text)
	}

	table := tableFor(locale)
	tokens := strings.Fields(input)

	intent := models.Intent{
		Action:   models.ActionUnknown,
		Quantity: 1,
		Raw:      text,
		Source:   "rules",
	}

	omit := make(map[int]bool, 2)
	if action, ok := table.intents[tokens[0]]; ok {
		intent.Action = action
		omit[0] = true
	}

	// First quantity token wins, including the intent position
	for i, tok := range tokens {
		if qty, ok := p.quantityToken(tok, table); ok {
			intent.Quantity = qty
			omit[i] = true
			break
		}
	}

	var itemTokens []string
	for i, tok := range tokens {
		if omit[i] {
			continue
		}
		itemTokens = append(itemTokens, tok)
	}

	item := strings.Join(itemTokens, " ")
	if item != "" {
		norm := NormalizeItem(item)
		intent.CanonicalItem = norm.Canonical
		intent.DisplayItem = norm.Display
	}

	return intent
}

// quantityToken reports the quantity a single token denotes
func (p *RuleParser) quantityToken(tok string, table *localeTable) (int, bool) {
	if digitsPattern.MatchString(tok) {
		qty, err := strconv.Atoi(tok)
		if err != nil {
			return 0, false
		}
		if qty < 1 {
			qty = 1
		}
		return qty, true
	}
	if qty, ok := table.numberWords[tok]; ok {
		return qty, true
	}
	return 0, false
}

// LooksLikeSearch reports whether text carries lexical search cues
// (price limits, quality or brand words, size units) for the locale.
func LooksLikeSearch(text, locale string) bool {
	input := " " + strings.Join(strings.Fields(strings.ToLower(text)), " ") + " "
	for _, cue := range tableFor(locale).searchCues {
		if strings.Contains(input, " "+cue+" ") {
			return true
		}
	}
	return sizeCuePattern.MatchString(input)
}

// SearchTerms drops search cues, numbers and sizes from a canonical search
// phrase so "organic milk under 5 dollars" looks for "milk". When nothing
// would be left the phrase is returned unchanged.
func SearchTerms(canonical, locale string) string {
	table := tableFor(locale)
	padded := " " + canonical + " "
	cues := make(map[string]bool, len(table.searchCues))
	for _, cue := range table.searchCues {
		if strings.Contains(cue, " ") {
			padded = strings.ReplaceAll(padded, " "+cue+" ", " ")
			continue
		}
		cues[cue] = true
	}

	var kept []string
	for _, tok := range strings.Fields(padded) {
		if cues[tok] || digitsPattern.MatchString(tok) || sizeCuePattern.MatchString(tok) {
			continue
		}
		if _, ok := table.numberWords[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return canonical
	}
	return strings.Join(kept, " ")
}
