package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
)

var (
	ErrNoIntent        = errors.New("model returned no intent")
	ErrMalformedIntent = errors.New("model returned malformed intent")
)

const intentSystemPrompt = `You turn shopping-list voice commands into JSON.
Reply with a single JSON object and nothing else:
{"action": "add"|"remove"|"search"|"unknown", "item": string, "quantity": integer, "normalizedItem": string}
- "item" is the product as spoken, without quantity words.
- "normalizedItem" is the singular/plural-neutral lowercase product name.
- "quantity" defaults to 1.
- Product searches with price limits, brands, sizes or qualities are "search".
Reply with null if the text is not a shopping command.`

type generativeIntent struct {
	Action         string `json:"action"`
	Item           string `json:"item"`
	Quantity       int    `json:"quantity"`
	NormalizedItem string `json:"normalizedItem"`
}

// GenerativeParser asks a language model to interpret the utterance.
// It may be slow and may fail; callers wrap it in a FallbackParser.
type GenerativeParser struct {
	gen TextGenerator
}

// NewGenerativeParser creates a parser over a text generator
func NewGenerativeParser(gen TextGenerator) *GenerativeParser {
	return &GenerativeParser{gen: gen}
}

// Parse implements Parser
func (p *GenerativeParser) Parse(ctx context.Context, text, locale string) (models.Intent, error) {
	user := fmt.Sprintf("Locale: %s\nCommand: %s", locale, text)
	out, err := p.gen.GenerateText(ctx, intentSystemPrompt, user)
	if err != nil {
		return models.Intent{}, err
	}

	body := stripCodeFence(out)
	if body == "" || body == "null" {
		return models.Intent{}, ErrNoIntent
	}

	var gi generativeIntent
	if err := json.Unmarshal([]byte(body), &gi); err != nil {
		return models.Intent{}, fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}

	action := models.Action(strings.ToLower(strings.TrimSpace(gi.Action)))
	if !action.Valid() {
		return models.Intent{}, fmt.Errorf("%w: action %q", ErrMalformedIntent, gi.Action)
	}

	name := gi.NormalizedItem
	if strings.TrimSpace(name) == "" {
		name = gi.Item
	}
	norm := NormalizeItem(name)

	qty := gi.Quantity
	if qty < 1 {
		qty = 1
	}

	return models.Intent{
		Action:        action,
		CanonicalItem: norm.Canonical,
		DisplayItem:   norm.Display,
		Quantity:      qty,
		Raw:           text,
		Source:        "ai",
	}, nil
}

// FallbackParser tries Primary under a timeout and falls back to the
// deterministic parser on error or when no item was extracted.
// Parse never returns an error.
type FallbackParser struct {
	Primary  Parser
	Fallback *RuleParser
	Timeout  time.Duration
	log      *logger.Logger
}

// NewFallbackParser composes primary with the rule parser.
// A nil primary yields a pure rule parser.
func NewFallbackParser(primary Parser, timeout time.Duration, log *logger.Logger) *FallbackParser {
	return &FallbackParser{
		Primary:  primary,
		Fallback: NewRuleParser(),
		Timeout:  timeout,
		log:      logger.OrNop(log).With("component", "parser"),
	}
}

// Parse implements Parser
func (p *FallbackParser) Parse(ctx context.Context, text, locale string) (models.Intent, error) {
	if p.Primary == nil || strings.TrimSpace(text) == "" {
		return p.Fallback.ParseText(text, locale), nil
	}

	intent, err := p.parsePrimary(ctx, text, locale)
	if err != nil {
		p.log.Warn("generative parse failed, using rules", "error", err)
		return p.Fallback.ParseText(text, locale), nil
	}
	if !intent.HasItem() {
		p.log.Debug("generative parse returned no item, using rules", "text", text)
		return p.Fallback.ParseText(text, locale), nil
	}

	// Search-like cues override a same-turn add from the model
	if intent.Action == models.ActionAdd && LooksLikeSearch(text, locale) {
		intent.Action = models.ActionSearch
	}
	return intent, nil
}

// parsePrimary runs the primary parser in its own goroutine so a parser
// that ignores ctx still cannot hold the utterance pipeline past the timeout.
func (p *FallbackParser) parsePrimary(ctx context.Context, text, locale string) (models.Intent, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	type result struct {
		intent models.Intent
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("generative parser panic: %v", r)}
			}
		}()
		in, err := p.Primary.Parse(ctx, text, locale)
		done <- result{intent: in, err: err}
	}()

	select {
	case res := <-done:
		return res.intent, res.err
	case <-ctx.Done():
		return models.Intent{}, ctx.Err()
	}
}
