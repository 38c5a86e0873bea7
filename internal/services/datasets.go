package services

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/foxxcyber/voicecart/internal/models"
)

//go:embed datasets/*.yaml
var datasetFS embed.FS

// SeasonalEntry is one in-season item for a calendar month
type SeasonalEntry struct {
	Item   string `yaml:"item"`
	Reason string `yaml:"reason"`
}

// Datasets holds the static tables used by the normalizer and suggestion engine.
// Keys of Substitutes and ExactCategories are canonical names.
type Datasets struct {
	Seasonal         map[int][]SeasonalEntry
	Substitutes      map[string][]string
	ExactCategories  map[string]string
	CategoryKeywords map[string][]string
}

type categoriesFile struct {
	Exact    map[string]string   `yaml:"exact"`
	Keywords map[string][]string `yaml:"keywords"`
}

var (
	defaultDatasets     *Datasets
	defaultDatasetsErr  error
	defaultDatasetsOnce sync.Once
)

// DefaultDatasets returns the embedded tables, parsed once
func DefaultDatasets() *Datasets {
	defaultDatasetsOnce.Do(func() {
		defaultDatasets, defaultDatasetsErr = LoadDatasets()
	})
	if defaultDatasetsErr != nil {
		// The tables are compiled into the binary; a parse failure is a build defect.
		panic(defaultDatasetsErr)
	}
	return defaultDatasets
}

// LoadDatasets parses the embedded YAML tables
func LoadDatasets() (*Datasets, error) {
	ds := &Datasets{
		Seasonal:         make(map[int][]SeasonalEntry),
		Substitutes:      make(map[string][]string),
		ExactCategories:  make(map[string]string),
		CategoryKeywords: make(map[string][]string),
	}

	var seasonal map[string][]SeasonalEntry
	if err := decodeDataset("datasets/seasonal.yaml", &seasonal); err != nil {
		return nil, err
	}
	for key, entries := range seasonal {
		month, err := strconv.Atoi(key)
		if err != nil || month < 1 || month > 12 {
			return nil, fmt.Errorf("seasonal dataset: invalid month %q", key)
		}
		ds.Seasonal[month] = entries
	}

	var subs map[string][]string
	if err := decodeDataset("datasets/substitutes.yaml", &subs); err != nil {
		return nil, err
	}
	for name, alts := range subs {
		ds.Substitutes[CanonicalName(name)] = alts
	}

	var cats categoriesFile
	if err := decodeDataset("datasets/categories.yaml", &cats); err != nil {
		return nil, err
	}
	for name, cat := range cats.Exact {
		ds.ExactCategories[CanonicalName(name)] = cat
	}
	for cat, words := range cats.Keywords {
		if !isKnownCategory(cat) {
			return nil, fmt.Errorf("categories dataset: unknown category %q", cat)
		}
		ds.CategoryKeywords[cat] = words
	}

	return ds, nil
}

func decodeDataset(path string, out interface{}) error {
	raw, err := datasetFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read dataset %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return nil
}

func isKnownCategory(cat string) bool {
	for _, c := range models.Categories {
		if strings.EqualFold(c, cat) {
			return true
		}
	}
	return false
}
