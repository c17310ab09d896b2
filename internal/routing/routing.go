// Package routing resolves classifier labels to waste categories.
package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// defaultLabels covers the labels the model service is trained on.
var defaultLabels = map[string]types.WasteCategory{
	"battery":    types.CategoryOther,
	"biological": types.CategoryOther,
	"cardboard":  types.CategoryPaper,
	"clothes":    types.CategoryOther,
	"glass":      types.CategoryGlass,
	"metal":      types.CategoryMetal,
	"paper":      types.CategoryPaper,
	"plastic":    types.CategoryPlastic,
	"shoes":      types.CategoryOther,
	"trash":      types.CategoryOther,
}

// Mapper is a closed, deterministic label to category table. Labels are
// matched case-insensitively; anything unmapped goes to the fallback.
type Mapper struct {
	labels   map[string]types.WasteCategory
	fallback types.WasteCategory
}

// Default returns the built-in table with the default fallback.
func Default() *Mapper {
	m, _ := New(nil)
	return m
}

// New builds a Mapper from the default table plus cfg overrides. A nil cfg
// yields the defaults.
func New(cfg *types.RoutingConfig) (*Mapper, error) {
	m := &Mapper{
		labels:   make(map[string]types.WasteCategory, len(defaultLabels)+len(types.Categories())),
		fallback: types.DefaultFallbackCategory,
	}
	for label, c := range defaultLabels {
		m.labels[label] = c
	}
	for _, c := range types.Categories() {
		m.labels[string(c)] = c
	}
	if cfg == nil {
		return m, nil
	}

	if cfg.Fallback != types.CategoryNone {
		if !cfg.Fallback.Valid() {
			return nil, fmt.Errorf("routing: invalid fallback category %q", cfg.Fallback)
		}
		m.fallback = cfg.Fallback
	}
	for label, c := range cfg.Labels {
		key := normalize(label)
		if key == "" {
			return nil, errors.New("routing: empty label")
		}
		if !c.Valid() {
			return nil, fmt.Errorf("routing: label %q maps to invalid category %q", label, c)
		}
		m.labels[key] = c
	}
	return m, nil
}

// Resolve returns the category for label and whether the label was known.
func (m *Mapper) Resolve(label string) (types.WasteCategory, bool) {
	if c, ok := m.labels[normalize(label)]; ok {
		return c, true
	}
	return m.fallback, false
}

// Fallback returns the category used for unknown labels and failed
// classifications.
func (m *Mapper) Fallback() types.WasteCategory {
	return m.fallback
}

// Labels returns the known labels in sorted order.
func (m *Mapper) Labels() []string {
	out := make([]string, 0, len(m.labels))
	for l := range m.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
