// Package sku derives the stock-keeping unit that identifies a lot's classification key.
package sku

import (
	"regexp"
	"strings"

	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

const (
	Prefix           = "PKM"
	DefaultVariation = "standard"

	maxCardIDLength = 50
	maxLength       = 100
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Generate builds PKM-{cardId}-{CONDITION}-{VARIATION}. Lots that share a SKU
// hold interchangeable cards and may be merged.
func Generate(cardID string, condition enums.CardCondition, variation string) string {
	id := unsafeChars.ReplaceAllString(strings.TrimSpace(cardID), "")
	if len(id) > maxCardIDLength {
		id = id[:maxCardIDLength]
	}

	v := strings.ToUpper(unsafeChars.ReplaceAllString(NormalizeVariation(variation), ""))
	out := strings.Join([]string{Prefix, id, strings.ToUpper(string(condition)), v}, "-")
	if len(out) > maxLength {
		out = out[:maxLength]
	}
	return out
}

// NormalizeVariation lowercases and trims the variation, defaulting to standard.
func NormalizeVariation(variation string) string {
	v := strings.ToLower(strings.TrimSpace(variation))
	if v == "" {
		return DefaultVariation
	}
	return v
}
