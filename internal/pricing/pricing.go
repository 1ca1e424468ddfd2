// Package pricing is the single source of truth for credit prices.
// Both the gateway's authoritative debit and the studio client's
// pre-flight affordability estimate read this table; it must never be
// duplicated elsewhere.
package pricing

import (
	"errors"
	"fmt"

	"github.com/couturelab/backend/internal/models"
)

var ErrUnknownPrice = errors.New("no price for generation type and resolution")

// creditsPerImage maps generation type -> resolution tier -> credits for
// one produced image.
var creditsPerImage = map[string]map[string]int{
	models.GenTypeSketch: {
		models.Resolution1K: 4,
		models.Resolution2K: 5,
		models.Resolution4K: 10,
	},
	models.GenTypeConcept: {
		models.Resolution1K: 4,
		models.Resolution2K: 5,
		models.Resolution4K: 10,
	},
	models.GenTypeLookbook: {
		models.Resolution1K: 4,
		models.Resolution2K: 5,
		models.Resolution4K: 10,
	},
	models.GenTypeTryOn: {
		models.Resolution1K: 8,
		models.Resolution2K: 15,
		models.Resolution4K: 25,
	},
}

// Cost returns the credit price for a single image of the given
// generation type at the given resolution tier.
func Cost(genType, resolution string) (int, error) {
	row, ok := creditsPerImage[genType]
	if !ok {
		return 0, fmt.Errorf("%w: type %q", ErrUnknownPrice, genType)
	}
	price, ok := row[resolution]
	if !ok {
		return 0, fmt.Errorf("%w: resolution %q", ErrUnknownPrice, resolution)
	}
	return price, nil
}

// BatchCost returns the total price of count images at the given tier.
func BatchCost(genType, resolution string, count int) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("%w: count must be > 0", ErrUnknownPrice)
	}
	per, err := Cost(genType, resolution)
	if err != nil {
		return 0, err
	}
	return per * count, nil
}
