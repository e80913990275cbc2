// Package pricing resolves an event's purchasable options and owns the
// inventory arithmetic, so booking and settlement code never branch on
// whether an event uses the legacy flat counter or the tiered document.
package pricing

import (
	"fmt"
	"math"

	"ms-booking/internal/models"
)

// Machine-readable validation codes surfaced through the API envelope.
const (
	CodeNoPricingAvailable   = "NO_PRICING_AVAILABLE"
	CodeOptionNotFound       = "PRICING_OPTION_NOT_FOUND"
	CodeOptionUnavailable    = "PRICING_OPTION_UNAVAILABLE"
	CodeInsufficientQuantity = "INSUFFICIENT_QUANTITY"
)

// ValidationError is returned for every rejected selection; Code is stable,
// Message is human-readable.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LegacyTierID marks an option synthesized from the flat price/availability
// fields of an event without a pricing document.
const LegacyTierID = "legacy"

// Option is one purchasable (category, tier) selection.
type Option struct {
	CategoryID         string  `json:"category_id"`
	CategoryName       string  `json:"category_name"`
	CategoryCode       string  `json:"category_code"`
	TierID             string  `json:"tier_id"`
	TierName           string  `json:"tier_name"`
	TierCode           string  `json:"tier_code"`
	Price              float64 `json:"price"`
	OriginalPrice      float64 `json:"original_price,omitempty"`
	DiscountPercentage float64 `json:"discount_percentage,omitempty"`
	AvailableQuantity  int     `json:"available_quantity"`
	EarlyBird          bool    `json:"early_bird,omitempty"`
	Active             bool    `json:"active"`
}

// Legacy reports whether the option was synthesized from flat fields.
func (o *Option) Legacy() bool {
	return o.TierID == LegacyTierID
}

// ResolveOptions enumerates every purchasable option for the event. Events
// with a tiered document yield one option per tier; events without one yield
// a single synthesized option from the flat price/availability fields. The
// result is empty only when the event has neither representation.
func ResolveOptions(ev *models.Event) []Option {
	if ev.Pricing != nil && len(ev.Pricing.Categories) > 0 {
		var options []Option
		for _, cat := range ev.Pricing.Categories {
			for _, tier := range cat.Tiers {
				options = append(options, Option{
					CategoryID:         cat.ID,
					CategoryName:       cat.Name,
					CategoryCode:       cat.Code,
					TierID:             tier.ID,
					TierName:           tier.Name,
					TierCode:           tier.Code,
					Price:              tier.Price,
					OriginalPrice:      tier.OriginalPrice,
					DiscountPercentage: tier.DiscountPercentage,
					AvailableQuantity:  tier.AvailableQuantity,
					EarlyBird:          tier.EarlyBird,
					Active:             tier.Active,
				})
			}
		}
		return options
	}

	if ev.Price <= 0 && ev.TotalTickets <= 0 {
		return nil
	}

	return []Option{{
		CategoryID:        "",
		TierID:            LegacyTierID,
		TierName:          "General Admission",
		Price:             ev.Price,
		AvailableQuantity: ev.AvailableTickets,
		Active:            true,
	}}
}

// FindOption locates the option for a (category, tier) selection. An empty
// tier id matches only the synthesized legacy option.
func FindOption(ev *models.Event, categoryID, tierID string) (*Option, bool) {
	for _, opt := range ResolveOptions(ev) {
		if tierID == "" && opt.Legacy() {
			o := opt
			return &o, true
		}
		if opt.CategoryID == categoryID && opt.TierID == tierID {
			o := opt
			return &o, true
		}
	}
	return nil, false
}

// Validate checks a selection and quantity against the event's pricing.
// Quantity is enforced only when available_quantity is a positive number;
// zero means untracked.
func Validate(ev *models.Event, categoryID, tierID string, quantity int) (*Option, error) {
	options := ResolveOptions(ev)
	if len(options) == 0 {
		return nil, &ValidationError{
			Code:    CodeNoPricingAvailable,
			Message: "event has no resolvable pricing",
		}
	}

	opt, ok := FindOption(ev, categoryID, tierID)
	if !ok {
		return nil, &ValidationError{
			Code:    CodeOptionNotFound,
			Message: fmt.Sprintf("no pricing option for category %q tier %q", categoryID, tierID),
		}
	}

	if !opt.Active {
		return nil, &ValidationError{
			Code:    CodeOptionUnavailable,
			Message: fmt.Sprintf("tier %q is not available for sale", opt.TierID),
		}
	}

	if opt.AvailableQuantity > 0 && quantity > opt.AvailableQuantity {
		return nil, &ValidationError{
			Code:    CodeInsufficientQuantity,
			Message: fmt.Sprintf("requested %d tickets, only %d available", quantity, opt.AvailableQuantity),
		}
	}

	return opt, nil
}

// Quote is the pure price calculation for a selection.
type Quote struct {
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
	Discount  float64 `json:"discount"`
}

// CalculateQuote computes unit price × quantity and the discount versus the
// original price, rounded to currency minor units.
func CalculateQuote(opt *Option, quantity int) Quote {
	q := Quote{
		UnitPrice: round2(opt.Price),
		Total:     round2(opt.Price * float64(quantity)),
	}
	if opt.OriginalPrice > opt.Price {
		q.Discount = round2((opt.OriginalPrice - opt.Price) * float64(quantity))
	}
	return q
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
