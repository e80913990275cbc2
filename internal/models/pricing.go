package models

// PricingDocument is the structured tier layout for an event: an ordered list
// of categories, each with an ordered list of priced tiers. It is stored as a
// single jsonb column and never mutated in place; updates replace the whole
// document together with the recomputed aggregate counter.
type PricingDocument struct {
	Categories []PricingCategory `json:"categories"`
}

type PricingCategory struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Code  string        `json:"code,omitempty"`
	Tiers []PricingTier `json:"tiers"`
}

type PricingTier struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Code               string  `json:"code,omitempty"`
	Price              float64 `json:"price"`
	OriginalPrice      float64 `json:"original_price,omitempty"`
	DiscountPercentage float64 `json:"discount_percentage,omitempty"`
	AvailableQuantity  int     `json:"available_quantity"`
	EarlyBird          bool    `json:"early_bird,omitempty"`
	Active             bool    `json:"active"`
}

// TotalAvailable sums available_quantity across every tier.
func (d *PricingDocument) TotalAvailable() int {
	total := 0
	for _, cat := range d.Categories {
		for _, tier := range cat.Tiers {
			total += tier.AvailableQuantity
		}
	}
	return total
}

// Clone returns a deep copy so callers can rewrite the document without
// touching the original.
func (d *PricingDocument) Clone() *PricingDocument {
	if d == nil {
		return nil
	}
	out := &PricingDocument{Categories: make([]PricingCategory, len(d.Categories))}
	for i, cat := range d.Categories {
		copied := cat
		copied.Tiers = make([]PricingTier, len(cat.Tiers))
		copy(copied.Tiers, cat.Tiers)
		out.Categories[i] = copied
	}
	return out
}
