package pricing

import (
	"ms-booking/internal/models"
)

// LineItem is a confirmed quantity attributed to one (category, tier). A
// booking made under legacy pricing carries an empty tier id and settles
// against the flat counter even if a document was added later.
type LineItem struct {
	CategoryID string
	TierID     string
	Quantity   int
}

// ApplyDecrement subtracts the confirmed quantities from the event's
// inventory representation, flooring every counter at zero. Tiered events get
// a rewritten document plus a recomputed aggregate; legacy events get the
// flat counter decremented. The event is mutated in memory; the caller
// persists it in the same transaction as the status transition.
func ApplyDecrement(ev *models.Event, items []LineItem) {
	applyDelta(ev, items, -1)
}

// ApplyRestock is the inverse of ApplyDecrement, used on refund/cancel of a
// previously confirmed booking.
func ApplyRestock(ev *models.Event, items []LineItem) {
	applyDelta(ev, items, +1)
}

func applyDelta(ev *models.Event, items []LineItem, sign int) {
	total := 0
	tiered := make(map[string]int)
	for _, item := range items {
		total += item.Quantity
		if item.TierID != "" && item.TierID != LegacyTierID {
			tiered[item.CategoryID+"/"+item.TierID] += item.Quantity
		}
	}

	if ev.Pricing != nil && len(tiered) > 0 {
		doc := ev.Pricing.Clone()
		for ci := range doc.Categories {
			cat := &doc.Categories[ci]
			for ti := range cat.Tiers {
				tier := &cat.Tiers[ti]
				qty, ok := tiered[cat.ID+"/"+tier.ID]
				if !ok {
					continue
				}
				tier.AvailableQuantity += sign * qty
				if tier.AvailableQuantity < 0 {
					tier.AvailableQuantity = 0
				}
			}
		}
		ev.Pricing = doc
		ev.AvailableTickets = doc.TotalAvailable()
		return
	}

	ev.AvailableTickets += sign * total
	if ev.AvailableTickets < 0 {
		ev.AvailableTickets = 0
	}
	if ev.AvailableTickets > ev.TotalTickets && ev.TotalTickets > 0 {
		ev.AvailableTickets = ev.TotalTickets
	}
}
