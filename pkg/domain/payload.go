package domain

import (
	"encoding/json"
	"strings"
)

// PayloadKind tags the variant carried by an OrderPayload.
type PayloadKind string

const (
	// PayloadStructured carries drink and/or food choices.
	PayloadStructured PayloadKind = "structured"
	// PayloadLegacy carries only free text from the pre-menu order format.
	PayloadLegacy PayloadKind = "legacy"
)

// OrderPayload is the tagged content of an order. Structured payloads may keep
// a legacy text alongside their choices when it was present in stored data.
type OrderPayload struct {
	Kind       PayloadKind
	Drink      *Choice
	Food       *Choice
	LegacyText string
}

// StructuredPayload builds a payload from optional choices. Incomplete choices
// are dropped.
func StructuredPayload(drink, food Choice) OrderPayload {
	p := OrderPayload{Kind: PayloadStructured}
	if drink.Complete() {
		d := drink
		p.Drink = &d
	}
	if food.Complete() {
		f := food
		p.Food = &f
	}
	return p
}

// LegacyPayload wraps free text.
func LegacyPayload(text string) OrderPayload {
	return OrderPayload{Kind: PayloadLegacy, LegacyText: strings.TrimSpace(text)}
}

// HasChoice reports whether at least one structured choice is present.
func (p OrderPayload) HasChoice() bool { return p.Drink != nil || p.Food != nil }

// IsZero reports whether the payload carries nothing displayable.
func (p OrderPayload) IsZero() bool { return !p.HasChoice() && p.LegacyText == "" }

func (p OrderPayload) clone() OrderPayload {
	out := p
	if p.Drink != nil {
		d := *p.Drink
		out.Drink = &d
	}
	if p.Food != nil {
		f := *p.Food
		out.Food = &f
	}
	return out
}

type payloadDoc struct {
	Drink      *Choice `json:"drink,omitempty"`
	Food       *Choice `json:"food,omitempty"`
	LegacyText string  `json:"legacyText,omitempty"`
}

// MarshalJSON emits the caller-facing {drink, food, legacyText} shape with
// absent parts omitted.
func (p OrderPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadDoc{Drink: p.Drink, Food: p.Food, LegacyText: p.LegacyText})
}

// UnmarshalJSON accepts both the object shape and a bare legacy string.
func (p *OrderPayload) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = NormalizeOrderForDisplay(raw)
	return nil
}
