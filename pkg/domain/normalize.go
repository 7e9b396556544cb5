package domain

import (
	"fmt"
	"strings"
)

// NormalizeOptions trims and deduplicates option strings keeping the first
// occurrence. Empty and non-string options are dropped.
func NormalizeOptions(raw any) []string {
	var values []any
	switch v := raw.(type) {
	case []string:
		for _, s := range v {
			values = append(values, s)
		}
	case []any:
		values = v
	default:
		return []string{}
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		str, ok := value.(string)
		if !ok {
			continue
		}
		opt := strings.TrimSpace(str)
		if opt == "" {
			continue
		}
		if _, dup := seen[opt]; dup {
			continue
		}
		seen[opt] = struct{}{}
		out = append(out, opt)
	}
	return out
}

// NormalizeMenu coerces arbitrary input into a two-section menu. Items with an
// empty name or no usable option are dropped.
func NormalizeMenu(raw any) Menu {
	menu := Menu{Drinks: []MenuItem{}, Foods: []MenuItem{}}
	switch v := raw.(type) {
	case Menu:
		menu.Drinks = normalizeItems(v.Drinks)
		menu.Foods = normalizeItems(v.Foods)
	case *Menu:
		if v != nil {
			return NormalizeMenu(*v)
		}
	case map[string]any:
		menu.Drinks = normalizeItems(v[string(CategoryDrinks)])
		menu.Foods = normalizeItems(v[string(CategoryFoods)])
	}
	return menu
}

func normalizeItems(raw any) []MenuItem {
	out := []MenuItem{}
	switch v := raw.(type) {
	case []MenuItem:
		for _, item := range v {
			if normalized, ok := NormalizeMenuItem(item.Name, item.Options); ok {
				out = append(out, normalized)
			}
		}
	case []any:
		for _, entry := range v {
			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if normalized, ok := NormalizeMenuItem(scalarString(fields["name"]), fields["options"]); ok {
				out = append(out, normalized)
			}
		}
	}
	return out
}

// NormalizeMenuItem trims the name and normalizes options. It reports false
// when the item would be dropped from a menu.
func NormalizeMenuItem(name string, options any) (MenuItem, bool) {
	item := MenuItem{Name: strings.TrimSpace(name), Options: NormalizeOptions(options)}
	return item, item.Name != "" && len(item.Options) > 0
}

// ResolveCategory maps drink/drinks and food/foods, case-insensitively, to a
// menu category.
func ResolveCategory(raw any) (Category, bool) {
	s, ok := raw.(string)
	if !ok {
		if c, isCat := raw.(Category); isCat {
			s = string(c)
		} else {
			return "", false
		}
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drink", "drinks":
		return CategoryDrinks, true
	case "food", "foods":
		return CategoryFoods, true
	default:
		return "", false
	}
}

// ExtractChoice pulls a trimmed {item, variant} pair from input[key]. Missing
// or malformed input yields an empty pair.
func ExtractChoice(input any, key string) Choice {
	switch v := input.(type) {
	case map[string]any:
		return choiceFrom(v[key])
	case OrderPayload:
		switch key {
		case "drink":
			if v.Drink != nil {
				return trimChoice(*v.Drink)
			}
		case "food":
			if v.Food != nil {
				return trimChoice(*v.Food)
			}
		}
	}
	return Choice{}
}

func choiceFrom(raw any) Choice {
	switch v := raw.(type) {
	case map[string]any:
		return trimChoice(Choice{Item: scalarString(v["item"]), Variant: scalarString(v["variant"])})
	case Choice:
		return trimChoice(v)
	case *Choice:
		if v != nil {
			return trimChoice(*v)
		}
	}
	return Choice{}
}

func trimChoice(c Choice) Choice {
	return Choice{Item: strings.TrimSpace(c.Item), Variant: strings.TrimSpace(c.Variant)}
}

// NormalizeOrderForDisplay converts a stored or submitted order into its
// tagged payload. A bare string is legacy text; an object contributes its
// drink, food and legacyText fields.
func NormalizeOrderForDisplay(raw any) OrderPayload {
	switch v := raw.(type) {
	case string:
		return LegacyPayload(v)
	case OrderPayload:
		p := StructuredPayload(ExtractChoice(v, "drink"), ExtractChoice(v, "food"))
		p.LegacyText = strings.TrimSpace(v.LegacyText)
		return settleKind(p)
	case map[string]any:
		p := StructuredPayload(ExtractChoice(v, "drink"), ExtractChoice(v, "food"))
		p.LegacyText = strings.TrimSpace(scalarString(v["legacyText"]))
		return settleKind(p)
	default:
		return OrderPayload{Kind: PayloadStructured}
	}
}

func settleKind(p OrderPayload) OrderPayload {
	if !p.HasChoice() && p.LegacyText != "" {
		p.Kind = PayloadLegacy
	}
	return p
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64, int, int64, bool:
		return fmt.Sprint(s)
	default:
		return ""
	}
}
