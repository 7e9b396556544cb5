package domain

import (
	"reflect"
	"testing"
)

func TestNormalizeOptions(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"strings", []string{" Small", "Small", "", "Large "}, []string{"Small", "Large"}},
		{"mixed any", []any{"Small", 3, nil, " Large", "small"}, []string{"Small", "Large", "small"}},
		{"scalar", "Small, Large", []string{}},
		{"nil", nil, []string{}},
	}
	for _, tc := range cases {
		if got := NormalizeOptions(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %#v want %#v", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeMenu(t *testing.T) {
	raw := map[string]any{
		"drinks": []any{
			map[string]any{"name": " Cappuccino ", "options": []any{"Small", "Small"}},
			map[string]any{"name": "", "options": []any{"Small"}},
			map[string]any{"name": "Acqua", "options": []any{}},
			"not an item",
		},
		"foods": "broken",
	}
	menu := NormalizeMenu(raw)
	want := Menu{Drinks: []MenuItem{{Name: "Cappuccino", Options: []string{"Small"}}}, Foods: []MenuItem{}}
	if !reflect.DeepEqual(menu, want) {
		t.Fatalf("got %+v want %+v", menu, want)
	}
	if again := NormalizeMenu(menu); !reflect.DeepEqual(again, menu) {
		t.Fatalf("normalizing twice changed the menu: %+v", again)
	}

	typed := NormalizeMenu(&Menu{Foods: []MenuItem{{Name: "Cornetto", Options: []string{" Crema "}}}})
	if len(typed.Foods) != 1 || typed.Foods[0].Options[0] != "Crema" || typed.Drinks == nil {
		t.Fatalf("unexpected typed normalization %+v", typed)
	}
	var nilMenu *Menu
	if m := NormalizeMenu(nilMenu); m.Drinks == nil || len(m.Drinks) != 0 {
		t.Fatalf("nil menu should normalize to empty sections")
	}
	if m := NormalizeMenu(42); len(m.Drinks)+len(m.Foods) != 0 {
		t.Fatalf("garbage should normalize to an empty menu")
	}
}

func TestResolveCategory(t *testing.T) {
	for raw, want := range map[string]Category{"drink": CategoryDrinks, " DRINKS ": CategoryDrinks, "Food": CategoryFoods, "foods": CategoryFoods} {
		if got, ok := ResolveCategory(raw); !ok || got != want {
			t.Fatalf("%q: got %q %v", raw, got, ok)
		}
	}
	if got, ok := ResolveCategory(CategoryFoods); !ok || got != CategoryFoods {
		t.Fatalf("typed category should resolve")
	}
	for _, raw := range []any{"snacks", "", 1, nil} {
		if _, ok := ResolveCategory(raw); ok {
			t.Fatalf("%v should not resolve", raw)
		}
	}
}

func TestExtractChoice(t *testing.T) {
	input := map[string]any{
		"drink": map[string]any{"item": " Cappuccino ", "variant": "Large "},
		"food":  "Cornetto",
	}
	if got := ExtractChoice(input, "drink"); got != (Choice{Item: "Cappuccino", Variant: "Large"}) {
		t.Fatalf("unexpected drink %+v", got)
	}
	if got := ExtractChoice(input, "food"); got != (Choice{}) {
		t.Fatalf("malformed food should be empty, got %+v", got)
	}
	if got := ExtractChoice(nil, "drink"); got != (Choice{}) {
		t.Fatalf("nil input should be empty")
	}
	payload := StructuredPayload(Choice{}, Choice{Item: "Cornetto", Variant: "Crema"})
	if got := ExtractChoice(payload, "food"); got.Item != "Cornetto" {
		t.Fatalf("payload food not extracted: %+v", got)
	}
	if got := ExtractChoice(payload, "drink"); got.Complete() {
		t.Fatalf("absent drink should be empty")
	}
}

func TestNormalizeOrderForDisplay(t *testing.T) {
	legacy := NormalizeOrderForDisplay("  cappuccino e cornetto ")
	if legacy.Kind != PayloadLegacy || legacy.LegacyText != "cappuccino e cornetto" || legacy.HasChoice() {
		t.Fatalf("unexpected legacy payload %+v", legacy)
	}

	structured := NormalizeOrderForDisplay(map[string]any{
		"drink":      map[string]any{"item": "Cappuccino", "variant": "Small"},
		"food":       map[string]any{"item": "Cornetto"},
		"legacyText": " old ",
	})
	if structured.Kind != PayloadStructured || structured.Drink == nil || structured.Food != nil || structured.LegacyText != "old" {
		t.Fatalf("unexpected structured payload %+v", structured)
	}

	textOnly := NormalizeOrderForDisplay(map[string]any{"legacyText": "tè"})
	if textOnly.Kind != PayloadLegacy {
		t.Fatalf("object with only legacy text should be legacy, got %+v", textOnly)
	}

	empty := NormalizeOrderForDisplay(12)
	if empty.Kind != PayloadStructured || !empty.IsZero() {
		t.Fatalf("unexpected fallback payload %+v", empty)
	}
}
