package mapping

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
)

func TestPlanByTypeProducesValidMapping(t *testing.T) {
	in := testInputs()
	in.Elements = append(in.Elements,
		rebuild.DeckElement{ElementID: "slide_1_shape_2", SlideIndex: 1, ElementType: rebuild.ElementShape},
		rebuild.DeckElement{ElementID: "slide_1_shape_3", SlideIndex: 1, ElementType: rebuild.ElementBody, TextPreview: "notes"},
	)
	in.Placeholders = append(in.Placeholders,
		rebuild.TemplatePlaceholder{PlaceholderID: "layout_1_ph_0", LayoutIndex: 1, LayoutName: "Title Only", PlaceholderType: rebuild.PlaceholderTitle},
	)

	plan := PlanByType(in.Elements, in.Placeholders)
	got, err := NewValidator(testPolicy(t)).Validate(encode(t, plan), in)
	if err != nil {
		t.Fatalf("planned mapping rejected: %v", err)
	}
	if len(got.SlideMappings) != 2 {
		t.Fatalf("want one output slide per source slide, got %d", len(got.SlideMappings))
	}
	if got.SlideMappings[1].LayoutIndex != 0 {
		t.Fatalf("slide 1 should land on the layout hosting its body, got %d", got.SlideMappings[1].LayoutIndex)
	}
	if diff := cmp.Diff([]string{"slide_1_shape_2"}, got.SkippedElements); diff != "" {
		t.Fatalf("skipped (-want +got):\n%s", diff)
	}
	first := got.SlideMappings[0].ElementMappings
	if *first[0].TargetPlaceholderID != "layout_0_ph_0" || *first[1].TargetPlaceholderID != "layout_0_ph_1" {
		t.Fatalf("unexpected targets: %+v", first)
	}
}

func TestPlanByTypeEmptyDeck(t *testing.T) {
	in := testInputs()
	plan := PlanByType(nil, in.Placeholders)
	if len(plan.SlideMappings) != 1 || len(plan.SlideMappings[0].ElementMappings) != 0 {
		t.Fatalf("want a single empty slide, got %+v", plan.SlideMappings)
	}
	if len(plan.Warnings) != 1 {
		t.Fatalf("want a warning, got %v", plan.Warnings)
	}
}

func TestParsePromptInventoryRoundTrip(t *testing.T) {
	in := testInputs()
	prompt, err := BuildPrompt(testPolicy(t), in.Elements, in.Placeholders)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	els, phs, err := ParsePromptInventory(prompt.User)
	if err != nil {
		t.Fatalf("ParsePromptInventory: %v", err)
	}
	if len(els) != 2 || els[0].ElementID != "slide_0_shape_7" || els[0].ElementType != rebuild.ElementTitle {
		t.Fatalf("elements: %+v", els)
	}
	if len([]rune(els[1].TextPreview)) > rebuild.MaxOraclePreview {
		t.Fatalf("preview longer than what was sent: %q", els[1].TextPreview)
	}
	if len(phs) != 2 || phs[1].PlaceholderType != rebuild.PlaceholderBody {
		t.Fatalf("placeholders: %+v", phs)
	}
}
