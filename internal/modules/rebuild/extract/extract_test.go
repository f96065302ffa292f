package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml/ooxmltest"
)

func sampleDeck() []byte {
	b := ooxmltest.New()
	b.AddSlide(0).
		Title(7, "Quarterly results").
		Body(9, "Revenue up", "Costs down")
	b.AddSlide(0).
		Table(4, "Table 3", ooxmltest.Rect{X: 12700, Y: 25400, CX: 127000, CY: 254000}, [][]string{{"a", "b"}, {"c", "d"}}).
		Chart(5, "Chart 4", ooxmltest.Rect{}).
		Picture(6, "Picture 5", ooxmltest.Rect{}, ooxmltest.PNG).
		TextBox(8, "TextBox 7", ooxmltest.Rect{}, ooxmltest.Plain("free text")).
		Shape(10, "Rectangle 9", ooxmltest.Rect{}).
		Connector(11, "Connector 10", ooxmltest.Rect{}).
		Group(12, "Group 11", ooxmltest.TextBoxXML(13, "Inner", "nested"))
	return b.Bytes()
}

func elementIDs(els []rebuild.DeckElement) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		out = append(out, e.ElementID)
	}
	return out
}

func TestElementsDeterministicIdentity(t *testing.T) {
	data := sampleDeck()
	first, err := Elements(data)
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	second, err := Elements(data)
	if err != nil {
		t.Fatalf("Elements (second pass): %v", err)
	}
	if diff := cmp.Diff(elementIDs(first), elementIDs(second)); diff != "" {
		t.Fatalf("ids differ between passes (-first +second):\n%s", diff)
	}
	want := []string{
		"slide_0_shape_7", "slide_0_shape_9",
		"slide_1_shape_4", "slide_1_shape_5", "slide_1_shape_6", "slide_1_shape_8",
		"slide_1_shape_10", "slide_1_shape_11", "slide_1_shape_12",
	}
	if diff := cmp.Diff(want, elementIDs(first)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
}

func TestElementsClassification(t *testing.T) {
	els, err := Elements(sampleDeck())
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	got := map[string]rebuild.ElementType{}
	for _, e := range els {
		got[e.ElementID] = e.ElementType
	}
	want := map[string]rebuild.ElementType{
		"slide_0_shape_7":  rebuild.ElementTitle,
		"slide_0_shape_9":  rebuild.ElementBody,
		"slide_1_shape_4":  rebuild.ElementTable,
		"slide_1_shape_5":  rebuild.ElementChart,
		"slide_1_shape_6":  rebuild.ElementImage,
		"slide_1_shape_8":  rebuild.ElementBody,
		"slide_1_shape_10": rebuild.ElementShape,
		"slide_1_shape_11": rebuild.ElementShape,
		"slide_1_shape_12": rebuild.ElementOther,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("types (-want +got):\n%s", diff)
	}
	if els[1].TextPreview != "Revenue up\nCosts down" {
		t.Fatalf("body preview: %q", els[1].TextPreview)
	}
	table := els[2]
	if !table.HasTable || table.HasChart || table.HasImage {
		t.Fatalf("table flags: %+v", table)
	}
	if table.BBox != (rebuild.BoundingBox{X: 1, Y: 2, Width: 10, Height: 20}) {
		t.Fatalf("table bbox in points: %+v", table.BBox)
	}
	if !els[4].HasImage {
		t.Fatalf("picture should set has_image")
	}
}

func TestElementsPreviewBounded(t *testing.T) {
	b := ooxmltest.New()
	b.AddSlide(0).TextBox(2, "Long", ooxmltest.Rect{}, ooxmltest.Plain(strings.Repeat("x", 500)))
	els, err := Elements(b.Bytes())
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if n := len([]rune(els[0].TextPreview)); n != rebuild.MaxTextPreview {
		t.Fatalf("preview length: want=%d got=%d", rebuild.MaxTextPreview, n)
	}
}

func TestElementsDuplicateNativeIDs(t *testing.T) {
	b := ooxmltest.New()
	b.AddSlide(0).
		TextBox(3, "A", ooxmltest.Rect{}, ooxmltest.Plain("a")).
		TextBox(3, "B", ooxmltest.Rect{}, ooxmltest.Plain("b"))
	els, err := Elements(b.Bytes())
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if diff := cmp.Diff([]string{"slide_0_shape_3", "slide_0_shape_3_2"}, elementIDs(els)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
}

func TestElementsParseError(t *testing.T) {
	_, err := Elements([]byte("PK not really"))
	var pe *rebuild.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if pe.Input != "deck" {
		t.Fatalf("input: %q", pe.Input)
	}
}

func TestPlaceholdersTitleAndBody(t *testing.T) {
	phs, err := Placeholders(ooxmltest.New().Bytes())
	if err != nil {
		t.Fatalf("Placeholders: %v", err)
	}
	var ids []string
	types := map[string]rebuild.PlaceholderType{}
	for _, p := range phs {
		ids = append(ids, p.PlaceholderID)
		types[p.PlaceholderID] = p.PlaceholderType
		if p.LayoutName != "Title and Content" || p.LayoutIndex != 0 {
			t.Fatalf("layout: %+v", p)
		}
	}
	want := []string{"layout_0_ph_0", "layout_0_ph_1", "layout_0_ph_10", "layout_0_ph_11", "layout_0_ph_12"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	wantTypes := map[string]rebuild.PlaceholderType{
		"layout_0_ph_0":  rebuild.PlaceholderTitle,
		"layout_0_ph_1":  rebuild.PlaceholderBody,
		"layout_0_ph_10": rebuild.PlaceholderDate,
		"layout_0_ph_11": rebuild.PlaceholderFooter,
		"layout_0_ph_12": rebuild.PlaceholderSlideNumber,
	}
	if diff := cmp.Diff(wantTypes, types); diff != "" {
		t.Fatalf("types (-want +got):\n%s", diff)
	}
	// layout placeholders carry no xfrm; geometry comes from the master.
	if phs[0].BBox.X != 838200.0/12700 {
		t.Fatalf("inherited title bbox: %+v", phs[0].BBox)
	}
}

func TestPlaceholdersEveryMasterAndFallbackIdentity(t *testing.T) {
	b := ooxmltest.New()
	b.Masters = append(b.Masters, ooxmltest.Master{Layouts: []ooxmltest.Layout{{
		Name: "Picture with Caption",
		Placeholders: []ooxmltest.Placeholder{
			{ShapeID: 2, Name: "Title 1", Type: "title", Idx: -1},
			{ShapeID: 3, Name: "Picture 2", Type: "pic", Idx: 1},
			{ShapeID: 4, Name: "Content 3", Idx: -1},
			{ShapeID: 5, Name: "Clip 4", Type: "clipArt", Idx: 1},
		},
	}}})
	phs, err := Placeholders(b.Bytes())
	if err != nil {
		t.Fatalf("Placeholders: %v", err)
	}
	got := map[string]rebuild.PlaceholderType{}
	for _, p := range phs {
		if p.LayoutIndex == 1 {
			got[p.PlaceholderID] = p.PlaceholderType
		}
	}
	want := map[string]rebuild.PlaceholderType{
		"layout_1_ph_0": rebuild.PlaceholderTitle,
		"layout_1_ph_1": rebuild.PlaceholderPicture,
		"layout_1_ph_4": rebuild.PlaceholderContent,
		"layout_1_ph_5": rebuild.PlaceholderOther,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("second master placeholders (-want +got):\n%s", diff)
	}
}

func TestPlaceholderTypeUnknown(t *testing.T) {
	if got := PlaceholderType("media"); got != rebuild.PlaceholderOther {
		t.Fatalf("want OTHER got %s", got)
	}
}
