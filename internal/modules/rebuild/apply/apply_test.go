package apply

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml/ooxmltest"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

var pictureRect = ooxmltest.Rect{X: 1270000, Y: 2540000, CX: 3810000, CY: 2540000}

// template has layout 0 "Title and Content" and layout 1 "Picture" plus one sample slide.
func template() []byte {
	b := ooxmltest.New()
	b.Template = true
	b.Masters[0].Layouts = append(b.Masters[0].Layouts, ooxmltest.Layout{Name: "Picture", Placeholders: []ooxmltest.Placeholder{
		{ShapeID: 2, Name: "Title 1", Type: "title", Idx: -1},
		{ShapeID: 3, Name: "Picture Placeholder 2", Type: "pic", Idx: 1, Rect: &pictureRect},
	}})
	b.AddSlide(0).Title(2, "Template sample slide")
	return b.Bytes()
}

func sourceDeck() []byte {
	b := ooxmltest.New()
	b.AddSlide(0).Title(2, "Hello").Body(3, "World")
	return b.Bytes()
}

func apply(t *testing.T, deck, tpl []byte, m rebuild.MappingResult) *Output {
	t.Helper()
	out, err := New(logger.Nop()).Apply(context.Background(), deck, tpl, &m)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return out
}

func slide(layout int, mappings ...rebuild.ElementMapping) rebuild.SlideMapping {
	return rebuild.SlideMapping{LayoutIndex: layout, ElementMappings: mappings}
}

func TestApplyTitleAndBody(t *testing.T) {
	out := apply(t, sourceDeck(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(0,
			rebuild.Map("slide_0_shape_2", "layout_0_ph_0", "title"),
			rebuild.Map("slide_0_shape_3", "layout_0_ph_1", "body")),
	}})
	want := rebuild.ApplyStats{SlidesCreated: 1, ElementsMapped: 2, ElementsSkipped: 0, Warnings: []string{}}
	if diff := cmp.Diff(want, out.Stats); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}

	els, err := extract.Elements(out.Data)
	if err != nil {
		t.Fatalf("re-extract output: %v", err)
	}
	got := map[rebuild.ElementType]string{}
	for _, e := range els {
		if e.SlideIndex != 0 {
			t.Fatalf("unexpected slide %d in output", e.SlideIndex)
		}
		got[e.ElementType] = e.TextPreview
	}
	if got[rebuild.ElementTitle] != "Hello" || got[rebuild.ElementBody] != "World" {
		t.Fatalf("text not carried verbatim: %v", got)
	}

	pres, err := ooxml.OpenPresentation(out.Data)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if ct := pres.Pkg.ContentTypes().Lookup(pres.MainPart); ct != ooxml.CTPresentation {
		t.Fatalf("main part content type %q", ct)
	}
	slides, _ := pres.SlideParts()
	if len(slides) != 1 {
		t.Fatalf("template slides not removed: %v", slides)
	}
}

func TestApplyDropsSectionsAndCustomShows(t *testing.T) {
	b := ooxmltest.New()
	b.Template = true
	for i := 0; i < 3; i++ {
		b.AddSlide(0).Title(2, "Sample")
	}
	// Slide relationships are rId2..rId4 after the master at rId1.
	b.PresentationTail = `<p:custShowLst><p:custShow name="Short" id="0"><p:sldLst><p:sld r:id="rId3"/><p:sld r:id="rId4"/></p:sldLst></p:custShow></p:custShowLst>` +
		`<p:extLst><p:ext uri="{521415D9-36F7-43E2-AB2F-B90AF26B5E84}">` +
		`<p14:sectionLst xmlns:p14="http://schemas.microsoft.com/office/powerpoint/2010/main">` +
		`<p14:section name="Intro" id="{3A4C3F9E-1B7D-4B5E-9C11-2F7F0B6D1A01}"><p14:sldIdLst><p14:sldId id="256"/></p14:sldIdLst></p14:section>` +
		`<p14:section name="Samples" id="{3A4C3F9E-1B7D-4B5E-9C11-2F7F0B6D1A02}"><p14:sldIdLst><p14:sldId id="257"/><p14:sldId id="258"/></p14:sldIdLst></p14:section>` +
		`</p14:sectionLst></p:ext>` +
		`<p:ext uri="{EFAFB233-063F-42B5-8137-9DF3F51BA10A}"><p15:sldGuideLst xmlns:p15="http://schemas.microsoft.com/office/powerpoint/2012/main"/></p:ext>` +
		`</p:extLst>`

	out := apply(t, sourceDeck(), b.Bytes(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(0, rebuild.Map("slide_0_shape_2", "layout_0_ph_0", "title")),
	}})

	pres, err := ooxml.OpenPresentation(out.Data)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	slides, _ := pres.SlideParts()
	if len(slides) != 1 {
		t.Fatalf("slides = %v, want 1", slides)
	}
	raw, ok := pres.Pkg.Bytes(pres.MainPart)
	if !ok {
		t.Fatalf("main part missing")
	}
	xml := string(raw)
	for _, gone := range []string{"custShowLst", "sectionLst", "p14:sldId"} {
		if strings.Contains(xml, gone) {
			t.Fatalf("presentation still carries %s:\n%s", gone, xml)
		}
	}
	if !strings.Contains(xml, "sldGuideLst") {
		t.Fatalf("unrelated extension dropped:\n%s", xml)
	}
}

func TestApplyAllSkipped(t *testing.T) {
	out := apply(t, sourceDeck(), template(), rebuild.MappingResult{
		SlideMappings: []rebuild.SlideMapping{slide(0,
			rebuild.Skip("slide_0_shape_2", "no"),
			rebuild.Skip("slide_0_shape_3", "no"))},
		SkippedElements: []string{"slide_0_shape_2", "slide_0_shape_3"},
	})
	if out.Stats.SlidesCreated != 1 || out.Stats.ElementsMapped != 0 || out.Stats.ElementsSkipped != 2 {
		t.Fatalf("stats: %+v", out.Stats)
	}
}

func TestApplyUnresolvableMappingsBecomeWarnings(t *testing.T) {
	out := apply(t, sourceDeck(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(0,
			rebuild.Map("slide_0_shape_99", "layout_0_ph_1", "gone"),
			rebuild.Map("slide_0_shape_2", "layout_9_ph_0", "gone"),
			rebuild.Map("slide_0_shape_3", "layout_1_ph_1", "wrong layout"),
			rebuild.Map("slide_0_shape_2", "layout_0_ph_0", "title")),
	}})
	if out.Stats.ElementsMapped != 1 || out.Stats.ElementsSkipped != 3 {
		t.Fatalf("stats: %+v", out.Stats)
	}
	if len(out.Stats.Warnings) != 3 {
		t.Fatalf("want 3 warnings, got %v", out.Stats.Warnings)
	}
	for _, want := range []string{"slide_0_shape_99", "layout_9_ph_0", "layout 1"} {
		if !strings.Contains(strings.Join(out.Stats.Warnings, "\n"), want) {
			t.Fatalf("warnings do not mention %s: %v", want, out.Stats.Warnings)
		}
	}
}

func TestApplyPlaceholderFilledOnce(t *testing.T) {
	out := apply(t, sourceDeck(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(0,
			rebuild.Map("slide_0_shape_2", "layout_0_ph_1", "first"),
			rebuild.Map("slide_0_shape_3", "layout_0_ph_1", "second")),
	}})
	if out.Stats.ElementsMapped != 1 || out.Stats.ElementsSkipped != 1 {
		t.Fatalf("stats: %+v", out.Stats)
	}
}

func TestApplyTemplateWithoutLayoutsIsFatal(t *testing.T) {
	b := ooxmltest.New()
	b.Masters[0].Layouts = nil
	m := rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{slide(0)}}
	_, err := New(logger.Nop()).Apply(context.Background(), sourceDeck(), b.Bytes(), &m)
	var ae *rebuild.ApplyError
	if !errors.As(err, &ae) || !ae.Fatal {
		t.Fatalf("want fatal ApplyError, got %v", err)
	}
}

func TestApplyClampsLayoutIndex(t *testing.T) {
	out := apply(t, sourceDeck(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(7, rebuild.Map("slide_0_shape_2", "layout_1_ph_0", "title")),
	}})
	if out.Stats.SlidesCreated != 1 || out.Stats.ElementsMapped != 1 {
		t.Fatalf("stats: %+v", out.Stats)
	}
	if len(out.Stats.Warnings) != 1 || !strings.Contains(out.Stats.Warnings[0], "layout_index 7") {
		t.Fatalf("want clamp warning, got %v", out.Stats.Warnings)
	}
}

func TestApplyCopiesPicture(t *testing.T) {
	b := ooxmltest.New()
	b.AddSlide(0).Picture(4, "Picture 3", ooxmltest.Rect{CX: 100, CY: 100}, ooxmltest.PNG)
	out := apply(t, b.Bytes(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(1, rebuild.Map("slide_0_shape_4", "layout_1_ph_1", "picture")),
	}})
	if out.Stats.ElementsMapped != 1 {
		t.Fatalf("stats: %+v", out.Stats)
	}
	pkg, err := ooxml.Open(out.Data)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	media, ok := pkg.Bytes("ppt/media/image1.png")
	if !ok || !bytes.Equal(media, ooxmltest.PNG) {
		t.Fatalf("image bytes not copied")
	}
	els, err := extract.Elements(out.Data)
	if err != nil {
		t.Fatalf("re-extract: %v", err)
	}
	var pic *rebuild.DeckElement
	for i := range els {
		if els[i].ElementType == rebuild.ElementImage {
			pic = &els[i]
		}
	}
	if pic == nil {
		t.Fatalf("no picture in output: %+v", els)
	}
	if pic.BBox.X != 100 || pic.BBox.Width != 300 {
		t.Fatalf("picture not placed at placeholder: %+v", pic.BBox)
	}
}

func TestApplyCopiesTable(t *testing.T) {
	b := ooxmltest.New()
	b.AddSlide(0).Table(5, "Table 4", ooxmltest.Rect{CX: 100, CY: 100}, [][]string{{"a", "b"}, {"c", "d"}})
	out := apply(t, b.Bytes(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(0, rebuild.Map("slide_0_shape_5", "layout_0_ph_1", "table")),
	}})
	if out.Stats.ElementsMapped != 1 {
		t.Fatalf("stats: %+v", out.Stats)
	}
	els, err := extract.Elements(out.Data)
	if err != nil {
		t.Fatalf("re-extract: %v", err)
	}
	found := false
	for _, e := range els {
		if e.ElementType == rebuild.ElementTable {
			found = true
			if e.TextPreview != "a\tb\nc\td" {
				t.Fatalf("table text changed: %q", e.TextPreview)
			}
			if e.BBox.X != 66 {
				t.Fatalf("table not placed at inherited body geometry: %+v", e.BBox)
			}
		}
	}
	if !found {
		t.Fatalf("no table in output")
	}
}

func TestApplyKeepsRunFormatting(t *testing.T) {
	b := ooxmltest.New()
	b.AddSlide(0).PlaceholderText(3, "Content 2", "body", 1, []ooxmltest.Para{
		{Runs: []ooxmltest.Run{{Text: "Bold", Bold: true, Size: 2400, Font: "Arial"}, {Text: " plain"}}},
		{Level: 1, Runs: []ooxmltest.Run{{Text: "nested"}}},
	})
	out := apply(t, b.Bytes(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(0, rebuild.Map("slide_0_shape_3", "layout_0_ph_1", "body")),
	}})
	pkg, err := ooxml.Open(out.Data)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	raw, ok := pkg.Bytes("ppt/slides/slide1.xml")
	if !ok {
		t.Fatalf("output slide missing; parts: %v", pkg.Parts())
	}
	xml := string(raw)
	for _, want := range []string{`sz="2400"`, `b="1"`, `typeface="Arial"`, `lvl="1"`, `>Bold<`, `> plain<`, `>nested<`} {
		if !strings.Contains(xml, want) {
			t.Fatalf("output slide missing %s:\n%s", want, xml)
		}
	}
}

func TestApplyIgnoresChartsWithWarning(t *testing.T) {
	b := ooxmltest.New()
	b.AddSlide(0).Chart(5, "Chart 4", ooxmltest.Rect{})
	out := apply(t, b.Bytes(), template(), rebuild.MappingResult{SlideMappings: []rebuild.SlideMapping{
		slide(0, rebuild.Map("slide_0_shape_5", "layout_0_ph_1", "chart")),
	}})
	if out.Stats.ElementsMapped != 0 || out.Stats.ElementsSkipped != 1 || len(out.Stats.Warnings) != 1 {
		t.Fatalf("stats: %+v", out.Stats)
	}
}
