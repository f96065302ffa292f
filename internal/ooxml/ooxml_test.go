package ooxml_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/deckrebuild-backend/internal/ooxml"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml/ooxmltest"
)

func TestRelativeTargetRoundTrip(t *testing.T) {
	cases := []struct{ source, part, want string }{
		{"ppt/slides/slide1.xml", "ppt/slideLayouts/slideLayout2.xml", "../slideLayouts/slideLayout2.xml"},
		{"ppt/presentation.xml", "ppt/slides/slide3.xml", "slides/slide3.xml"},
		{"", "ppt/presentation.xml", "ppt/presentation.xml"},
		{"ppt/slides/slide1.xml", "ppt/media/image1.png", "../media/image1.png"},
	}
	for _, tc := range cases {
		got := ooxml.RelativeTarget(tc.source, tc.part)
		if got != tc.want {
			t.Fatalf("RelativeTarget(%q,%q): want=%q got=%q", tc.source, tc.part, tc.want, got)
		}
		if back := ooxml.ResolvePart(tc.source, got); back != tc.part {
			t.Fatalf("ResolvePart(%q,%q): want=%q got=%q", tc.source, got, tc.part, back)
		}
	}
}

func TestPresentationNavigation(t *testing.T) {
	b := ooxmltest.New()
	b.Masters = append(b.Masters, ooxmltest.Master{Layouts: []ooxmltest.Layout{
		{Name: "Blank"},
		{Name: "Section Header", Placeholders: []ooxmltest.Placeholder{{ShapeID: 2, Name: "Title 1", Type: "title", Idx: -1}}},
	}})
	b.AddSlide(0).Title(7, "One")
	b.AddSlide(2).Title(4, "Two")

	pres, err := ooxml.OpenPresentation(b.Bytes())
	if err != nil {
		t.Fatalf("OpenPresentation: %v", err)
	}
	slides, err := pres.SlideParts()
	if err != nil {
		t.Fatalf("SlideParts: %v", err)
	}
	if diff := cmp.Diff([]string{"ppt/slides/slide1.xml", "ppt/slides/slide2.xml"}, slides); diff != "" {
		t.Fatalf("slides (-want +got):\n%s", diff)
	}
	layouts, err := pres.Layouts()
	if err != nil {
		t.Fatalf("Layouts: %v", err)
	}
	var names []string
	for i, l := range layouts {
		if l.Index != i {
			t.Fatalf("layout %d: index=%d", i, l.Index)
		}
		names = append(names, l.Name)
	}
	if diff := cmp.Diff([]string{"Title and Content", "Blank", "Section Header"}, names); diff != "" {
		t.Fatalf("layout names (-want +got):\n%s", diff)
	}
	if layouts[2].MasterIndex != 1 {
		t.Fatalf("layout 2 master: want=1 got=%d", layouts[2].MasterIndex)
	}
}

func TestRemoveAndAppendSlides(t *testing.T) {
	b := ooxmltest.New()
	b.Template = true
	b.AddSlide(0).Title(2, "sample")
	pres, err := ooxml.OpenPresentation(b.Bytes())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := pres.RemoveAllSlides(); err != nil {
		t.Fatalf("RemoveAllSlides: %v", err)
	}
	if pres.Pkg.Has("ppt/slides/slide1.xml") {
		t.Fatalf("slide part should be deleted")
	}
	pres.AsPresentation()
	if got := pres.Pkg.ContentTypes().Lookup(pres.MainPart); got != ooxml.CTPresentation {
		t.Fatalf("main content type: %s", got)
	}

	name := pres.Pkg.UniqueName("ppt/slides", "slide", ".xml")
	if name != "ppt/slides/slide1.xml" {
		t.Fatalf("UniqueName: %s", name)
	}
	root := ooxml.NewSlideRoot()
	pres.Pkg.PutXML(name, ooxml.CTSlide, ooxml.NewXMLDocument(root))
	if err := pres.AppendSlide(name); err != nil {
		t.Fatalf("AppendSlide: %v", err)
	}
	out, err := pres.Pkg.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	again, err := ooxml.OpenPresentation(out)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	slides, err := again.SlideParts()
	if err != nil {
		t.Fatalf("SlideParts: %v", err)
	}
	if diff := cmp.Diff([]string{"ppt/slides/slide1.xml"}, slides); diff != "" {
		t.Fatalf("slides (-want +got):\n%s", diff)
	}
	if _, err := again.SpTree(slides[0]); err != nil {
		t.Fatalf("SpTree: %v", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := ooxml.OpenPresentation([]byte("not a zip")); err == nil {
		t.Fatalf("want error for non-zip input")
	}
}
