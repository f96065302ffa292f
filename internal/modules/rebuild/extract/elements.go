// Package extract turns presentation packages into addressable elements and
// placeholders with identities that are stable across re-parses.
package extract

import (
	"fmt"
	"strings"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml"
)

// ShapeRef locates one extracted element inside the parsed deck.
type ShapeRef struct {
	SlidePart string
	Shape     ooxml.Shape
	Element   rebuild.DeckElement
}

// DeckIndex is the element list of one extraction pass plus an id index over it.
type DeckIndex struct {
	Pres     *ooxml.Presentation
	Elements []rebuild.DeckElement
	byID     map[string]ShapeRef
}

func (d *DeckIndex) Lookup(elementID string) (ShapeRef, bool) {
	ref, ok := d.byID[elementID]
	return ref, ok
}

// Elements parses a source deck and returns its elements in slide then z order.
func Elements(data []byte) ([]rebuild.DeckElement, error) {
	idx, err := LoadDeck(data)
	if err != nil {
		return nil, err
	}
	return idx.Elements, nil
}

// LoadDeck opens and indexes a source deck.
func LoadDeck(data []byte) (*DeckIndex, error) {
	pres, err := ooxml.OpenPresentation(data)
	if err != nil {
		return nil, &rebuild.ParseError{Input: "deck", Err: err}
	}
	return IndexDeck(pres)
}

// IndexDeck walks every slide's top-level shape tree.
func IndexDeck(pres *ooxml.Presentation) (*DeckIndex, error) {
	slides, err := pres.SlideParts()
	if err != nil {
		return nil, &rebuild.ParseError{Input: "deck", Part: pres.MainPart, Err: err}
	}
	idx := &DeckIndex{Pres: pres, byID: map[string]ShapeRef{}}
	for si, part := range slides {
		tree, err := pres.SpTree(part)
		if err != nil {
			return nil, &rebuild.ParseError{Input: "deck", Part: part, Err: err}
		}
		seen := map[int]int{}
		for _, shape := range ooxml.Shapes(tree) {
			nativeID, ok := shape.ID()
			if !ok {
				return nil, &rebuild.ParseError{Input: "deck", Part: part, Err: fmt.Errorf("shape %q has no numeric id", shape.Name())}
			}
			seen[nativeID]++
			id := fmt.Sprintf("slide_%d_shape_%d", si, nativeID)
			if n := seen[nativeID]; n > 1 {
				id = fmt.Sprintf("%s_%d", id, n)
			}
			el := describe(shape)
			el.ElementID = id
			el.SlideIndex = si
			idx.Elements = append(idx.Elements, el)
			idx.byID[id] = ShapeRef{SlidePart: part, Shape: shape, Element: el}
		}
	}
	return idx, nil
}

func describe(shape ooxml.Shape) rebuild.DeckElement {
	el := rebuild.DeckElement{Name: shape.Name()}
	if r, ok := shape.Geometry(); ok {
		el.BBox = toPoints(r)
	}
	uri := shape.GraphicURI()
	el.HasTable = uri == ooxml.GraphicTable
	el.HasChart = uri == ooxml.GraphicChart
	el.HasImage = shape.Kind == ooxml.KindPic

	text := ""
	switch {
	case el.HasTable:
		text = ooxml.TableText(shape.El)
	case shape.TxBody() != nil:
		text = ooxml.Text(shape.TxBody())
	}
	el.TextPreview = rebuild.TruncateRunes(strings.TrimSpace(text), rebuild.MaxTextPreview)
	el.ElementType = classify(shape, el, strings.TrimSpace(text) != "")
	return el
}

// classify applies TABLE > CHART > IMAGE > placeholder TITLE/BODY > free-text BODY > SHAPE > OTHER.
func classify(shape ooxml.Shape, el rebuild.DeckElement, hasText bool) rebuild.ElementType {
	switch {
	case el.HasTable:
		return rebuild.ElementTable
	case el.HasChart:
		return rebuild.ElementChart
	case el.HasImage:
		return rebuild.ElementImage
	}
	if ph, ok := shape.Placeholder(); ok {
		switch ph.Type {
		case "title", "ctrTitle":
			return rebuild.ElementTitle
		case "body", "obj":
			return rebuild.ElementBody
		}
	}
	switch shape.Kind {
	case ooxml.KindSp:
		if shape.TxBody() != nil && hasText {
			return rebuild.ElementBody
		}
		return rebuild.ElementShape
	case ooxml.KindConnector:
		return rebuild.ElementShape
	}
	return rebuild.ElementOther
}

func toPoints(r ooxml.Rect) rebuild.BoundingBox {
	return rebuild.BoundingBox{
		X:      float64(r.X) / ooxml.EMUPerPoint,
		Y:      float64(r.Y) / ooxml.EMUPerPoint,
		Width:  float64(r.CX) / ooxml.EMUPerPoint,
		Height: float64(r.CY) / ooxml.EMUPerPoint,
	}
}
