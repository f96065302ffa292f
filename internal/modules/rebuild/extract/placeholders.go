package extract

import (
	"fmt"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml"
)

// placeholderTypes maps native p:ph@type values to the wire enum.
var placeholderTypes = map[string]rebuild.PlaceholderType{
	"title":    rebuild.PlaceholderTitle,
	"ctrTitle": rebuild.PlaceholderTitle,
	"subTitle": rebuild.PlaceholderSubtitle,
	"body":     rebuild.PlaceholderBody,
	"obj":      rebuild.PlaceholderContent,
	"chart":    rebuild.PlaceholderChart,
	"tbl":      rebuild.PlaceholderTable,
	"pic":      rebuild.PlaceholderPicture,
	"ftr":      rebuild.PlaceholderFooter,
	"sldNum":   rebuild.PlaceholderSlideNumber,
	"dt":       rebuild.PlaceholderDate,
}

// PlaceholderType maps a native kind; unknown kinds are OTHER.
func PlaceholderType(native string) rebuild.PlaceholderType {
	if t, ok := placeholderTypes[native]; ok {
		return t
	}
	return rebuild.PlaceholderOther
}

// PlaceholderRef locates one template placeholder inside its layout.
type PlaceholderRef struct {
	Layout      ooxml.LayoutRef
	Shape       ooxml.Shape
	Native      ooxml.Placeholder
	Placeholder rebuild.TemplatePlaceholder
	// Rect is the resolved geometry in EMU, inherited from the master when the layout omits it.
	Rect ooxml.Rect
}

// TemplateIndex is the placeholder list of one extraction pass plus lookups.
type TemplateIndex struct {
	Pres         *ooxml.Presentation
	Layouts      []ooxml.LayoutRef
	Placeholders []rebuild.TemplatePlaceholder
	byID         map[string]PlaceholderRef
	byLayout     map[int][]PlaceholderRef
}

func (t *TemplateIndex) Lookup(placeholderID string) (PlaceholderRef, bool) {
	ref, ok := t.byID[placeholderID]
	return ref, ok
}

// LayoutPlaceholders returns a layout's placeholders in document order.
func (t *TemplateIndex) LayoutPlaceholders(layoutIndex int) []PlaceholderRef {
	return t.byLayout[layoutIndex]
}

// Placeholders parses a template and returns placeholders of every layout of every master.
func Placeholders(data []byte) ([]rebuild.TemplatePlaceholder, error) {
	idx, err := LoadTemplate(data)
	if err != nil {
		return nil, err
	}
	return idx.Placeholders, nil
}

func LoadTemplate(data []byte) (*TemplateIndex, error) {
	pres, err := ooxml.OpenPresentation(data)
	if err != nil {
		return nil, &rebuild.ParseError{Input: "template", Err: err}
	}
	return IndexTemplate(pres)
}

func IndexTemplate(pres *ooxml.Presentation) (*TemplateIndex, error) {
	layouts, err := pres.Layouts()
	if err != nil {
		return nil, &rebuild.ParseError{Input: "template", Part: pres.MainPart, Err: err}
	}
	idx := &TemplateIndex{
		Pres:     pres,
		Layouts:  layouts,
		byID:     map[string]PlaceholderRef{},
		byLayout: map[int][]PlaceholderRef{},
	}
	masterGeom := map[string]map[string]ooxml.Rect{}
	for _, layout := range layouts {
		if _, ok := masterGeom[layout.MasterPart]; !ok {
			g, err := masterGeometry(pres, layout.MasterPart)
			if err != nil {
				return nil, &rebuild.ParseError{Input: "template", Part: layout.MasterPart, Err: err}
			}
			masterGeom[layout.MasterPart] = g
		}
		tree, err := pres.SpTree(layout.Part)
		if err != nil {
			return nil, &rebuild.ParseError{Input: "template", Part: layout.Part, Err: err}
		}
		usedIdx := map[int]bool{}
		for _, shape := range ooxml.Shapes(tree) {
			ph, ok := shape.Placeholder()
			if !ok {
				continue
			}
			shapeID, hasShapeID := shape.ID()
			key, ok := placeholderKey(ph, shapeID, hasShapeID, usedIdx)
			if !ok {
				return nil, &rebuild.ParseError{Input: "template", Part: layout.Part,
					Err: fmt.Errorf("placeholder %q has no unique idx or shape id", shape.Name())}
			}
			rect, ok := shape.Geometry()
			if !ok {
				rect = masterGeom[layout.MasterPart][inheritKey(ph.Type)]
			}
			tp := rebuild.TemplatePlaceholder{
				PlaceholderID:   fmt.Sprintf("layout_%d_ph_%d", layout.Index, key),
				LayoutName:      layout.Name,
				LayoutIndex:     layout.Index,
				PlaceholderType: PlaceholderType(ph.Type),
				BBox:            toPoints(rect),
				Idx:             ph.Idx,
			}
			ref := PlaceholderRef{Layout: layout, Shape: shape, Native: ph, Placeholder: tp, Rect: rect}
			idx.Placeholders = append(idx.Placeholders, tp)
			idx.byID[tp.PlaceholderID] = ref
			idx.byLayout[layout.Index] = append(idx.byLayout[layout.Index], ref)
		}
	}
	return idx, nil
}

// placeholderKey is the native idx when declared; title placeholders carry an
// implicit idx 0. Anything else, or a repeated idx, falls back to the shape id.
func placeholderKey(ph ooxml.Placeholder, shapeID int, hasShapeID bool, used map[int]bool) (int, bool) {
	switch {
	case ph.HasIdx && !used[ph.Idx]:
		used[ph.Idx] = true
		return ph.Idx, true
	case !ph.HasIdx && (ph.Type == "title" || ph.Type == "ctrTitle") && !used[0]:
		used[0] = true
		return 0, true
	case hasShapeID && !used[shapeID]:
		used[shapeID] = true
		return shapeID, true
	}
	return 0, false
}

// inheritKey is the master placeholder a layout placeholder inherits geometry from.
func inheritKey(native string) string {
	switch native {
	case "title", "ctrTitle":
		return "title"
	case "dt", "ftr", "sldNum":
		return native
	}
	return "body"
}

func masterGeometry(pres *ooxml.Presentation, masterPart string) (map[string]ooxml.Rect, error) {
	tree, err := pres.SpTree(masterPart)
	if err != nil {
		return nil, err
	}
	out := map[string]ooxml.Rect{}
	for _, shape := range ooxml.Shapes(tree) {
		ph, ok := shape.Placeholder()
		if !ok {
			continue
		}
		if r, ok := shape.Geometry(); ok {
			if _, dup := out[inheritKey(ph.Type)]; !dup {
				out[inheritKey(ph.Type)] = r
			}
		}
	}
	return out, nil
}
