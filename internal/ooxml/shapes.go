package ooxml

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// EMUPerPoint converts English Metric Units to points.
const EMUPerPoint = 12700

type ShapeKind int

const (
	KindUnknown ShapeKind = iota
	KindSp
	KindPic
	KindGraphicFrame
	KindGroup
	KindConnector
)

// Shape is a view over one top-level shape-tree element.
type Shape struct {
	El   *etree.Element
	Kind ShapeKind
}

// Placeholder is the p:ph marker of a placeholder shape.
type Placeholder struct {
	Type   string // native kind, "obj" when the attribute is absent
	Idx    int
	HasIdx bool
}

// Shapes returns the shape-tree children in document (z) order.
func Shapes(spTree *etree.Element) []Shape {
	var out []Shape
	for _, e := range spTree.ChildElements() {
		k := kindOf(e.Tag)
		if k == KindUnknown {
			continue
		}
		out = append(out, Shape{El: e, Kind: k})
	}
	return out
}

func kindOf(tag string) ShapeKind {
	switch tag {
	case "sp":
		return KindSp
	case "pic":
		return KindPic
	case "graphicFrame":
		return KindGraphicFrame
	case "grpSp":
		return KindGroup
	case "cxnSp":
		return KindConnector
	}
	return KindUnknown
}

// nvProps returns the p:nv*Pr element.
func (s Shape) nvProps() *etree.Element {
	for _, e := range s.El.ChildElements() {
		if strings.HasPrefix(e.Tag, "nv") {
			return e
		}
	}
	return nil
}

func (s Shape) cNvPr() *etree.Element {
	if nv := s.nvProps(); nv != nil {
		return nv.SelectElement("cNvPr")
	}
	return nil
}

// ID is the native shape identity assigned at authoring time.
func (s Shape) ID() (int, bool) {
	c := s.cNvPr()
	if c == nil {
		return 0, false
	}
	n, err := strconv.Atoi(c.SelectAttrValue("id", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s Shape) Name() string {
	if c := s.cNvPr(); c != nil {
		return c.SelectAttrValue("name", "")
	}
	return ""
}

// SetIdentity rewrites cNvPr id and name.
func (s Shape) SetIdentity(id int, name string) {
	if c := s.cNvPr(); c != nil {
		c.CreateAttr("id", strconv.Itoa(id))
		if name != "" {
			c.CreateAttr("name", name)
		}
	}
}

// Placeholder returns the shape's p:ph marker, if any.
func (s Shape) Placeholder() (Placeholder, bool) {
	nv := s.nvProps()
	if nv == nil {
		return Placeholder{}, false
	}
	nvPr := nv.SelectElement("nvPr")
	if nvPr == nil {
		return Placeholder{}, false
	}
	ph := nvPr.SelectElement("ph")
	if ph == nil {
		return Placeholder{}, false
	}
	out := Placeholder{Type: ph.SelectAttrValue("type", "obj")}
	if raw := ph.SelectAttrValue("idx", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			out.Idx = n
			out.HasIdx = true
		}
	}
	return out, true
}

// PlaceholderElement returns the raw p:ph element.
func (s Shape) PlaceholderElement() *etree.Element {
	if nv := s.nvProps(); nv != nil {
		if nvPr := nv.SelectElement("nvPr"); nvPr != nil {
			return nvPr.SelectElement("ph")
		}
	}
	return nil
}

// Xfrm returns the transform element holding a:off and a:ext.
func (s Shape) Xfrm() *etree.Element {
	switch s.Kind {
	case KindGraphicFrame:
		return s.El.SelectElement("xfrm")
	case KindGroup:
		if pr := s.El.SelectElement("grpSpPr"); pr != nil {
			return pr.SelectElement("xfrm")
		}
	default:
		if pr := s.El.SelectElement("spPr"); pr != nil {
			return pr.SelectElement("xfrm")
		}
	}
	return nil
}

// Rect is a shape rectangle in EMU.
type Rect struct {
	X, Y, CX, CY int64
}

// Geometry returns the shape's own rectangle. ok is false when the shape
// inherits its position (no xfrm).
func (s Shape) Geometry() (Rect, bool) {
	x := s.Xfrm()
	if x == nil {
		return Rect{}, false
	}
	var r Rect
	if off := x.SelectElement("off"); off != nil {
		r.X = attrInt64(off, "x")
		r.Y = attrInt64(off, "y")
	}
	if ext := x.SelectElement("ext"); ext != nil {
		r.CX = attrInt64(ext, "cx")
		r.CY = attrInt64(ext, "cy")
	}
	return r, true
}

func attrInt64(e *etree.Element, key string) int64 {
	n, _ := strconv.ParseInt(e.SelectAttrValue(key, "0"), 10, 64)
	return n
}

// GraphicURI returns a:graphicData@uri for graphic frames.
func (s Shape) GraphicURI() string {
	if s.Kind != KindGraphicFrame {
		return ""
	}
	if g := s.El.SelectElement("graphic"); g != nil {
		if gd := g.SelectElement("graphicData"); gd != nil {
			return gd.SelectAttrValue("uri", "")
		}
	}
	return ""
}

// TxBody returns p:txBody for sp shapes.
func (s Shape) TxBody() *etree.Element {
	if s.Kind != KindSp {
		return nil
	}
	return s.El.SelectElement("txBody")
}

// BlipEmbed returns the relationship id of a picture's image.
func (s Shape) BlipEmbed() string {
	if s.Kind != KindPic {
		return ""
	}
	fill := s.El.SelectElement("blipFill")
	if fill == nil {
		return ""
	}
	if blip := fill.SelectElement("blip"); blip != nil {
		return blip.SelectAttrValue("r:embed", "")
	}
	return ""
}

// Text returns paragraph text joined by newlines. Line breaks become newlines too.
func Text(txBody *etree.Element) string {
	if txBody == nil {
		return ""
	}
	var paras []string
	for _, p := range txBody.SelectElements("p") {
		var b strings.Builder
		for _, c := range p.ChildElements() {
			switch c.Tag {
			case "r", "fld":
				if t := c.SelectElement("t"); t != nil {
					b.WriteString(t.Text())
				}
			case "br":
				b.WriteString("\n")
			}
		}
		paras = append(paras, b.String())
	}
	return strings.Join(paras, "\n")
}

// TableText returns the cell text of a graphic-frame table, cells joined by tabs.
func TableText(frame *etree.Element) string {
	var rows []string
	for _, tbl := range frame.FindElements(".//tbl") {
		for _, tr := range tbl.SelectElements("tr") {
			var cells []string
			for _, tc := range tr.SelectElements("tc") {
				cells = append(cells, Text(tc.SelectElement("txBody")))
			}
			rows = append(rows, strings.Join(cells, "\t"))
		}
	}
	return strings.Join(rows, "\n")
}

// SetPlaceholder replaces the shape's p:ph marker with a copy of ph.
func (s Shape) SetPlaceholder(ph *etree.Element) {
	nv := s.nvProps()
	if nv == nil {
		return
	}
	nvPr := nv.SelectElement("nvPr")
	if nvPr == nil {
		nvPr = nv.CreateElement("p:nvPr")
	}
	if old := nvPr.SelectElement("ph"); old != nil {
		nvPr.RemoveChild(old)
	}
	nvPr.InsertChildAt(0, ph.Copy())
}

// SetGeometry writes an explicit transform, creating the property element if needed.
func (s Shape) SetGeometry(r Rect) {
	var xfrm *etree.Element
	switch s.Kind {
	case KindGraphicFrame:
		xfrm = s.El.SelectElement("xfrm")
		if xfrm == nil {
			xfrm = etree.NewElement("p:xfrm")
			s.El.InsertChildAt(childPos(s.El, s.nvProps())+1, xfrm)
		}
	case KindGroup:
		return
	default:
		pr := s.El.SelectElement("spPr")
		if pr == nil {
			pr = etree.NewElement("p:spPr")
			s.El.InsertChildAt(childPos(s.El, s.nvProps())+1, pr)
		}
		xfrm = pr.SelectElement("xfrm")
		if xfrm == nil {
			xfrm = etree.NewElement("a:xfrm")
			pr.InsertChildAt(0, xfrm)
		}
	}
	for _, c := range xfrm.ChildElements() {
		xfrm.RemoveChild(c)
	}
	off := xfrm.CreateElement("a:off")
	off.CreateAttr("x", strconv.FormatInt(r.X, 10))
	off.CreateAttr("y", strconv.FormatInt(r.Y, 10))
	ext := xfrm.CreateElement("a:ext")
	ext.CreateAttr("cx", strconv.FormatInt(r.CX, 10))
	ext.CreateAttr("cy", strconv.FormatInt(r.CY, 10))
}

// childPos is the token index of child within parent, or -1.
func childPos(parent, child *etree.Element) int {
	if child == nil {
		return -1
	}
	for i, t := range parent.Child {
		if t == child {
			return i
		}
	}
	return -1
}
