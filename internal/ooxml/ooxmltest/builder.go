// Package ooxmltest assembles small but structurally valid presentation
// packages for tests.
package ooxmltest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"
)

const nsDecl = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`

const (
	relNS     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

// PNG is a 1x1 transparent image.
var PNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// Run is one text run with optional formatting.
type Run struct {
	Text string
	Font string
	Size int // hundredths of a point, 0 = inherit
	Bold bool
}

// Para is one paragraph.
type Para struct {
	Level int
	Runs  []Run
}

// Plain builds single-run paragraphs from strings.
func Plain(lines ...string) []Para {
	out := make([]Para, 0, len(lines))
	for _, l := range lines {
		out = append(out, Para{Runs: []Run{{Text: l}}})
	}
	return out
}

// Rect is a position in EMU.
type Rect struct{ X, Y, CX, CY int64 }

// Placeholder describes a layout placeholder. Idx < 0 omits the idx attribute.
type Placeholder struct {
	ShapeID int
	Name    string
	Type    string // empty omits the type attribute (obj)
	Idx     int
	Rect    *Rect
}

type Layout struct {
	Name         string
	Placeholders []Placeholder
}

type Master struct {
	Placeholders []Placeholder
	Layouts      []Layout
}

// Slide collects shape XML for one slide.
type Slide struct {
	Layout int // global layout index
	shapes []string
	images map[string][]byte
}

// Builder assembles a package. The zero value is not usable; call New.
type Builder struct {
	Masters  []Master
	Slides   []*Slide
	Template bool
	Extra    map[string]string
	// PresentationTail is raw XML written after p:notesSz in presentation.xml.
	PresentationTail string
}

// New returns a builder with one master carrying a "Title and Content" layout
// (title idx absent, body idx 1).
func New() *Builder {
	return &Builder{Masters: []Master{{
		Placeholders: []Placeholder{
			{ShapeID: 2, Name: "Title Placeholder 1", Type: "title", Idx: -1, Rect: &Rect{838200, 365125, 10515600, 1325563}},
			{ShapeID: 3, Name: "Text Placeholder 2", Type: "body", Idx: 1, Rect: &Rect{838200, 1825625, 10515600, 4351338}},
		},
		Layouts: []Layout{TitleAndContent()},
	}}}
}

// TitleAndContent is a layout with a title (no idx) and a body placeholder at idx 1.
func TitleAndContent() Layout {
	return Layout{Name: "Title and Content", Placeholders: []Placeholder{
		{ShapeID: 2, Name: "Title 1", Type: "title", Idx: -1},
		{ShapeID: 3, Name: "Content Placeholder 2", Type: "body", Idx: 1},
		{ShapeID: 4, Name: "Date Placeholder 3", Type: "dt", Idx: 10},
		{ShapeID: 5, Name: "Footer Placeholder 4", Type: "ftr", Idx: 11},
		{ShapeID: 6, Name: "Slide Number Placeholder 5", Type: "sldNum", Idx: 12},
	}}
}

// AddSlide appends a slide using the given global layout index.
func (b *Builder) AddSlide(layout int) *Slide {
	s := &Slide{Layout: layout, images: map[string][]byte{}}
	b.Slides = append(b.Slides, s)
	return s
}

func (s *Slide) Title(id int, text string) *Slide {
	return s.PlaceholderText(id, fmt.Sprintf("Title %d", id), "title", -1, Plain(text))
}

func (s *Slide) Body(id int, lines ...string) *Slide {
	return s.PlaceholderText(id, fmt.Sprintf("Content Placeholder %d", id), "body", 1, Plain(lines...))
}

// PlaceholderText adds a placeholder sp with text.
func (s *Slide) PlaceholderText(id int, name, phType string, idx int, paras []Para) *Slide {
	s.shapes = append(s.shapes, spXML(id, name, phXML(phType, idx), nil, paras))
	return s
}

// TextBox adds a free text box.
func (s *Slide) TextBox(id int, name string, r Rect, paras []Para) *Slide {
	s.shapes = append(s.shapes, spXML(id, name, "", &r, paras))
	return s
}

// Shape adds an autoshape without text.
func (s *Slide) Shape(id int, name string, r Rect) *Slide {
	s.shapes = append(s.shapes, spXML(id, name, "", &r, nil))
	return s
}

// Picture adds a picture backed by a media part.
func (s *Slide) Picture(id int, name string, r Rect, png []byte) *Slide {
	rid := fmt.Sprintf("rId%d", len(s.images)+2)
	s.images[rid] = png
	s.shapes = append(s.shapes, fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="%s"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>`+
		`<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`+
		`<p:spPr>%s<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`, id, esc(name), rid, xfrmXML(&r)))
	return s
}

// Table adds a graphic-frame table.
func (s *Slide) Table(id int, name string, r Rect, rows [][]string) *Slide {
	var b strings.Builder
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	b.WriteString(`<a:tbl><a:tblPr firstRow="1"/><a:tblGrid>`)
	for i := 0; i < cols; i++ {
		b.WriteString(`<a:gridCol w="1000000"/>`)
	}
	b.WriteString(`</a:tblGrid>`)
	for _, row := range rows {
		b.WriteString(`<a:tr h="370840">`)
		for _, cell := range row {
			fmt.Fprintf(&b, `<a:tc><a:txBody><a:bodyPr/><a:lstStyle/><a:p><a:r><a:t>%s</a:t></a:r></a:p></a:txBody><a:tcPr/></a:tc>`, esc(cell))
		}
		b.WriteString(`</a:tr>`)
	}
	b.WriteString(`</a:tbl>`)
	s.shapes = append(s.shapes, graphicFrameXML(id, name, r, "http://schemas.openxmlformats.org/drawingml/2006/table", b.String()))
	return s
}

// Chart adds a graphic-frame chart reference. The chart part itself is not emitted.
func (s *Slide) Chart(id int, name string, r Rect) *Slide {
	s.shapes = append(s.shapes, graphicFrameXML(id, name, r, "http://schemas.openxmlformats.org/drawingml/2006/chart",
		`<c:chart xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart" r:id="rId99"/>`))
	return s
}

// Group adds a group shape holding one text box.
func (s *Slide) Group(id int, name string, child string) *Slide {
	s.shapes = append(s.shapes, fmt.Sprintf(`<p:grpSp><p:nvGrpSpPr><p:cNvPr id="%d" name="%s"/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>`+
		`<p:grpSpPr/>%s</p:grpSp>`, id, esc(name), child))
	return s
}

// Connector adds a straight connector.
func (s *Slide) Connector(id int, name string, r Rect) *Slide {
	s.shapes = append(s.shapes, fmt.Sprintf(`<p:cxnSp><p:nvCxnSpPr><p:cNvPr id="%d" name="%s"/><p:cNvCxnSpPr/><p:nvPr/></p:nvCxnSpPr>`+
		`<p:spPr>%s<a:prstGeom prst="line"><a:avLst/></a:prstGeom></p:spPr></p:cxnSp>`, id, esc(name), xfrmXML(&r)))
	return s
}

// Bytes serializes the package.
func (b *Builder) Bytes() []byte {
	files := map[string]string{}
	var order []string
	put := func(name, body string) {
		if _, ok := files[name]; !ok {
			order = append(order, name)
		}
		files[name] = body
	}
	binary := map[string][]byte{}

	mainCT := "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	if b.Template {
		mainCT = "application/vnd.openxmlformats-officedocument.presentationml.template.main+xml"
	}
	var ct strings.Builder
	ct.WriteString(xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Default Extension="png" ContentType="image/png"/>`)
	fmt.Fprintf(&ct, `<Override PartName="/ppt/presentation.xml" ContentType="%s"/>`, mainCT)
	ct.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)

	put("[Content_Types].xml", "")
	put("_rels/.rels", xmlHeader+`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
		`<Relationship Id="rId1" Type="`+relNS+`/officeDocument" Target="ppt/presentation.xml"/></Relationships>`)

	var presRels, masterIDs, slideIDs strings.Builder
	presRels.WriteString(xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	rid := 1
	layoutParts := []string{}
	layoutNo := 1
	for mi, m := range b.Masters {
		masterPart := fmt.Sprintf("ppt/slideMasters/slideMaster%d.xml", mi+1)
		fmt.Fprintf(&presRels, `<Relationship Id="rId%d" Type="%s/slideMaster" Target="slideMasters/slideMaster%d.xml"/>`, rid, relNS, mi+1)
		fmt.Fprintf(&masterIDs, `<p:sldMasterId id="%d" r:id="rId%d"/>`, 2147483648+mi*100, rid)
		rid++
		fmt.Fprintf(&ct, `<Override PartName="/%s" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`, masterPart)

		var mrels, layoutIDs strings.Builder
		mrels.WriteString(xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
		for li, l := range m.Layouts {
			lpart := fmt.Sprintf("ppt/slideLayouts/slideLayout%d.xml", layoutNo)
			layoutParts = append(layoutParts, lpart)
			fmt.Fprintf(&mrels, `<Relationship Id="rId%d" Type="%s/slideLayout" Target="../slideLayouts/slideLayout%d.xml"/>`, li+1, relNS, layoutNo)
			fmt.Fprintf(&layoutIDs, `<p:sldLayoutId id="%d" r:id="rId%d"/>`, 2147483649+mi*100+li, li+1)
			fmt.Fprintf(&ct, `<Override PartName="/%s" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`, lpart)
			put(lpart, xmlHeader+`<p:sldLayout `+nsDecl+` preserve="1"><p:cSld name="`+esc(l.Name)+`">`+spTreeXML(placeholdersXML(l.Placeholders))+
				`</p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`)
			put(relsName(lpart), xmlHeader+`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
				fmt.Sprintf(`<Relationship Id="rId1" Type="%s/slideMaster" Target="../slideMasters/slideMaster%d.xml"/>`, relNS, mi+1)+`</Relationships>`)
			layoutNo++
		}
		fmt.Fprintf(&mrels, `<Relationship Id="rId%d" Type="%s/theme" Target="../theme/theme1.xml"/></Relationships>`, len(m.Layouts)+1, relNS)
		put(masterPart, xmlHeader+`<p:sldMaster `+nsDecl+`><p:cSld>`+spTreeXML(placeholdersXML(m.Placeholders))+`</p:cSld>`+
			`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>`+
			`<p:sldLayoutIdLst>`+layoutIDs.String()+`</p:sldLayoutIdLst></p:sldMaster>`)
		put(relsName(masterPart), mrels.String())
	}
	for si, s := range b.Slides {
		spart := fmt.Sprintf("ppt/slides/slide%d.xml", si+1)
		fmt.Fprintf(&presRels, `<Relationship Id="rId%d" Type="%s/slide" Target="slides/slide%d.xml"/>`, rid, relNS, si+1)
		fmt.Fprintf(&slideIDs, `<p:sldId id="%d" r:id="rId%d"/>`, 256+si, rid)
		rid++
		fmt.Fprintf(&ct, `<Override PartName="/%s" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, spart)
		put(spart, xmlHeader+`<p:sld `+nsDecl+`><p:cSld>`+spTreeXML(strings.Join(s.shapes, ""))+
			`</p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)
		var srels strings.Builder
		srels.WriteString(xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
		lpart := "slideLayout1.xml"
		if s.Layout >= 0 && s.Layout < len(layoutParts) {
			lpart = strings.TrimPrefix(layoutParts[s.Layout], "ppt/slideLayouts/")
		}
		fmt.Fprintf(&srels, `<Relationship Id="rId1" Type="%s/slideLayout" Target="../slideLayouts/%s"/>`, relNS, lpart)
		for i := 2; i < len(s.images)+2; i++ {
			r := fmt.Sprintf("rId%d", i)
			media := fmt.Sprintf("ppt/media/image_s%d_%d.png", si+1, i)
			binary[media] = s.images[r]
			fmt.Fprintf(&srels, `<Relationship Id="%s" Type="%s/image" Target="../media/image_s%d_%d.png"/>`, r, relNS, si+1, i)
		}
		srels.WriteString(`</Relationships>`)
		put(relsName(spart), srels.String())
	}
	fmt.Fprintf(&presRels, `<Relationship Id="rId%d" Type="%s/theme" Target="theme/theme1.xml"/></Relationships>`, rid, relNS)
	put("ppt/_rels/presentation.xml.rels", presRels.String())

	var pres strings.Builder
	pres.WriteString(xmlHeader + `<p:presentation ` + nsDecl + `><p:sldMasterIdLst>` + masterIDs.String() + `</p:sldMasterIdLst>`)
	if len(b.Slides) > 0 {
		pres.WriteString(`<p:sldIdLst>` + slideIDs.String() + `</p:sldIdLst>`)
	}
	pres.WriteString(`<p:sldSz cx="12192000" cy="6858000"/><p:notesSz cx="6858000" cy="9144000"/>` + b.PresentationTail + `</p:presentation>`)
	put("ppt/presentation.xml", pres.String())
	put("ppt/theme/theme1.xml", xmlHeader+`<a:theme `+nsDecl+` name="Office Theme"><a:themeElements/></a:theme>`)

	for name, body := range b.Extra {
		put(name, body)
	}
	ct.WriteString(`</Types>`)
	files["[Content_Types].xml"] = ct.String()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, _ := zw.Create(name)
		_, _ = w.Write([]byte(files[name]))
	}
	for name, data := range binary {
		w, _ := zw.Create(name)
		_, _ = w.Write(data)
	}
	_ = zw.Close()
	return buf.Bytes()
}

func relsName(part string) string {
	i := strings.LastIndex(part, "/")
	return part[:i+1] + "_rels/" + part[i+1:] + ".rels"
}

func spTreeXML(children string) string {
	return `<p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
		`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>` +
		children + `</p:spTree>`
}

func placeholdersXML(phs []Placeholder) string {
	var b strings.Builder
	for _, ph := range phs {
		b.WriteString(spXML(ph.ShapeID, ph.Name, phXML(ph.Type, ph.Idx), ph.Rect, Plain("")))
	}
	return b.String()
}

func phXML(phType string, idx int) string {
	attrs := ""
	if phType != "" {
		attrs += fmt.Sprintf(` type="%s"`, phType)
	}
	if idx >= 0 {
		attrs += fmt.Sprintf(` idx="%d"`, idx)
	}
	return `<p:ph` + attrs + `/>`
}

func spXML(id int, name, ph string, r *Rect, paras []Para) string {
	nvPr := `<p:nvPr/>`
	if ph != "" {
		nvPr = `<p:nvPr>` + ph + `</p:nvPr>`
	}
	out := fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr/>%s</p:nvSpPr><p:spPr>%s</p:spPr>`, id, esc(name), nvPr, xfrmXML(r))
	if paras != nil {
		out += `<p:txBody><a:bodyPr/><a:lstStyle/>` + parasXML(paras) + `</p:txBody>`
	}
	return out + `</p:sp>`
}

func parasXML(paras []Para) string {
	var b strings.Builder
	for _, p := range paras {
		b.WriteString(`<a:p>`)
		if p.Level > 0 {
			fmt.Fprintf(&b, `<a:pPr lvl="%d"/>`, p.Level)
		}
		for _, r := range p.Runs {
			if r.Text == "" && r.Font == "" && r.Size == 0 && !r.Bold {
				continue
			}
			b.WriteString(`<a:r><a:rPr lang="en-US"`)
			if r.Size > 0 {
				fmt.Fprintf(&b, ` sz="%d"`, r.Size)
			}
			if r.Bold {
				b.WriteString(` b="1"`)
			}
			if r.Font != "" {
				fmt.Fprintf(&b, `><a:latin typeface="%s"/></a:rPr>`, esc(r.Font))
			} else {
				b.WriteString(`/>`)
			}
			fmt.Fprintf(&b, `<a:t>%s</a:t></a:r>`, esc(r.Text))
		}
		b.WriteString(`</a:p>`)
	}
	return b.String()
}

func xfrmXML(r *Rect) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf(`<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`, r.X, r.Y, r.CX, r.CY)
}

func graphicFrameXML(id int, name string, r Rect, uri, data string) string {
	return fmt.Sprintf(`<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="%s"/><p:cNvGraphicFramePr/><p:nvPr/></p:nvGraphicFramePr>`+
		`<p:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></p:xfrm>`+
		`<a:graphic><a:graphicData uri="%s">%s</a:graphicData></a:graphic></p:graphicFrame>`, id, esc(name), r.X, r.Y, r.CX, r.CY, uri, data)
}

// TextBoxXML renders a free text box, for use inside Group.
func TextBoxXML(id int, name, text string) string {
	return spXML(id, name, "", &Rect{0, 0, 100, 100}, Plain(text))
}

func esc(s string) string { return html.EscapeString(s) }
