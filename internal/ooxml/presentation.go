package ooxml

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

const (
	NSMain         = "http://schemas.openxmlformats.org/presentationml/2006/main"
	NSDrawing      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NSOfficeDocRel = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

	CTPresentation = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	CTTemplate     = "application/vnd.openxmlformats-officedocument.presentationml.template.main+xml"
	CTSlide        = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"

	GraphicTable = "http://schemas.openxmlformats.org/drawingml/2006/table"
	GraphicChart = "http://schemas.openxmlformats.org/drawingml/2006/chart"
)

// Presentation is a package plus its resolved main part.
type Presentation struct {
	Pkg      *Package
	MainPart string
}

// LayoutRef identifies one slide layout. Index is global across masters:
// masters in presentation order, then layouts in master order.
type LayoutRef struct {
	Index       int
	MasterIndex int
	Name        string
	Part        string
	MasterPart  string
}

func OpenPresentation(data []byte) (*Presentation, error) {
	pkg, err := Open(data)
	if err != nil {
		return nil, err
	}
	return NewPresentation(pkg)
}

func NewPresentation(pkg *Package) (*Presentation, error) {
	root, err := pkg.Rels("")
	if err != nil {
		return nil, err
	}
	main := ""
	if docs := root.ByType(RelOfficeDocument); len(docs) > 0 {
		main = docs[0].TargetPart()
	}
	if main == "" || !pkg.Has(main) {
		return nil, fmt.Errorf("package has no presentation part")
	}
	if _, err := pkg.XML(main); err != nil {
		return nil, err
	}
	return &Presentation{Pkg: pkg, MainPart: main}, nil
}

func (p *Presentation) root() *etree.Element {
	doc, _ := p.Pkg.XML(p.MainPart)
	return doc.Root()
}

// SlideParts returns slide part names in presentation order.
func (p *Presentation) SlideParts() ([]string, error) {
	return p.listParts("sldIdLst", "sldId")
}

// MasterParts returns slide master part names in presentation order.
func (p *Presentation) MasterParts() ([]string, error) {
	return p.listParts("sldMasterIdLst", "sldMasterId")
}

func (p *Presentation) listParts(list, item string) ([]string, error) {
	rels, err := p.Pkg.Rels(p.MainPart)
	if err != nil {
		return nil, err
	}
	lst := p.root().SelectElement(list)
	if lst == nil {
		return nil, nil
	}
	var out []string
	for _, e := range lst.SelectElements(item) {
		rid := e.SelectAttrValue("r:id", "")
		rel, ok := rels.Get(rid)
		if !ok {
			return nil, fmt.Errorf("%s: relationship %q not found", item, rid)
		}
		part := rel.TargetPart()
		if !p.Pkg.Has(part) {
			return nil, fmt.Errorf("%s: part %s missing", item, part)
		}
		out = append(out, part)
	}
	return out, nil
}

// Layouts enumerates every layout of every master.
func (p *Presentation) Layouts() ([]LayoutRef, error) {
	masters, err := p.MasterParts()
	if err != nil {
		return nil, err
	}
	var out []LayoutRef
	for mi, master := range masters {
		doc, err := p.Pkg.XML(master)
		if err != nil {
			return nil, err
		}
		rels, err := p.Pkg.Rels(master)
		if err != nil {
			return nil, err
		}
		lst := doc.Root().SelectElement("sldLayoutIdLst")
		if lst == nil {
			continue
		}
		for _, e := range lst.SelectElements("sldLayoutId") {
			rid := e.SelectAttrValue("r:id", "")
			rel, ok := rels.Get(rid)
			if !ok {
				return nil, fmt.Errorf("master %s: layout relationship %q not found", master, rid)
			}
			part := rel.TargetPart()
			ldoc, err := p.Pkg.XML(part)
			if err != nil {
				return nil, err
			}
			name := ""
			if cSld := ldoc.Root().SelectElement("cSld"); cSld != nil {
				name = cSld.SelectAttrValue("name", "")
			}
			out = append(out, LayoutRef{
				Index:       len(out),
				MasterIndex: mi,
				Name:        name,
				Part:        part,
				MasterPart:  master,
			})
		}
	}
	return out, nil
}

// SpTree returns the shape tree of a slide, layout or master part.
func (p *Presentation) SpTree(part string) (*etree.Element, error) {
	doc, err := p.Pkg.XML(part)
	if err != nil {
		return nil, err
	}
	cSld := doc.Root().SelectElement("cSld")
	if cSld == nil {
		return nil, fmt.Errorf("part %s: missing cSld", part)
	}
	tree := cSld.SelectElement("spTree")
	if tree == nil {
		return nil, fmt.Errorf("part %s: missing spTree", part)
	}
	return tree, nil
}

// RemoveAllSlides drops every slide and its notes page from the presentation.
func (p *Presentation) RemoveAllSlides() error {
	slides, err := p.SlideParts()
	if err != nil {
		return err
	}
	rels, err := p.Pkg.Rels(p.MainPart)
	if err != nil {
		return err
	}
	for _, slide := range slides {
		srels, err := p.Pkg.Rels(slide)
		if err != nil {
			return err
		}
		for _, n := range srels.ByType(RelNotesSlide) {
			p.Pkg.Delete(n.TargetPart())
		}
		p.Pkg.Delete(slide)
	}
	if lst := p.root().SelectElement("sldIdLst"); lst != nil {
		for _, e := range lst.SelectElements("sldId") {
			rels.Remove(e.SelectAttrValue("r:id", ""))
		}
		p.root().RemoveChild(lst)
	}
	p.dropSlideLists()
	return nil
}

// dropSlideLists removes custom shows and section lists; both name slides by
// relationship or slide id and would dangle once the slides are gone.
func (p *Presentation) dropSlideLists() {
	root := p.root()
	if shows := root.SelectElement("custShowLst"); shows != nil {
		root.RemoveChild(shows)
	}
	ext := root.SelectElement("extLst")
	if ext == nil {
		return
	}
	for _, e := range ext.SelectElements("ext") {
		if e.SelectElement("sectionLst") != nil {
			ext.RemoveChild(e)
		}
	}
	if len(ext.ChildElements()) == 0 {
		root.RemoveChild(ext)
	}
}

// AsPresentation rewrites a template main part content type to the presentation type.
func (p *Presentation) AsPresentation() {
	if p.Pkg.ContentTypes().Lookup(p.MainPart) == CTTemplate {
		p.Pkg.ContentTypes().SetOverride(p.MainPart, CTPresentation)
	}
}

// AppendSlide registers part as the last slide.
func (p *Presentation) AppendSlide(part string) error {
	rels, err := p.Pkg.Rels(p.MainPart)
	if err != nil {
		return err
	}
	rid := rels.Add(RelSlide, part)
	lst := p.root().SelectElement("sldIdLst")
	if lst == nil {
		lst = etree.NewElement("p:sldIdLst")
		p.root().InsertChildAt(p.sldIdLstPosition(), lst)
	}
	next := 256
	for _, e := range lst.SelectElements("sldId") {
		if n, err := strconv.Atoi(e.SelectAttrValue("id", "")); err == nil && n >= next {
			next = n + 1
		}
	}
	e := lst.CreateElement("p:sldId")
	e.CreateAttr("id", strconv.Itoa(next))
	e.CreateAttr("r:id", rid)
	return nil
}

// sldIdLst follows the master id lists in the presentation schema.
func (p *Presentation) sldIdLstPosition() int {
	pos := 0
	for _, e := range p.root().ChildElements() {
		switch e.Tag {
		case "sldMasterIdLst", "notesMasterIdLst", "handoutMasterIdLst":
			pos = e.Index() + 1
		}
	}
	return pos
}
