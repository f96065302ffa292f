package ooxml

import "github.com/beevik/etree"

// NewSlideRoot returns an empty p:sld with an empty shape tree.
func NewSlideRoot() *etree.Element {
	sld := etree.NewElement("p:sld")
	sld.CreateAttr("xmlns:a", NSDrawing)
	sld.CreateAttr("xmlns:r", NSOfficeDocRel)
	sld.CreateAttr("xmlns:p", NSMain)
	tree := sld.CreateElement("p:cSld").CreateElement("p:spTree")
	nv := tree.CreateElement("p:nvGrpSpPr")
	c := nv.CreateElement("p:cNvPr")
	c.CreateAttr("id", "1")
	c.CreateAttr("name", "")
	nv.CreateElement("p:cNvGrpSpPr")
	nv.CreateElement("p:nvPr")
	xfrm := tree.CreateElement("p:grpSpPr").CreateElement("a:xfrm")
	for _, pair := range [][3]string{{"a:off", "x", "y"}, {"a:ext", "cx", "cy"}, {"a:chOff", "x", "y"}, {"a:chExt", "cx", "cy"}} {
		e := xfrm.CreateElement(pair[0])
		e.CreateAttr(pair[1], "0")
		e.CreateAttr(pair[2], "0")
	}
	sld.CreateElement("p:clrMapOvr").CreateElement("a:masterClrMapping")
	return sld
}

// NewSlidePart creates a slide part bound to layoutPart and appends it to the presentation.
func (p *Presentation) NewSlidePart(layoutPart string) (string, *etree.Element, error) {
	name := p.Pkg.UniqueName("ppt/slides", "slide", ".xml")
	root := NewSlideRoot()
	p.Pkg.PutXML(name, CTSlide, NewXMLDocument(root))
	rels, err := p.Pkg.Rels(name)
	if err != nil {
		return "", nil, err
	}
	rels.Add(RelSlideLayout, layoutPart)
	if err := p.AppendSlide(name); err != nil {
		return "", nil, err
	}
	tree := root.SelectElement("cSld").SelectElement("spTree")
	return name, tree, nil
}
