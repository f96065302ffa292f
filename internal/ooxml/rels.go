package ooxml

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

const (
	nsRelationships = "http://schemas.openxmlformats.org/package/2006/relationships"

	RelOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	RelSlide          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	RelSlideLayout    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
	RelSlideMaster    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster"
	RelNotesSlide     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	RelImage          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	RelChart          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart"
)

type Relationship struct {
	ID         string
	Type       string
	Target     string
	External   bool
	sourcePart string
}

// TargetPart resolves the relationship target to a part name.
func (r Relationship) TargetPart() string {
	if r.External {
		return ""
	}
	return ResolvePart(r.sourcePart, r.Target)
}

// Relationships is the parsed _rels part of a source part.
type Relationships struct {
	source string
	doc    *etree.Document
	dirty  bool
}

// RelsPartName maps "ppt/slides/slide1.xml" to "ppt/slides/_rels/slide1.xml.rels".
// The package root ("") maps to "_rels/.rels".
func RelsPartName(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

// ResolvePart resolves a relative target against the directory of source.
func ResolvePart(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return strings.TrimPrefix(path.Clean(path.Join(path.Dir(source), target)), "/")
}

// RelativeTarget is the inverse of ResolvePart.
func RelativeTarget(source, part string) string {
	from := strings.Split(path.Dir(source), "/")
	to := strings.Split(part, "/")
	if path.Dir(source) == "." {
		from = nil
	}
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var b strings.Builder
	for j := i; j < len(from); j++ {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(to[i:], "/"))
	return b.String()
}

// Rels returns the relationships of part, creating an empty set if it has none.
func (p *Package) Rels(part string) (*Relationships, error) {
	if r, ok := p.rels[part]; ok {
		return r, nil
	}
	name := RelsPartName(part)
	var doc *etree.Document
	if p.Has(name) {
		d, err := p.XML(name)
		if err != nil {
			return nil, err
		}
		doc = d
	} else {
		root := etree.NewElement("Relationships")
		root.CreateAttr("xmlns", nsRelationships)
		doc = NewXMLDocument(root)
	}
	r := &Relationships{source: part, doc: doc}
	p.rels[part] = r
	return r, nil
}

func (r *Relationships) All() []Relationship {
	var out []Relationship
	for _, e := range r.doc.Root().ChildElements() {
		if e.Tag != "Relationship" {
			continue
		}
		out = append(out, Relationship{
			ID:         e.SelectAttrValue("Id", ""),
			Type:       e.SelectAttrValue("Type", ""),
			Target:     e.SelectAttrValue("Target", ""),
			External:   strings.EqualFold(e.SelectAttrValue("TargetMode", ""), "External"),
			sourcePart: r.source,
		})
	}
	return out
}

func (r *Relationships) Get(id string) (Relationship, bool) {
	for _, rel := range r.All() {
		if rel.ID == id {
			return rel, true
		}
	}
	return Relationship{}, false
}

func (r *Relationships) ByType(relType string) []Relationship {
	var out []Relationship
	for _, rel := range r.All() {
		if rel.Type == relType {
			out = append(out, rel)
		}
	}
	return out
}

// Add appends a relationship to targetPart and returns its new id.
func (r *Relationships) Add(relType, targetPart string) string {
	id := r.nextID()
	e := r.doc.Root().CreateElement("Relationship")
	e.CreateAttr("Id", id)
	e.CreateAttr("Type", relType)
	e.CreateAttr("Target", RelativeTarget(r.source, targetPart))
	r.dirty = true
	return id
}

func (r *Relationships) Remove(id string) {
	for _, e := range r.doc.Root().ChildElements() {
		if e.SelectAttrValue("Id", "") == id {
			r.doc.Root().RemoveChild(e)
			r.dirty = true
			return
		}
	}
}

func (r *Relationships) nextID() string {
	max := 0
	for _, rel := range r.All() {
		if n, err := strconv.Atoi(strings.TrimPrefix(rel.ID, "rId")); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("rId%d", max+1)
}

// ContentTypes wraps [Content_Types].xml.
type ContentTypes struct {
	doc *etree.Document
}

// Lookup returns the content type of a part: its override, else the default for its extension.
func (c *ContentTypes) Lookup(part string) string {
	want := "/" + part
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(part)), ".")
	def := ""
	for _, e := range c.doc.Root().ChildElements() {
		switch e.Tag {
		case "Override":
			if strings.EqualFold(e.SelectAttrValue("PartName", ""), want) {
				return e.SelectAttrValue("ContentType", "")
			}
		case "Default":
			if strings.EqualFold(e.SelectAttrValue("Extension", ""), ext) {
				def = e.SelectAttrValue("ContentType", "")
			}
		}
	}
	return def
}

func (c *ContentTypes) SetOverride(part, contentType string) {
	want := "/" + part
	for _, e := range c.doc.Root().ChildElements() {
		if e.Tag == "Override" && strings.EqualFold(e.SelectAttrValue("PartName", ""), want) {
			e.CreateAttr("ContentType", contentType)
			return
		}
	}
	e := c.doc.Root().CreateElement("Override")
	e.CreateAttr("PartName", want)
	e.CreateAttr("ContentType", contentType)
}

func (c *ContentTypes) RemoveOverride(part string) {
	want := "/" + part
	for _, e := range c.doc.Root().ChildElements() {
		if e.Tag == "Override" && strings.EqualFold(e.SelectAttrValue("PartName", ""), want) {
			c.doc.Root().RemoveChild(e)
			return
		}
	}
}

// EnsureDefault registers a Default entry for ext when none exists.
func (c *ContentTypes) EnsureDefault(ext, contentType string) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, e := range c.doc.Root().ChildElements() {
		if e.Tag == "Default" && strings.EqualFold(e.SelectAttrValue("Extension", ""), ext) {
			return
		}
	}
	e := etree.NewElement("Default")
	e.CreateAttr("Extension", ext)
	e.CreateAttr("ContentType", contentType)
	c.doc.Root().InsertChildAt(0, e)
}
