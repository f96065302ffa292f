// Package ooxml reads and writes Office Open XML presentation packages
// (.pptx/.potx) as a set of parts, parsing XML parts lazily into etree documents.
package ooxml

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

const contentTypesPart = "[Content_Types].xml"

// MaxPartSize bounds a single decompressed part.
const MaxPartSize = 256 << 20

// Package is an in-memory OPC package. Part names have no leading slash.
type Package struct {
	order []string
	parts map[string][]byte
	docs  map[string]*etree.Document
	rels  map[string]*Relationships
	types *ContentTypes
}

// Open reads a package from bytes. Any zip or XML structure problem is returned as an error.
func Open(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	p := &Package{
		parts: make(map[string][]byte, len(zr.File)),
		docs:  map[string]*etree.Document{},
		rels:  map[string]*Relationships{},
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimPrefix(f.Name, "/")
		b, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", name, err)
		}
		if _, dup := p.parts[name]; !dup {
			p.order = append(p.order, name)
		}
		p.parts[name] = b
	}
	if _, ok := p.parts[contentTypesPart]; !ok {
		return nil, fmt.Errorf("open package: missing %s", contentTypesPart)
	}
	ct, err := p.XML(contentTypesPart)
	if err != nil {
		return nil, err
	}
	p.types = &ContentTypes{doc: ct}
	return p, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, MaxPartSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxPartSize {
		return nil, fmt.Errorf("part exceeds %d bytes", MaxPartSize)
	}
	return b, nil
}

func (p *Package) Has(name string) bool {
	_, ok := p.parts[name]
	return ok
}

// Bytes returns the raw part. XML parts edited through XML() are serialized first.
func (p *Package) Bytes(name string) ([]byte, bool) {
	if doc, ok := p.docs[name]; ok {
		b, err := doc.WriteToBytes()
		if err == nil {
			return b, true
		}
	}
	b, ok := p.parts[name]
	return b, ok
}

// XML returns the parsed part. The returned document is shared; edits are persisted on Write.
func (p *Package) XML(name string) (*etree.Document, error) {
	if doc, ok := p.docs[name]; ok {
		return doc, nil
	}
	b, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("part %s: not found", name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("part %s: %w", name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("part %s: empty document", name)
	}
	p.docs[name] = doc
	return doc, nil
}

// PutXML adds or replaces an XML part and registers its content type override.
func (p *Package) PutXML(name, contentType string, doc *etree.Document) {
	p.touch(name)
	p.docs[name] = doc
	p.parts[name] = nil
	if contentType != "" {
		p.types.SetOverride(name, contentType)
	}
}

// PutBytes adds or replaces a binary part.
func (p *Package) PutBytes(name string, data []byte) {
	p.touch(name)
	delete(p.docs, name)
	p.parts[name] = data
}

func (p *Package) touch(name string) {
	if _, ok := p.parts[name]; !ok {
		p.order = append(p.order, name)
	}
}

// Delete removes a part, its relationships part and its content type override.
func (p *Package) Delete(name string) {
	for _, n := range []string{name, RelsPartName(name)} {
		if _, ok := p.parts[n]; !ok {
			continue
		}
		delete(p.parts, n)
		delete(p.docs, n)
		delete(p.rels, n)
		for i, o := range p.order {
			if o == n {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	delete(p.rels, name)
	p.types.RemoveOverride(name)
}

// Parts lists part names in package order.
func (p *Package) Parts() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

func (p *Package) ContentTypes() *ContentTypes { return p.types }

// UniqueName returns dir/prefixN.ext for the smallest N >= 1 not in use.
func (p *Package) UniqueName(dir, prefix, ext string) string {
	for n := 1; ; n++ {
		name := path.Join(dir, fmt.Sprintf("%s%d%s", prefix, n, ext))
		if !p.Has(name) {
			return name
		}
	}
}

// Write serializes the package. [Content_Types].xml is always written first.
func (p *Package) Write(w io.Writer) error {
	for name, r := range p.rels {
		if r.dirty {
			p.PutXML(RelsPartName(name), "", r.doc)
			r.dirty = false
		}
	}
	names := p.Parts()
	sort.SliceStable(names, func(i, j int) bool {
		return names[i] == contentTypesPart && names[j] != contentTypesPart
	})
	zw := zip.NewWriter(w)
	for _, name := range names {
		b, ok := p.Bytes(name)
		if !ok {
			continue
		}
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("write part %s: %w", name, err)
		}
		if _, err := fw.Write(b); err != nil {
			return fmt.Errorf("write part %s: %w", name, err)
		}
	}
	return zw.Close()
}

// Serialize is Write into a byte slice.
func (p *Package) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewXMLDocument returns a document with the standalone XML declaration PowerPoint writes.
func NewXMLDocument(root *etree.Element) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	doc.SetRoot(root)
	return doc
}
