package apply

import (
	"fmt"
	"path"

	"github.com/beevik/etree"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml"
)

// textBearing are the native placeholder kinds that get a txBody when cloned.
var textBearing = map[string]bool{
	"title": true, "ctrTitle": true, "subTitle": true, "body": true, "obj": true,
}

// slideBuilder fills one new output slide.
type slideBuilder struct {
	src    *extract.DeckIndex
	tpl    *extract.TemplateIndex
	pres   *ooxml.Presentation
	part   string
	tree   *etree.Element
	layout int
	nextID int
	shapes map[string]*etree.Element // placeholder id -> shape on this slide
	filled map[string]bool
}

func (b *slideBuilder) fail(em rebuild.ElementMapping, reason string, args ...any) error {
	target := ""
	if em.TargetPlaceholderID != nil {
		target = *em.TargetPlaceholderID
	}
	return &rebuild.ApplyError{ElementID: em.SourceElementID, PlaceholderID: target, Reason: fmt.Sprintf(reason, args...)}
}

func (b *slideBuilder) place(em rebuild.ElementMapping) error {
	if em.TargetPlaceholderID == nil {
		return b.fail(em, "MAP without target placeholder")
	}
	target := *em.TargetPlaceholderID
	src, ok := b.src.Lookup(em.SourceElementID)
	if !ok {
		return b.fail(em, "source element not found")
	}
	ref, ok := b.tpl.Lookup(target)
	if !ok {
		return b.fail(em, "placeholder not found")
	}
	if ref.Layout.Index != b.layout {
		return b.fail(em, "placeholder belongs to layout %d, slide uses layout %d", ref.Layout.Index, b.layout)
	}
	if b.filled[target] {
		return b.fail(em, "placeholder already filled on this slide")
	}

	var err error
	switch src.Element.ElementType {
	case rebuild.ElementImage:
		err = b.placePicture(src, ref)
	case rebuild.ElementTable:
		err = b.placeTable(src, ref)
	case rebuild.ElementChart:
		err = fmt.Errorf("chart content is not transferable")
	default:
		err = b.placeText(src, ref)
	}
	if err != nil {
		return b.fail(em, "%v", err)
	}
	b.filled[target] = true
	return nil
}

func (b *slideBuilder) allocID() int {
	id := b.nextID
	b.nextID++
	return id
}

// materialize returns the slide's copy of a layout placeholder, creating it on first use.
func (b *slideBuilder) materialize(ref extract.PlaceholderRef) *etree.Element {
	id := ref.Placeholder.PlaceholderID
	if sp, ok := b.shapes[id]; ok {
		return sp
	}
	sp := b.tree.CreateElement("p:sp")
	nv := sp.CreateElement("p:nvSpPr")
	c := nv.CreateElement("p:cNvPr")
	c.CreateAttr("id", fmt.Sprint(b.allocID()))
	c.CreateAttr("name", ref.Shape.Name())
	nv.CreateElement("p:cNvSpPr").CreateElement("a:spLocks").CreateAttr("noGrp", "1")
	nvPr := nv.CreateElement("p:nvPr")
	if ph := ref.Shape.PlaceholderElement(); ph != nil {
		nvPr.AddChild(ph.Copy())
	}
	sp.CreateElement("p:spPr")
	if textBearing[ref.Native.Type] {
		emptyTxBody(sp)
	}
	b.shapes[id] = sp
	return sp
}

// replace swaps the placeholder's slide shape for el, keeping its z position.
func (b *slideBuilder) replace(ref extract.PlaceholderRef, el *etree.Element) {
	old := b.materialize(ref)
	pos := -1
	for i, t := range b.tree.Child {
		if t == old {
			pos = i
			break
		}
	}
	b.tree.RemoveChild(old)
	if pos < 0 {
		b.tree.AddChild(el)
	} else {
		b.tree.InsertChildAt(pos, el)
	}
	b.shapes[ref.Placeholder.PlaceholderID] = el
}

func (b *slideBuilder) placeText(src extract.ShapeRef, ref extract.PlaceholderRef) error {
	body := src.Shape.TxBody()
	if body == nil {
		return fmt.Errorf("%s element has no text to transfer", src.Element.ElementType)
	}
	sp := b.materialize(ref)
	dst := sp.SelectElement("txBody")
	if dst == nil {
		dst = emptyTxBody(sp)
	}
	copyParagraphs(body, dst)
	return nil
}

func (b *slideBuilder) placePicture(src extract.ShapeRef, ref extract.PlaceholderRef) error {
	rid := src.Shape.BlipEmbed()
	if rid == "" {
		return fmt.Errorf("picture has no embedded image")
	}
	srcRels, err := b.src.Pres.Pkg.Rels(src.SlidePart)
	if err != nil {
		return err
	}
	rel, ok := srcRels.Get(rid)
	if !ok || rel.External {
		return fmt.Errorf("picture image %s is missing or linked", rid)
	}
	media := rel.TargetPart()
	data, ok := b.src.Pres.Pkg.Bytes(media)
	if !ok {
		return fmt.Errorf("image part %s not found", media)
	}
	ext := path.Ext(media)
	name := b.pres.Pkg.UniqueName("ppt/media", "image", ext)
	b.pres.Pkg.PutBytes(name, data)
	if ct := b.src.Pres.Pkg.ContentTypes().Lookup(media); ct != "" {
		b.pres.Pkg.ContentTypes().EnsureDefault(ext, ct)
	}
	slideRels, err := b.pres.Pkg.Rels(b.part)
	if err != nil {
		return err
	}
	newRID := slideRels.Add(ooxml.RelImage, name)

	el := src.Shape.El.Copy()
	stripLinks(el)
	if blip := el.FindElement("./blipFill/blip"); blip != nil {
		blip.CreateAttr("r:embed", newRID)
	}
	b.adopt(ooxml.Shape{El: el, Kind: ooxml.KindPic}, src, ref)
	return nil
}

func (b *slideBuilder) placeTable(src extract.ShapeRef, ref extract.PlaceholderRef) error {
	el := src.Shape.El.Copy()
	stripLinks(el)
	b.adopt(ooxml.Shape{El: el, Kind: ooxml.KindGraphicFrame}, src, ref)
	return nil
}

// adopt binds a copied source shape to the placeholder and puts it on the slide.
func (b *slideBuilder) adopt(shape ooxml.Shape, src extract.ShapeRef, ref extract.PlaceholderRef) {
	shape.SetIdentity(b.allocID(), src.Element.Name)
	if ph := ref.Shape.PlaceholderElement(); ph != nil {
		shape.SetPlaceholder(ph)
	}
	if ref.Rect.CX > 0 && ref.Rect.CY > 0 {
		shape.SetGeometry(ref.Rect)
	}
	b.replace(ref, shape.El)
}

func emptyTxBody(sp *etree.Element) *etree.Element {
	tx := sp.CreateElement("p:txBody")
	tx.CreateElement("a:bodyPr")
	tx.CreateElement("a:lstStyle")
	tx.CreateElement("a:p")
	return tx
}

// stripLinks drops hyperlinks and extension lists, which reference relationships of the source slide.
func stripLinks(el *etree.Element) {
	for _, q := range []string{".//hlinkClick", ".//hlinkHover", ".//blip/extLst"} {
		for _, e := range el.FindElements(q) {
			if p := e.Parent(); p != nil {
				p.RemoveChild(e)
			}
		}
	}
}
