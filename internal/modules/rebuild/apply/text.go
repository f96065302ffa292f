package apply

import "github.com/beevik/etree"

// runAttrs are the character properties carried over. Everything else comes from the template.
var runAttrs = []string{"sz", "b", "i", "u", "strike", "baseline", "lang"}

// copyParagraphs replaces dst's paragraphs with src's text, keeping run
// boundaries, paragraph levels, line breaks and basic character formatting.
// Text is copied verbatim.
func copyParagraphs(src, dst *etree.Element) {
	for _, p := range dst.SelectElements("p") {
		dst.RemoveChild(p)
	}
	paras := src.SelectElements("p")
	if len(paras) == 0 {
		dst.CreateElement("a:p")
		return
	}
	for _, sp := range paras {
		dp := dst.CreateElement("a:p")
		if ppr := sp.SelectElement("pPr"); ppr != nil {
			if lvl := ppr.SelectAttr("lvl"); lvl != nil {
				dp.CreateElement("a:pPr").CreateAttr("lvl", lvl.Value)
			}
		}
		for _, c := range sp.ChildElements() {
			switch c.Tag {
			case "r", "fld":
				r := dp.CreateElement("a:r")
				copyRunProps(c.SelectElement("rPr"), r)
				t := ""
				if te := c.SelectElement("t"); te != nil {
					t = te.Text()
				}
				r.CreateElement("a:t").SetText(t)
			case "br":
				br := dp.CreateElement("a:br")
				copyRunProps(c.SelectElement("rPr"), br)
			}
		}
	}
}

func copyRunProps(src, run *etree.Element) {
	if src == nil {
		return
	}
	rpr := run.CreateElement("a:rPr")
	for _, k := range runAttrs {
		if a := src.SelectAttr(k); a != nil {
			rpr.CreateAttr(k, a.Value)
		}
	}
	if latin := src.SelectElement("latin"); latin != nil {
		if tf := latin.SelectAttrValue("typeface", ""); tf != "" {
			rpr.CreateElement("a:latin").CreateAttr("typeface", tf)
		}
	}
}
