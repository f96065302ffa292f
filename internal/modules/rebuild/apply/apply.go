// Package apply builds the output deck: the template's masters and layouts,
// one new slide per slide mapping, and source content moved into placeholders.
package apply

import (
	"context"
	"fmt"

	"github.com/beevik/etree"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// Output is the serialized deck and what happened while building it.
type Output struct {
	Data  []byte
	Stats rebuild.ApplyStats
}

type Applier struct {
	log *logger.Logger
}

func New(log *logger.Logger) *Applier {
	if log == nil {
		log = logger.Nop()
	}
	return &Applier{log: log.With("service", "MappingApplier")}
}

// Apply parses both inputs and applies m. The inputs are not modified.
func (a *Applier) Apply(ctx context.Context, deck, template []byte, m *rebuild.MappingResult) (*Output, error) {
	src, err := extract.LoadDeck(deck)
	if err != nil {
		return nil, err
	}
	tpl, err := extract.LoadTemplate(template)
	if err != nil {
		return nil, err
	}
	return a.ApplyIndexed(ctx, src, tpl, m)
}

// ApplyIndexed applies m to already parsed inputs. tpl is consumed: its
// package becomes the output.
func (a *Applier) ApplyIndexed(ctx context.Context, src *extract.DeckIndex, tpl *extract.TemplateIndex, m *rebuild.MappingResult) (*Output, error) {
	if m == nil {
		return nil, &rebuild.ApplyError{Fatal: true, Reason: "no mapping"}
	}
	if len(tpl.Layouts) == 0 {
		return nil, &rebuild.ApplyError{Fatal: true, Reason: "template has no slide layouts"}
	}
	pres := tpl.Pres
	if err := pres.RemoveAllSlides(); err != nil {
		return nil, &rebuild.ApplyError{Fatal: true, Reason: fmt.Sprintf("clear template slides: %v", err)}
	}
	pres.AsPresentation()

	stats := rebuild.ApplyStats{Warnings: []string{}}
	for i := range m.SlideMappings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sm := &m.SlideMappings[i]
		b, err := a.newSlide(src, tpl, sm, &stats)
		if err != nil {
			return nil, err
		}
		stats.SlidesCreated++
		for _, em := range sm.ElementMappings {
			if em.Action != rebuild.ActionMap {
				stats.ElementsSkipped++
				continue
			}
			if err := b.place(em); err != nil {
				stats.ElementsSkipped++
				stats.Warnings = append(stats.Warnings, fmt.Sprintf("slide %d: %v", sm.OutputSlideIndex, err))
				continue
			}
			stats.ElementsMapped++
		}
	}

	data, err := pres.Pkg.Serialize()
	if err != nil {
		return nil, &rebuild.ApplyError{Fatal: true, Reason: fmt.Sprintf("serialize output: %v", err)}
	}
	a.log.Info("Output deck built",
		"slides_created", stats.SlidesCreated,
		"elements_mapped", stats.ElementsMapped,
		"elements_skipped", stats.ElementsSkipped,
		"warnings", len(stats.Warnings),
	)
	return &Output{Data: data, Stats: stats}, nil
}

func (a *Applier) newSlide(src *extract.DeckIndex, tpl *extract.TemplateIndex, sm *rebuild.SlideMapping, stats *rebuild.ApplyStats) (*slideBuilder, error) {
	li := sm.LayoutIndex
	if last := len(tpl.Layouts) - 1; li < 0 || li > last {
		clamped := min(max(li, 0), last)
		stats.Warnings = append(stats.Warnings,
			fmt.Sprintf("slide %d: layout_index %d out of range, using %d", sm.OutputSlideIndex, li, clamped))
		li = clamped
	}
	layout := tpl.Layouts[li]
	part, tree, err := tpl.Pres.NewSlidePart(layout.Part)
	if err != nil {
		return nil, &rebuild.ApplyError{Fatal: true, Reason: fmt.Sprintf("create slide %d: %v", sm.OutputSlideIndex, err)}
	}
	b := &slideBuilder{
		src:    src,
		tpl:    tpl,
		pres:   tpl.Pres,
		part:   part,
		tree:   tree,
		layout: li,
		nextID: 2,
		shapes: map[string]*etree.Element{},
		filled: map[string]bool{},
	}
	for _, ref := range tpl.LayoutPlaceholders(li) {
		if !autoCloned(ref.Native.Type) {
			continue
		}
		b.materialize(ref)
	}
	return b, nil
}

// autoCloned reports whether a new slide starts with a copy of the layout
// placeholder. Date, footer and slide number only appear when mapped.
func autoCloned(native string) bool {
	switch native {
	case "dt", "ftr", "sldNum":
		return false
	}
	return true
}
