package mapping

import (
	"fmt"
	"sort"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
)

// compatible lists, in preference order, the placeholder kinds that can host an element kind.
var compatible = map[rebuild.ElementType][]rebuild.PlaceholderType{
	rebuild.ElementTitle: {rebuild.PlaceholderTitle},
	rebuild.ElementBody:  {rebuild.PlaceholderBody, rebuild.PlaceholderContent, rebuild.PlaceholderSubtitle},
	rebuild.ElementImage: {rebuild.PlaceholderPicture, rebuild.PlaceholderContent},
	rebuild.ElementTable: {rebuild.PlaceholderTable, rebuild.PlaceholderContent},
	rebuild.ElementChart: {rebuild.PlaceholderChart, rebuild.PlaceholderContent},
}

type layoutSlots struct {
	index        int
	name         string
	placeholders []rebuild.TemplatePlaceholder
}

// PlanByType is the deterministic mapping used by the mock oracle: one output
// slide per source slide, on the lowest-indexed layout that places the most
// elements, filling placeholders by type compatibility. Everything else is SKIPped.
func PlanByType(elements []rebuild.DeckElement, placeholders []rebuild.TemplatePlaceholder) rebuild.MappingResult {
	layouts := groupLayouts(placeholders)
	out := rebuild.MappingResult{SkippedElements: []string{}, Warnings: []string{}}

	var slideOrder []int
	bySlide := map[int][]rebuild.DeckElement{}
	for _, e := range elements {
		if _, ok := bySlide[e.SlideIndex]; !ok {
			slideOrder = append(slideOrder, e.SlideIndex)
		}
		bySlide[e.SlideIndex] = append(bySlide[e.SlideIndex], e)
	}

	for _, si := range slideOrder {
		els := bySlide[si]
		sm := rebuild.SlideMapping{OutputSlideIndex: len(out.SlideMappings), ElementMappings: []rebuild.ElementMapping{}}
		best, bestPlaced := -1, -1
		var bestAssign map[string]string
		for li, l := range layouts {
			assign := assignByType(els, l.placeholders)
			if len(assign) > bestPlaced {
				best, bestPlaced, bestAssign = li, len(assign), assign
			}
		}
		if best >= 0 {
			sm.LayoutIndex = layouts[best].index
			sm.LayoutName = layouts[best].name
		}
		for _, e := range els {
			if target, ok := bestAssign[e.ElementID]; ok {
				em := rebuild.Map(e.ElementID, target, fmt.Sprintf("%s by type", e.ElementType))
				li, oi := sm.LayoutIndex, sm.OutputSlideIndex
				em.TargetLayoutIndex, em.TargetSlideIndex = &li, &oi
				sm.ElementMappings = append(sm.ElementMappings, em)
				continue
			}
			sm.ElementMappings = append(sm.ElementMappings, rebuild.Skip(e.ElementID, "no compatible placeholder"))
			out.SkippedElements = append(out.SkippedElements, e.ElementID)
		}
		out.SlideMappings = append(out.SlideMappings, sm)
	}

	if len(out.SlideMappings) == 0 {
		sm := rebuild.SlideMapping{ElementMappings: []rebuild.ElementMapping{}}
		if len(layouts) > 0 {
			sm.LayoutIndex, sm.LayoutName = layouts[0].index, layouts[0].name
		}
		out.SlideMappings = append(out.SlideMappings, sm)
		out.Warnings = append(out.Warnings, "source deck has no elements")
	}
	if len(layouts) == 0 {
		out.Warnings = append(out.Warnings, "template has no placeholders")
	}
	return out
}

func groupLayouts(placeholders []rebuild.TemplatePlaceholder) []layoutSlots {
	byIndex := map[int]*layoutSlots{}
	for _, p := range placeholders {
		l, ok := byIndex[p.LayoutIndex]
		if !ok {
			l = &layoutSlots{index: p.LayoutIndex, name: p.LayoutName}
			byIndex[p.LayoutIndex] = l
		}
		l.placeholders = append(l.placeholders, p)
	}
	out := make([]layoutSlots, 0, len(byIndex))
	for _, l := range byIndex {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

func assignByType(els []rebuild.DeckElement, placeholders []rebuild.TemplatePlaceholder) map[string]string {
	used := map[string]bool{}
	out := map[string]string{}
	for _, e := range els {
		for _, want := range compatible[e.ElementType] {
			found := ""
			for _, p := range placeholders {
				if p.PlaceholderType == want && !used[p.PlaceholderID] {
					found = p.PlaceholderID
					break
				}
			}
			if found != "" {
				used[found] = true
				out[e.ElementID] = found
				break
			}
		}
	}
	return out
}
