package rebuild

// Wire types exchanged with the mapping oracle and persisted as the MAPPING_JSON
// artifact. Field names and enum literals are part of the interop contract.

type ElementType string

const (
	ElementTitle ElementType = "TITLE"
	ElementBody  ElementType = "BODY"
	ElementImage ElementType = "IMAGE"
	ElementTable ElementType = "TABLE"
	ElementChart ElementType = "CHART"
	ElementShape ElementType = "SHAPE"
	ElementOther ElementType = "OTHER"
)

type PlaceholderType string

const (
	PlaceholderTitle       PlaceholderType = "TITLE"
	PlaceholderBody        PlaceholderType = "BODY"
	PlaceholderContent     PlaceholderType = "CONTENT"
	PlaceholderPicture     PlaceholderType = "PICTURE"
	PlaceholderChart       PlaceholderType = "CHART"
	PlaceholderTable       PlaceholderType = "TABLE"
	PlaceholderSubtitle    PlaceholderType = "SUBTITLE"
	PlaceholderFooter      PlaceholderType = "FOOTER"
	PlaceholderSlideNumber PlaceholderType = "SLIDE_NUMBER"
	PlaceholderDate        PlaceholderType = "DATE"
	PlaceholderOther       PlaceholderType = "OTHER"
)

type MappingAction string

const (
	ActionMap      MappingAction = "MAP"
	ActionSkip     MappingAction = "SKIP"
	ActionOverflow MappingAction = "OVERFLOW"
)

func (a MappingAction) Valid() bool {
	switch a {
	case ActionMap, ActionSkip, ActionOverflow:
		return true
	}
	return false
}

const (
	MaxTextPreview   = 200
	MaxOraclePreview = 50
	MaxReasonLen     = 100
	MaxWarnings      = 10
)

// BoundingBox is in points. Negative values are carried through as-is.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DeckElement struct {
	ElementID   string      `json:"element_id"`
	SlideIndex  int         `json:"slide_index"`
	ElementType ElementType `json:"element_type"`
	Name        string      `json:"name"`
	BBox        BoundingBox `json:"bbox"`
	TextPreview string      `json:"text_preview"`
	HasImage    bool        `json:"has_image"`
	HasTable    bool        `json:"has_table"`
	HasChart    bool        `json:"has_chart"`
}

type TemplatePlaceholder struct {
	PlaceholderID   string          `json:"placeholder_id"`
	LayoutName      string          `json:"layout_name"`
	LayoutIndex     int             `json:"layout_index"`
	PlaceholderType PlaceholderType `json:"placeholder_type"`
	BBox            BoundingBox     `json:"bbox"`
	Idx             int             `json:"idx"`
}

type ElementMapping struct {
	SourceElementID     string        `json:"source_element_id"`
	TargetPlaceholderID *string       `json:"target_placeholder_id"`
	Action              MappingAction `json:"action"`
	TargetLayoutIndex   *int          `json:"target_layout_index,omitempty"`
	TargetSlideIndex    *int          `json:"target_slide_index,omitempty"`
	Reason              string        `json:"reason"`
}

type SlideMapping struct {
	OutputSlideIndex int              `json:"output_slide_index"`
	LayoutIndex      int              `json:"layout_index"`
	LayoutName       string           `json:"layout_name"`
	ElementMappings  []ElementMapping `json:"element_mappings"`
}

type MappingResult struct {
	SlideMappings   []SlideMapping `json:"slide_mappings"`
	SkippedElements []string       `json:"skipped_elements"`
	Warnings        []string       `json:"warnings"`
}

// ApplyStats are the applier's counters, reported in the job result.
type ApplyStats struct {
	SlidesCreated   int      `json:"slides_created"`
	ElementsMapped  int      `json:"elements_mapped"`
	ElementsSkipped int      `json:"elements_skipped"`
	Warnings        []string `json:"warnings"`
}

// Map builds a MAP mapping.
func Map(source, target, reason string) ElementMapping {
	t := target
	return ElementMapping{SourceElementID: source, TargetPlaceholderID: &t, Action: ActionMap, Reason: reason}
}

// Skip builds a SKIP mapping.
func Skip(source, reason string) ElementMapping {
	return ElementMapping{SourceElementID: source, Action: ActionSkip, Reason: reason}
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
