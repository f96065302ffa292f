package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
)

// oracleElement is all the oracle ever learns about a source element.
type oracleElement struct {
	ElementID   string              `json:"element_id"`
	SlideIndex  int                 `json:"slide_index"`
	Type        rebuild.ElementType `json:"type"`
	TextPreview *string             `json:"text_preview"`
}

type oraclePlaceholder struct {
	PlaceholderID string                  `json:"placeholder_id"`
	LayoutIndex   int                     `json:"layout_index"`
	LayoutName    string                  `json:"layout_name"`
	Type          rebuild.PlaceholderType `json:"type"`
}

// Prompt is one oracle request.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the oracle request. Only identifiers, enums and a
// preview of at most PreviewChars characters leave the process.
func BuildPrompt(p *Policy, elements []rebuild.DeckElement, placeholders []rebuild.TemplatePlaceholder) (Prompt, error) {
	els := make([]oracleElement, 0, len(elements))
	for _, e := range elements {
		oe := oracleElement{ElementID: e.ElementID, SlideIndex: e.SlideIndex, Type: e.ElementType}
		if preview := strings.TrimSpace(e.TextPreview); preview != "" {
			cut := rebuild.TruncateRunes(preview, p.PreviewChars)
			oe.TextPreview = &cut
		}
		els = append(els, oe)
	}
	phs := make([]oraclePlaceholder, 0, len(placeholders))
	for _, ph := range placeholders {
		phs = append(phs, oraclePlaceholder{
			PlaceholderID: ph.PlaceholderID,
			LayoutIndex:   ph.LayoutIndex,
			LayoutName:    ph.LayoutName,
			Type:          ph.PlaceholderType,
		})
	}
	elJSON, err := json.MarshalIndent(els, "", "  ")
	if err != nil {
		return Prompt{}, err
	}
	phJSON, err := json.MarshalIndent(phs, "", "  ")
	if err != nil {
		return Prompt{}, err
	}
	var buf bytes.Buffer
	if err := p.userTmpl.Execute(&buf, map[string]string{
		"Elements":     string(elJSON),
		"Placeholders": string(phJSON),
	}); err != nil {
		return Prompt{}, fmt.Errorf("render user prompt: %w", err)
	}
	return Prompt{System: strings.TrimSpace(p.SystemPrompt), User: strings.TrimSpace(buf.String())}, nil
}

// ParsePromptInventory recovers the element and placeholder lists from a user
// prompt rendered by BuildPrompt. Only what the oracle was shown comes back.
func ParsePromptInventory(user string) ([]rebuild.DeckElement, []rebuild.TemplatePlaceholder, error) {
	var els []oracleElement
	rest, err := decodeNextArray(user, &els)
	if err != nil {
		return nil, nil, fmt.Errorf("prompt elements: %w", err)
	}
	var phs []oraclePlaceholder
	if _, err := decodeNextArray(rest, &phs); err != nil {
		return nil, nil, fmt.Errorf("prompt placeholders: %w", err)
	}
	elements := make([]rebuild.DeckElement, 0, len(els))
	for _, e := range els {
		de := rebuild.DeckElement{ElementID: e.ElementID, SlideIndex: e.SlideIndex, ElementType: e.Type}
		if e.TextPreview != nil {
			de.TextPreview = *e.TextPreview
		}
		elements = append(elements, de)
	}
	placeholders := make([]rebuild.TemplatePlaceholder, 0, len(phs))
	for _, p := range phs {
		placeholders = append(placeholders, rebuild.TemplatePlaceholder{
			PlaceholderID:   p.PlaceholderID,
			LayoutIndex:     p.LayoutIndex,
			LayoutName:      p.LayoutName,
			PlaceholderType: p.Type,
		})
	}
	return elements, placeholders, nil
}

func decodeNextArray(s string, out any) (string, error) {
	i := strings.IndexByte(s, '[')
	if i < 0 {
		return "", fmt.Errorf("no JSON array found")
	}
	dec := json.NewDecoder(strings.NewReader(s[i:]))
	if err := dec.Decode(out); err != nil {
		return "", err
	}
	return s[i+int(dec.InputOffset()):], nil
}
