package extract

// Extractor produces fresh indexes for one pipeline run.
type Extractor interface {
	Deck(data []byte) (*DeckIndex, error)
	Template(data []byte) (*TemplateIndex, error)
}

// Parser is the Extractor backed by LoadDeck and LoadTemplate.
type Parser struct{}

func (Parser) Deck(data []byte) (*DeckIndex, error) { return LoadDeck(data) }

func (Parser) Template(data []byte) (*TemplateIndex, error) { return LoadTemplate(data) }
