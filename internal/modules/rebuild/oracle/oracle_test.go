package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

type scripted struct {
	out   string
	err   error
	block bool
	calls int
	seen  Config
}

func (s *scripted) Call(ctx context.Context, _, _ string, cfg Config) (string, error) {
	s.calls++
	s.seen = cfg
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.out, s.err
}

func testConfig() Config {
	return Config{Provider: "scripted", Timeout: MinTimeout, MaxTokens: 2000}
}

func inventory() ([]rebuild.DeckElement, []rebuild.TemplatePlaceholder) {
	return []rebuild.DeckElement{
			{ElementID: "slide_0_shape_2", SlideIndex: 0, ElementType: rebuild.ElementTitle, TextPreview: "Hello"},
			{ElementID: "slide_0_shape_3", SlideIndex: 0, ElementType: rebuild.ElementBody, TextPreview: "World"},
		}, []rebuild.TemplatePlaceholder{
			{PlaceholderID: "layout_0_ph_0", LayoutIndex: 0, LayoutName: "Title and Content", PlaceholderType: rebuild.PlaceholderTitle},
			{PlaceholderID: "layout_0_ph_1", LayoutIndex: 0, LayoutName: "Title and Content", PlaceholderType: rebuild.PlaceholderBody},
		}
}

func newAdapter(t *testing.T, tr Transport) *Adapter {
	t.Helper()
	a, err := NewAdapter(logger.Nop(), testConfig(), tr, nil)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return a
}

const validJSON = `{"slide_mappings":[{"output_slide_index":0,"layout_index":0,"layout_name":"Title and Content","element_mappings":[
{"source_element_id":"slide_0_shape_2","target_placeholder_id":"layout_0_ph_0","action":"MAP","reason":"title"},
{"source_element_id":"slide_0_shape_3","target_placeholder_id":"layout_0_ph_1","action":"MAP","reason":"body"}]}],
"skipped_elements":[],"warnings":[]}`

func TestProposeReturnsValidatedResult(t *testing.T) {
	tr := &scripted{out: validJSON}
	els, phs := inventory()
	p, err := newAdapter(t, tr).Propose(context.Background(), els, phs)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if p.Raw != validJSON || len(p.Result.SlideMappings[0].ElementMappings) != 2 {
		t.Fatalf("unexpected proposal: %+v", p)
	}
	if tr.seen.Temperature != 0 || tr.seen.MaxTokens != 2000 {
		t.Fatalf("config not passed through: %+v", tr.seen)
	}
}

func TestProposeWrapsTransportFailures(t *testing.T) {
	els, phs := inventory()
	_, err := newAdapter(t, &scripted{err: errors.New("connection reset")}).Propose(context.Background(), els, phs)
	var te *rebuild.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if rebuild.IsDeterministic(err) {
		t.Fatalf("transport failures must stay retryable")
	}
}

func TestProposeTimeoutIsTransportError(t *testing.T) {
	a := newAdapter(t, &scripted{block: true})
	a.cfg.Timeout = 20 * time.Millisecond
	els, phs := inventory()
	_, err := a.Propose(context.Background(), els, phs)
	var te *rebuild.TransportError
	if !errors.As(err, &te) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want TransportError wrapping deadline, got %v", err)
	}
}

func TestProposeSurfacesRawOutputOnRejection(t *testing.T) {
	raw := "Sure! Here is your mapping."
	els, phs := inventory()
	_, err := newAdapter(t, &scripted{out: raw}).Propose(context.Background(), els, phs)
	var me rebuild.MappingError
	if !errors.As(err, &me) {
		t.Fatalf("want MappingError, got %v", err)
	}
	if me.Stage() != rebuild.KindFormat || me.RawOutput() != raw {
		t.Fatalf("stage=%s raw=%q", me.Stage(), me.RawOutput())
	}
}

func TestProposeRejectsUnknownPlaceholder(t *testing.T) {
	raw := strings.Replace(validJSON, "layout_0_ph_1", "layout_9_ph_9", 1)
	els, phs := inventory()
	_, err := newAdapter(t, &scripted{out: raw}).Propose(context.Background(), els, phs)
	if rebuild.Classify(err) != rebuild.KindReference {
		t.Fatalf("want reference failure, got %v", err)
	}
}

func TestMockProviderRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = "mock"
	a, err := Open(context.Background(), logger.Nop(), nil, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	els, phs := inventory()
	p, err := a.Propose(context.Background(), els, phs)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	got := p.Result.SlideMappings[0].ElementMappings
	if len(got) != 2 || *got[0].TargetPlaceholderID != "layout_0_ph_0" || *got[1].TargetPlaceholderID != "layout_0_ph_1" {
		t.Fatalf("mock mapping: %+v", got)
	}
}

func TestRegistry(t *testing.T) {
	if _, err := NewRegistry(Provider{Name: "a", New: DefaultRegistry().providers["mock"].New}, Provider{Name: "A", New: DefaultRegistry().providers["mock"].New}); err == nil {
		t.Fatalf("duplicate provider accepted")
	}
	if _, err := DefaultRegistry().Open(context.Background(), logger.Nop(), "carrier-pigeon"); err == nil {
		t.Fatalf("unknown provider accepted")
	}
	if got := strings.Join(DefaultRegistry().Names(), ","); got != "gemini,mock,openai" {
		t.Fatalf("names: %s", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 5 * time.Second
	if cfg.Validate() == nil {
		t.Fatalf("timeout below minimum accepted")
	}
	cfg = testConfig()
	cfg.MaxTokens = 20000
	if cfg.Validate() == nil {
		t.Fatalf("max tokens above maximum accepted")
	}
}
