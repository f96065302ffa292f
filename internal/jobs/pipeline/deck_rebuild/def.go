package deck_rebuild

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	jobrepos "github.com/yungbote/deckrebuild-backend/internal/data/repos/jobs"
	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/apply"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/oracle"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/blob"
)

// Mapper is the oracle side of the pipeline. *oracle.Adapter satisfies it.
type Mapper interface {
	Propose(ctx context.Context, elements []rebuild.DeckElement, placeholders []rebuild.TemplatePlaceholder) (*oracle.Proposal, error)
	Validate(raw string, elements []rebuild.DeckElement, placeholders []rebuild.TemplatePlaceholder) (*rebuild.MappingResult, error)
}

type Pipeline struct {
	log        *logger.Logger
	inputs     jobrepos.InputRepo
	artifacts  jobrepos.JobArtifactRepo
	blobs      blob.Store
	extractor  extract.Extractor
	mapper     Mapper
	applier    *apply.Applier
	scratchDir string
	tracer     trace.Tracer
}

func New(
	baseLog *logger.Logger,
	inputs jobrepos.InputRepo,
	artifacts jobrepos.JobArtifactRepo,
	blobs blob.Store,
	extractor extract.Extractor,
	mapper Mapper,
	applier *apply.Applier,
	scratchDir string,
) *Pipeline {
	if extractor == nil {
		extractor = extract.Parser{}
	}
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Pipeline{
		log:        baseLog.With("job", types.JobTypeDeckRebuild),
		inputs:     inputs,
		artifacts:  artifacts,
		blobs:      blobs,
		extractor:  extractor,
		mapper:     mapper,
		applier:    applier,
		scratchDir: scratchDir,
		tracer:     otel.Tracer("deckrebuild/jobs/deck_rebuild"),
	}
}

func (p *Pipeline) Type() string { return types.JobTypeDeckRebuild }
