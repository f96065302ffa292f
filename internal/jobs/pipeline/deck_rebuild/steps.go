package deck_rebuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deckrebuild-backend/internal/pkg/errors"
)

func (r *run) dbc(ctx context.Context) dbctx.Context { return dbctx.Context{Ctx: ctx} }

func (r *run) validate(ctx context.Context) error {
	job := r.jc.Job
	deck, err := r.p.inputs.GetDeckFile(r.dbc(ctx), job.DeckFileID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return &rebuild.PrerequisiteError{What: fmt.Sprintf("source file %s", job.DeckFileID)}
	}
	if err != nil {
		return fmt.Errorf("load source file: %w", err)
	}
	tv, err := r.p.inputs.GetTemplateVersion(r.dbc(ctx), job.TemplateVersionID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return &rebuild.PrerequisiteError{What: fmt.Sprintf("template version %s", job.TemplateVersionID)}
	}
	if err != nil {
		return fmt.Errorf("load template version: %w", err)
	}
	if !tv.Published() {
		return &rebuild.PrerequisiteError{What: fmt.Sprintf("published template version (%s v%d is a draft)", tv.Template, tv.Version)}
	}
	r.deck, r.template = deck, tv
	return nil
}

// download fetches both inputs concurrently.
func (r *run) download(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := r.fetch(gctx, "source file", r.deck.StorageKey)
		r.deckData = data
		return err
	})
	g.Go(func() error {
		data, err := r.fetch(gctx, "template file", r.template.StorageKey)
		r.tplData = data
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.recordArtifact(ctx, types.ArtifactInputDeck, r.deck.OriginalName, r.deck.StorageKey, pptxContentType, int64(len(r.deckData))); err != nil {
		return err
	}
	tplName := fmt.Sprintf("%s v%d", r.template.Template, r.template.Version)
	return r.recordArtifact(ctx, types.ArtifactInputTemplate, tplName, r.template.StorageKey, "", int64(len(r.tplData)))
}

func (r *run) fetch(ctx context.Context, what, key string) ([]byte, error) {
	data, err := r.p.blobs.Get(ctx, key)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, &rebuild.PrerequisiteError{What: fmt.Sprintf("%s object %s", what, key)}
	}
	if err != nil {
		return nil, &rebuild.TransportError{Op: "storage get", Err: err}
	}
	return data, nil
}

func (r *run) extractSource(context.Context) error {
	src, err := r.p.extractor.Deck(r.deckData)
	if err != nil {
		return err
	}
	r.src = src
	r.result.SourceElements = len(src.Elements)
	return nil
}

func (r *run) extractTemplate(context.Context) error {
	tpl, err := r.p.extractor.Template(r.tplData)
	if err != nil {
		return err
	}
	r.tpl = tpl
	r.result.TemplatePlaceholders = len(tpl.Placeholders)
	return nil
}

// obtainMapping reuses a mapping persisted by an earlier attempt so the oracle
// is called at most once per job while the stored mapping stays valid.
func (r *run) obtainMapping(ctx context.Context) error {
	key := MappingKey(r.jc.Job.ID)
	m, err := r.storedMapping(ctx)
	if err != nil {
		return err
	}
	if m != nil {
		r.result.MappingReused = true
	} else {
		prop, err := r.p.mapper.Propose(ctx, r.src.Elements, r.tpl.Placeholders)
		if err != nil {
			var me rebuild.MappingError
			if errors.As(err, &me) {
				r.saveFailedMapping(ctx, me)
			}
			return err
		}
		pretty, err := json.MarshalIndent(prop.Result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode mapping: %w", err)
		}
		if err := r.p.blobs.Put(ctx, key, pretty, jsonContentType); err != nil {
			return &rebuild.TransportError{Op: "storage put", Err: err}
		}
		if err := r.recordArtifact(ctx, types.ArtifactMappingJSON, MappingName, key, jsonContentType, int64(len(pretty))); err != nil {
			return err
		}
		m = prop.Result
	}
	r.mapping = m
	r.result.MappingKey = key
	r.result.MappingSlides = len(m.SlideMappings)
	r.result.MappingWarnings = m.Warnings
	return nil
}

// storedMapping returns nil when there is nothing reusable.
func (r *run) storedMapping(ctx context.Context) (*rebuild.MappingResult, error) {
	a, err := r.p.artifacts.Get(r.dbc(ctx), r.jc.Job.ID, types.ArtifactMappingJSON, MappingName)
	if err != nil {
		return nil, fmt.Errorf("load mapping artifact: %w", err)
	}
	if a == nil {
		return nil, nil
	}
	raw, err := r.p.blobs.Get(ctx, a.StorageKey)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		r.log.Warn("Mapping artifact points at a missing object", "key", a.StorageKey)
		return nil, nil
	}
	if err != nil {
		return nil, &rebuild.TransportError{Op: "storage get", Err: err}
	}
	m, err := r.p.mapper.Validate(string(raw), r.src.Elements, r.tpl.Placeholders)
	if err != nil {
		r.log.Warn("Stored mapping no longer valid; requesting a new one", "error", rebuild.TruncateError(err))
		return nil, nil
	}
	r.log.Info("Reusing stored mapping", "key", a.StorageKey)
	return m, nil
}

type failedMapping struct {
	Stage     rebuild.Kind `json:"stage"`
	Error     string       `json:"error"`
	Errors    []string     `json:"errors"`
	RawOutput string       `json:"raw_output"`
}

// saveFailedMapping keeps the full diagnostics that the bounded job error
// cannot hold. Failures here are logged and do not replace the mapping error.
func (r *run) saveFailedMapping(ctx context.Context, me rebuild.MappingError) {
	key := FailedMappingKey(r.jc.Job.ID)
	body, err := json.MarshalIndent(failedMapping{
		Stage:     me.Stage(),
		Error:     me.Error(),
		Errors:    me.Problems(),
		RawOutput: me.RawOutput(),
	}, "", "  ")
	if err == nil {
		err = r.p.blobs.Put(ctx, key, body, jsonContentType)
	}
	if err == nil {
		err = r.recordArtifact(ctx, types.ArtifactLog, FailedMappingName, key, jsonContentType, int64(len(body)))
	}
	if err != nil {
		r.log.Warn("Could not store failed mapping", "key", key, "error", err)
	}
}

func (r *run) apply(ctx context.Context) error {
	out, err := r.p.applier.ApplyIndexed(ctx, r.src, r.tpl, r.mapping)
	if err != nil {
		return err
	}
	r.result.ApplyStats = out.Stats
	r.deckData = out.Data
	return nil
}

// upload is the last step; only a stored output object completes a job.
func (r *run) upload(ctx context.Context) error {
	key := OutputKey(r.jc.Job.ID)
	if err := r.p.blobs.Put(ctx, key, r.deckData, pptxContentType); err != nil {
		return &rebuild.TransportError{Op: "storage put", Err: err}
	}
	if err := r.recordArtifact(ctx, types.ArtifactOutputDeck, OutputName, key, pptxContentType, int64(len(r.deckData))); err != nil {
		return err
	}
	r.result.OutputKey = key
	return nil
}

// recordArtifact upserts the artifact row. A negative size only creates a
// missing row and leaves an existing one untouched.
func (r *run) recordArtifact(ctx context.Context, kind types.ArtifactKind, name, key, contentType string, size int64) error {
	if size < 0 {
		existing, err := r.p.artifacts.Get(r.dbc(ctx), r.jc.Job.ID, kind, name)
		if err != nil {
			return fmt.Errorf("load %s artifact: %w", kind, err)
		}
		if existing != nil {
			return nil
		}
		size = 0
	}
	err := r.p.artifacts.Upsert(r.dbc(ctx), &types.JobArtifact{
		JobID:       r.jc.Job.ID,
		Kind:        kind,
		Name:        name,
		StorageKey:  key,
		ContentType: contentType,
		SizeBytes:   size,
	})
	if err != nil {
		return fmt.Errorf("record %s artifact: %w", kind, err)
	}
	return nil
}
