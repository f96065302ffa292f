package deck_rebuild

import (
	"context"
	"encoding/json"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	jobrt "github.com/yungbote/deckrebuild-backend/internal/jobs/runtime"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// Result is stored on the job record when the job succeeds.
type Result struct {
	DryRun               bool `json:"dry_run"`
	AlreadyCompleted     bool `json:"already_completed,omitempty"`
	MappingReused        bool `json:"mapping_reused"`
	SourceElements       int  `json:"source_elements"`
	TemplatePlaceholders int  `json:"template_placeholders"`
	MappingSlides        int  `json:"mapping_slides"`
	rebuild.ApplyStats
	MappingWarnings []string `json:"mapping_warnings"`
	MappingKey      string   `json:"mapping_key,omitempty"`
	OutputKey       string   `json:"output_key,omitempty"`
}

// run carries the state of one attempt between steps.
type run struct {
	p      *Pipeline
	jc     *jobrt.Context
	log    *logger.Logger
	result *Result

	scratch  string
	deck     *types.DeckFile
	template *types.TemplateVersion
	deckData []byte
	tplData  []byte
	src      *extract.DeckIndex
	tpl      *extract.TemplateIndex
	mapping  *rebuild.MappingResult
}

/*
Run executes one attempt:

	validate -> download -> extract_source -> extract_template -> mapping
	-> [dry run stops] -> apply -> upload -> SUCCEEDED

Each step reports progress once. A failure at any step ends the attempt
through jc.Fail; Run itself only returns an error for programmer mistakes.
*/
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	job := jc.Job
	ctx, span := p.tracer.Start(jc.Ctx, "deck_rebuild.run", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	r := &run{
		p:      p,
		jc:     jc,
		log:    p.log.With("job_id", job.ID, "attempt", job.Attempts),
		result: &Result{DryRun: jc.OptionBool("dry_run")},
	}

	prior, err := r.completedOutput(ctx)
	if err != nil {
		span.RecordError(err)
		jc.Fail("idempotency", err)
		return nil
	}
	if prior != nil {
		r.log.Info("Output already uploaded; skipping rebuild", "output_key", prior.OutputKey)
		jc.Succeed("done", prior)
		return nil
	}

	scratch, err := os.MkdirTemp(p.scratchDir, "rebuild-"+job.ID.String()+"-")
	if err != nil {
		jc.Fail("scratch", err)
		return nil
	}
	r.scratch = scratch
	defer r.cleanup()

	steps := []struct {
		stage string
		pct   int
		msg   string
		fn    func(context.Context) error
	}{
		{"validate", 5, "Validating prerequisites", r.validate},
		{"download", 15, "Downloading deck and template", r.download},
		{"extract_source", 30, "Extracting source elements", r.extractSource},
		{"extract_template", 40, "Extracting template placeholders", r.extractTemplate},
		{"mapping", 60, "Obtaining mapping", r.obtainMapping},
	}
	for _, s := range steps {
		if !r.step(ctx, s.stage, s.pct, s.msg, s.fn) {
			return nil
		}
	}

	if r.result.DryRun {
		r.log.Info("Dry run complete", "mapping_slides", r.result.MappingSlides)
		jc.Succeed("dry_run", r.result)
		return nil
	}

	if !r.step(ctx, "apply", 80, "Applying mapping", r.apply) {
		return nil
	}
	if !r.step(ctx, "upload", 95, "Uploading rebuilt deck", r.upload) {
		return nil
	}
	jc.Succeed("done", r.result)
	return nil
}

func (r *run) step(ctx context.Context, stage string, pct int, msg string, fn func(context.Context) error) bool {
	r.jc.Progress(stage, pct, msg)
	ctx, span := r.p.tracer.Start(ctx, "deck_rebuild."+stage)
	defer span.End()

	if err := ctx.Err(); err != nil {
		r.jc.Fail(stage, err)
		return false
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, rebuild.TruncateError(err))
		span.SetAttributes(attribute.String("error.kind", string(rebuild.Classify(err))))
		r.jc.Fail(stage, err)
		return false
	}
	return true
}

func (r *run) cleanup() {
	if r.scratch == "" {
		return
	}
	if err := os.RemoveAll(r.scratch); err != nil {
		r.log.Warn("Scratch cleanup failed", "dir", r.scratch, "error", err)
	}
}

// completedOutput returns a result when a previous attempt already uploaded the output.
func (r *run) completedOutput(ctx context.Context) (*Result, error) {
	key := OutputKey(r.jc.Job.ID)
	ok, err := r.p.blobs.Exists(ctx, key)
	if err != nil {
		return nil, &rebuild.TransportError{Op: "storage exists", Err: err}
	}
	if !ok {
		return nil, nil
	}
	if err := r.recordArtifact(ctx, types.ArtifactOutputDeck, OutputName, key, pptxContentType, -1); err != nil {
		return nil, err
	}
	res := &Result{}
	if len(r.jc.Job.Result) > 0 {
		_ = json.Unmarshal(r.jc.Job.Result, res)
	}
	res.AlreadyCompleted = true
	res.OutputKey = key
	return res, nil
}
