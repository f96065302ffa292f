package deck_rebuild

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepos "github.com/yungbote/deckrebuild-backend/internal/data/repos/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/data/repos/testutil"
	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	jobrt "github.com/yungbote/deckrebuild-backend/internal/jobs/runtime"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/apply"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/oracle"
	"github.com/yungbote/deckrebuild-backend/internal/ooxml/ooxmltest"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/blob"
)

const unknownElementJSON = `{"slide_mappings":[{"output_slide_index":0,"layout_index":0,"layout_name":"Title and Content","element_mappings":[
{"source_element_id":"slide_0_shape_999","target_placeholder_id":"layout_0_ph_0","action":"MAP","reason":"title"}]}],
"skipped_elements":[],"warnings":[]}`

type countingExtractor struct {
	decks, templates atomic.Int32
}

func (c *countingExtractor) Deck(data []byte) (*extract.DeckIndex, error) {
	c.decks.Add(1)
	return extract.Parser{}.Deck(data)
}

func (c *countingExtractor) Template(data []byte) (*extract.TemplateIndex, error) {
	c.templates.Add(1)
	return extract.Parser{}.Template(data)
}

// countingTransport answers like the mock provider unless out or err is set.
type countingTransport struct {
	calls  atomic.Int32
	out    string
	err    error
	onCall func()
}

func (c *countingTransport) Call(ctx context.Context, system, user string, cfg oracle.Config) (string, error) {
	c.calls.Add(1)
	if c.onCall != nil {
		c.onCall()
	}
	if c.err != nil {
		return "", c.err
	}
	if c.out != "" {
		return c.out, nil
	}
	return oracle.Mock{}.Call(ctx, system, user, cfg)
}

// flakyStore fails the first n puts of one key.
type flakyStore struct {
	blob.Store
	key   string
	fails int
}

func (s *flakyStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == s.key && s.fails > 0 {
		s.fails--
		return errors.New("503 backend unavailable")
	}
	return s.Store.Put(ctx, key, data, contentType)
}

type env struct {
	t         *testing.T
	jobs      jobrepos.RebuildJobRepo
	events    jobrepos.JobEventRepo
	artifacts jobrepos.JobArtifactRepo
	inputs    jobrepos.InputRepo
	mem       *blob.Memory
	store     blob.Store
	extractor *countingExtractor
	transport *countingTransport
	scratch   string
	deck      *types.DeckFile
	template  *types.TemplateVersion

	retryDeterministic bool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	e := &env{
		t:         t,
		jobs:      jobrepos.NewRebuildJobRepo(db, log),
		events:    jobrepos.NewJobEventRepo(db, log),
		artifacts: jobrepos.NewJobArtifactRepo(db, log),
		inputs:    jobrepos.NewInputRepo(db, log),
		mem:       blob.NewMemory(),
		extractor: &countingExtractor{},
		transport: &countingTransport{},
		scratch:   t.TempDir(),
	}
	e.store = e.mem

	src := ooxmltest.New()
	src.AddSlide(0).Title(2, "Hello").Body(3, "World")
	tpl := ooxmltest.New()
	tpl.Template = true
	tpl.AddSlide(0).Title(2, "Sample")

	ctx := context.Background()
	e.put("decks/source.pptx", src.Bytes())
	e.put("templates/corporate-v3.potx", tpl.Bytes())

	published := time.Now()
	e.deck = &types.DeckFile{OriginalName: "source.pptx", StorageKey: "decks/source.pptx"}
	e.template = &types.TemplateVersion{Template: "corporate", Version: 3, StorageKey: "templates/corporate-v3.potx", PublishedAt: &published}
	if err := e.inputs.CreateDeckFile(dbctx.Context{Ctx: ctx}, e.deck); err != nil {
		t.Fatalf("CreateDeckFile: %v", err)
	}
	if err := e.inputs.CreateTemplateVersion(dbctx.Context{Ctx: ctx}, e.template); err != nil {
		t.Fatalf("CreateTemplateVersion: %v", err)
	}
	return e
}

func (e *env) put(key string, data []byte) {
	e.t.Helper()
	if err := e.mem.Put(context.Background(), key, data, ""); err != nil {
		e.t.Fatalf("Put %s: %v", key, err)
	}
}

func (e *env) pipeline() *Pipeline {
	e.t.Helper()
	adapter, err := oracle.NewAdapter(logger.Nop(), oracle.Config{
		Provider:  "mock",
		Timeout:   oracle.MinTimeout,
		MaxTokens: 4000,
	}, e.transport, nil)
	if err != nil {
		e.t.Fatalf("NewAdapter: %v", err)
	}
	return New(logger.Nop(), e.inputs, e.artifacts, e.store, e.extractor, adapter, apply.New(logger.Nop()), e.scratch)
}

func (e *env) createJob(options string) uuid.UUID {
	e.t.Helper()
	job := &types.RebuildJob{DeckFileID: e.deck.ID, TemplateVersionID: e.template.ID}
	if options != "" {
		job.Options = datatypes.JSON(options)
	}
	if _, err := e.jobs.Create(dbctx.Context{Ctx: context.Background()}, []*types.RebuildJob{job}); err != nil {
		e.t.Fatalf("Create: %v", err)
	}
	return job.ID
}

// attempt claims the job the way the worker does and runs one attempt.
func (e *env) attempt(id uuid.UUID) *types.RebuildJob {
	e.t.Helper()
	ctx := context.Background()
	job, err := e.jobs.ClaimByID(dbctx.Context{Ctx: ctx}, id, jobrepos.ClaimPolicy{MaxAttempts: 3, StaleRunning: time.Hour})
	if err != nil || job == nil {
		e.t.Fatalf("ClaimByID: job=%v err=%v", job, err)
	}
	jc := jobrt.NewContext(ctx, logger.Nop(), job, e.jobs, e.events, nil)
	jc.RetryDeterministic = e.retryDeterministic
	if err := e.pipeline().Run(jc); err != nil {
		e.t.Fatalf("Run: %v", err)
	}
	return e.load(id)
}

func (e *env) load(id uuid.UUID) *types.RebuildJob {
	e.t.Helper()
	job, err := e.jobs.Load(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		e.t.Fatalf("Load: %v", err)
	}
	return job
}

func (e *env) result(job *types.RebuildJob) Result {
	e.t.Helper()
	var r Result
	if err := json.Unmarshal(job.Result, &r); err != nil {
		e.t.Fatalf("decode result %s: %v", job.Result, err)
	}
	return r
}

func (e *env) eventStages(id uuid.UUID) []string {
	e.t.Helper()
	evs, err := e.events.List(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		e.t.Fatalf("List events: %v", err)
	}
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type+":"+ev.Stage)
	}
	return out
}

func (e *env) artifactKinds(id uuid.UUID) map[types.ArtifactKind]string {
	e.t.Helper()
	as, err := e.artifacts.List(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		e.t.Fatalf("List artifacts: %v", err)
	}
	out := map[types.ArtifactKind]string{}
	for _, a := range as {
		out[a.Kind] = a.StorageKey
	}
	return out
}

func TestRunRebuildsDeck(t *testing.T) {
	e := newEnv(t)
	id := e.createJob("")

	job := e.attempt(id)
	if job.Status != types.StatusSucceeded || job.Progress != 100 || job.Stage != "done" {
		t.Fatalf("job not succeeded: status=%s stage=%s progress=%d error=%s", job.Status, job.Stage, job.Progress, job.Error)
	}
	if job.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}

	wantEvents := []string{
		"PROGRESS:validate", "PROGRESS:download", "PROGRESS:extract_source", "PROGRESS:extract_template",
		"PROGRESS:mapping", "PROGRESS:apply", "PROGRESS:upload", "SUCCEEDED:done",
	}
	if diff := cmp.Diff(wantEvents, e.eventStages(id)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}

	res := e.result(job)
	if res.SlidesCreated != 1 || res.ElementsMapped != 2 || res.ElementsSkipped != 0 {
		t.Fatalf("unexpected counters: %+v", res.ApplyStats)
	}
	if res.OutputKey != OutputKey(id) || res.MappingKey != MappingKey(id) || res.DryRun || res.MappingReused {
		t.Fatalf("unexpected result: %+v", res)
	}

	wantArtifacts := map[types.ArtifactKind]string{
		types.ArtifactInputDeck:     "decks/source.pptx",
		types.ArtifactInputTemplate: "templates/corporate-v3.potx",
		types.ArtifactMappingJSON:   MappingKey(id),
		types.ArtifactOutputDeck:    OutputKey(id),
	}
	if diff := cmp.Diff(wantArtifacts, e.artifactKinds(id)); diff != "" {
		t.Fatalf("artifacts (-want +got):\n%s", diff)
	}

	out, err := e.mem.Get(context.Background(), OutputKey(id))
	if err != nil {
		t.Fatalf("Get output: %v", err)
	}
	els, err := extract.Elements(out)
	if err != nil {
		t.Fatalf("re-extract output: %v", err)
	}
	var texts []string
	for _, el := range els {
		texts = append(texts, el.TextPreview)
	}
	if diff := cmp.Diff([]string{"Hello", "World"}, texts); diff != "" {
		t.Fatalf("output text (-want +got):\n%s", diff)
	}

	mappingJSON, err := e.mem.Get(context.Background(), MappingKey(id))
	if err != nil {
		t.Fatalf("Get mapping: %v", err)
	}
	if !strings.Contains(string(mappingJSON), "\n  \"slide_mappings\"") {
		t.Fatalf("mapping artifact not pretty-printed:\n%s", mappingJSON)
	}

	entries, err := os.ReadDir(e.scratch)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch dir not cleaned: %d entries", len(entries))
	}
}

func TestRunKeepsInputsOutOfScratch(t *testing.T) {
	e := newEnv(t)
	id := e.createJob("")

	var dirs []string
	var files int
	e.transport.onCall = func() {
		entries, err := os.ReadDir(e.scratch)
		if err != nil {
			t.Errorf("ReadDir: %v", err)
			return
		}
		for _, ent := range entries {
			dirs = append(dirs, ent.Name())
			inner, err := os.ReadDir(filepath.Join(e.scratch, ent.Name()))
			if err != nil {
				t.Errorf("ReadDir %s: %v", ent.Name(), err)
				continue
			}
			files += len(inner)
		}
	}

	job := e.attempt(id)
	if job.Status != types.StatusSucceeded {
		t.Fatalf("status = %s: %s", job.Status, job.Error)
	}
	if len(dirs) != 1 || !strings.HasPrefix(dirs[0], "rebuild-"+id.String()+"-") {
		t.Fatalf("scratch during mapping = %v", dirs)
	}
	if files != 0 {
		t.Fatalf("scratch held %d files during mapping, want 0", files)
	}
}

func TestRunIsIdempotentOnceOutputExists(t *testing.T) {
	e := newEnv(t)
	id := e.createJob("")
	if job := e.attempt(id); job.Status != types.StatusSucceeded {
		t.Fatalf("first run: %s %s", job.Status, job.Error)
	}
	decks, templates, calls := e.extractor.decks.Load(), e.extractor.templates.Load(), e.transport.calls.Load()

	// A redelivered task for a job whose output is already stored.
	if err := e.jobs.UpdateFields(dbctx.Context{Ctx: context.Background()}, id, map[string]interface{}{
		"status": types.StatusQueued,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	job := e.attempt(id)
	if job.Status != types.StatusSucceeded {
		t.Fatalf("second run: %s %s", job.Status, job.Error)
	}
	if e.extractor.decks.Load() != decks || e.extractor.templates.Load() != templates {
		t.Fatalf("second run extracted again")
	}
	if e.transport.calls.Load() != calls {
		t.Fatalf("second run called the oracle again")
	}
	res := e.result(job)
	if !res.AlreadyCompleted || res.OutputKey != OutputKey(id) || res.SlidesCreated != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunDryRunStopsBeforeApply(t *testing.T) {
	e := newEnv(t)
	id := e.createJob(`{"dry_run":true}`)

	job := e.attempt(id)
	if job.Status != types.StatusSucceeded || job.Stage != "dry_run" {
		t.Fatalf("dry run: status=%s stage=%s error=%s", job.Status, job.Stage, job.Error)
	}
	res := e.result(job)
	if !res.DryRun || res.MappingSlides != 1 || res.OutputKey != "" || res.SlidesCreated != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if ok, _ := e.mem.Exists(context.Background(), OutputKey(id)); ok {
		t.Fatalf("dry run wrote an output deck")
	}
	if _, ok := e.artifactKinds(id)[types.ArtifactMappingJSON]; !ok {
		t.Fatalf("dry run did not keep the mapping")
	}
}

func TestRunRetryReusesStoredMapping(t *testing.T) {
	e := newEnv(t)
	id := e.createJob("")
	e.store = &flakyStore{Store: e.mem, key: OutputKey(id), fails: 1}

	job := e.attempt(id)
	if job.Status != types.StatusFailed || job.Stage != "upload" {
		t.Fatalf("first attempt: status=%s stage=%s", job.Status, job.Stage)
	}
	if job.NonRetryable || job.ErrorKind != string(rebuild.KindTransport) {
		t.Fatalf("upload failure should be retryable: kind=%s non_retryable=%v", job.ErrorKind, job.NonRetryable)
	}
	if !strings.Contains(job.Error, "503") {
		t.Fatalf("error not recorded: %q", job.Error)
	}

	job = e.attempt(id)
	if job.Status != types.StatusSucceeded || job.Attempts != 2 {
		t.Fatalf("retry: status=%s attempts=%d error=%s", job.Status, job.Attempts, job.Error)
	}
	if got := e.transport.calls.Load(); got != 1 {
		t.Fatalf("oracle calls: want 1, got %d", got)
	}
	if !e.result(job).MappingReused {
		t.Fatalf("retry did not reuse the stored mapping")
	}
}

func TestRunInvalidMappingStoresDiagnostics(t *testing.T) {
	cases := []struct {
		name      string
		out       string
		kind      rebuild.Kind
		wantInLog string
	}{
		{"unknown element", unknownElementJSON, rebuild.KindReference, "Unknown source element: slide_0_shape_999"},
		{"not json", "Sure! Here is the mapping you asked for.", rebuild.KindFormat, "Sure! Here is the mapping"},
		{"schema", `{"slide_mappings":[]}`, rebuild.KindSchema, "slide_mappings"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.transport.out = tc.out
			id := e.createJob("")

			job := e.attempt(id)
			if job.Status != types.StatusFailed || job.Stage != "mapping" {
				t.Fatalf("status=%s stage=%s", job.Status, job.Stage)
			}
			if job.ErrorKind != string(tc.kind) || !job.NonRetryable {
				t.Fatalf("kind=%s non_retryable=%v", job.ErrorKind, job.NonRetryable)
			}
			if len([]rune(job.Error)) > rebuild.MaxErrorLen {
				t.Fatalf("error not bounded: %d runes", len([]rune(job.Error)))
			}

			kinds := e.artifactKinds(id)
			if kinds[types.ArtifactLog] != FailedMappingKey(id) {
				t.Fatalf("failed mapping artifact missing: %v", kinds)
			}
			if _, ok := kinds[types.ArtifactMappingJSON]; ok {
				t.Fatalf("invalid mapping was persisted for reuse")
			}
			raw, err := e.mem.Get(context.Background(), FailedMappingKey(id))
			if err != nil {
				t.Fatalf("Get failed mapping: %v", err)
			}
			var diag failedMapping
			if err := json.Unmarshal(raw, &diag); err != nil {
				t.Fatalf("decode failed mapping: %v", err)
			}
			if diag.Stage != tc.kind || diag.RawOutput != tc.out || len(diag.Errors) == 0 {
				t.Fatalf("unexpected diagnostics: %+v", diag)
			}
			if !strings.Contains(string(raw), tc.wantInLog) {
				t.Fatalf("diagnostics missing %q:\n%s", tc.wantInLog, raw)
			}

			stages := e.eventStages(id)
			if stages[len(stages)-1] != "FAILED:mapping" {
				t.Fatalf("last event: %v", stages)
			}

			// Non-retryable jobs are never claimed again.
			again, err := e.jobs.ClaimByID(dbctx.Context{Ctx: context.Background()}, id, jobrepos.ClaimPolicy{MaxAttempts: 3})
			if err != nil || again != nil {
				t.Fatalf("non-retryable job re-claimed: job=%v err=%v", again, err)
			}
		})
	}
}

func TestRunRetryDeterministicFailuresWhenEnabled(t *testing.T) {
	e := newEnv(t)
	e.retryDeterministic = true
	e.transport.out = unknownElementJSON
	id := e.createJob("")

	job := e.attempt(id)
	if job.Status != types.StatusFailed || job.NonRetryable {
		t.Fatalf("status=%s non_retryable=%v", job.Status, job.NonRetryable)
	}
	job = e.attempt(id)
	if job.Attempts != 2 || e.transport.calls.Load() != 2 {
		t.Fatalf("attempts=%d calls=%d", job.Attempts, e.transport.calls.Load())
	}
}

func TestRunTransportFailureIsRetryable(t *testing.T) {
	e := newEnv(t)
	e.transport.err = &rebuild.TransportError{Op: "oracle mock", Err: errors.New("502 bad gateway")}
	id := e.createJob("")

	job := e.attempt(id)
	if job.Status != types.StatusFailed || job.NonRetryable || job.ErrorKind != string(rebuild.KindTransport) {
		t.Fatalf("status=%s kind=%s non_retryable=%v", job.Status, job.ErrorKind, job.NonRetryable)
	}
	if _, ok := e.artifactKinds(id)[types.ArtifactLog]; ok {
		t.Fatalf("transport failure wrote a failed mapping artifact")
	}

	e.transport.err = nil
	if job := e.attempt(id); job.Status != types.StatusSucceeded {
		t.Fatalf("retry: %s %s", job.Status, job.Error)
	}
}

func TestRunPrerequisites(t *testing.T) {
	t.Run("draft template", func(t *testing.T) {
		e := newEnv(t)
		ctx := dbctx.Context{Ctx: context.Background()}
		draft := &types.TemplateVersion{Template: "corporate", Version: 4, StorageKey: "templates/corporate-v3.potx"}
		if err := e.inputs.CreateTemplateVersion(ctx, draft); err != nil {
			t.Fatalf("CreateTemplateVersion: %v", err)
		}
		job := &types.RebuildJob{DeckFileID: e.deck.ID, TemplateVersionID: draft.ID}
		if _, err := e.jobs.Create(ctx, []*types.RebuildJob{job}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		job = e.attempt(job.ID)
		if job.Status != types.StatusFailed || job.Stage != "validate" || job.ErrorKind != string(rebuild.KindPrerequisite) {
			t.Fatalf("status=%s stage=%s kind=%s", job.Status, job.Stage, job.ErrorKind)
		}
		if !job.NonRetryable || !strings.Contains(job.Error, "draft") {
			t.Fatalf("non_retryable=%v error=%q", job.NonRetryable, job.Error)
		}
	})

	t.Run("unknown source file", func(t *testing.T) {
		e := newEnv(t)
		e.deck = &types.DeckFile{ID: uuid.New()}
		job := e.attempt(e.createJob(""))
		if job.Stage != "validate" || job.ErrorKind != string(rebuild.KindPrerequisite) {
			t.Fatalf("stage=%s kind=%s", job.Stage, job.ErrorKind)
		}
	})

	t.Run("missing source object", func(t *testing.T) {
		e := newEnv(t)
		e.mem = blob.NewMemory()
		e.store = e.mem
		job := e.attempt(e.createJob(""))
		if job.Status != types.StatusFailed || job.Stage != "download" || job.ErrorKind != string(rebuild.KindPrerequisite) {
			t.Fatalf("status=%s stage=%s kind=%s", job.Status, job.Stage, job.ErrorKind)
		}
		if e.extractor.decks.Load() != 0 {
			t.Fatalf("extraction ran without inputs")
		}
	})

	t.Run("malformed deck", func(t *testing.T) {
		e := newEnv(t)
		e.put("decks/source.pptx", []byte("not a zip"))
		job := e.attempt(e.createJob(""))
		if job.Status != types.StatusFailed || job.Stage != "extract_source" || job.ErrorKind != string(rebuild.KindParse) {
			t.Fatalf("status=%s stage=%s kind=%s", job.Status, job.Stage, job.ErrorKind)
		}
		if e.transport.calls.Load() != 0 {
			t.Fatalf("oracle called after a parse failure")
		}
	})
}
