package converter_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"ebookconverter/internal/catalog"
	"ebookconverter/internal/config"
	"ebookconverter/internal/converter"
	"ebookconverter/internal/jobqueue"
	"ebookconverter/internal/notifications"
	"ebookconverter/internal/outputtype"
	"ebookconverter/internal/services"
	"ebookconverter/internal/services/ebookmaker"
	"ebookconverter/internal/testsupport"
)

type fakeEngine struct {
	exitCode int
	calls    int
}

func (f *fakeEngine) Run(_ context.Context, payload []byte, _ ebookmaker.RunOptions) (ebookmaker.Result, error) {
	f.calls++
	if f.exitCode != 0 {
		return ebookmaker.Result{ExitCode: f.exitCode}, nil
	}
	var jobs []jobqueue.Job
	if err := json.Unmarshal(payload, &jobs); err != nil {
		return ebookmaker.Result{}, err
	}
	for _, job := range jobs {
		if err := os.WriteFile(filepath.Join(job.OutputDir, job.OutputFile), []byte(job.Type), 0o644); err != nil {
			return ebookmaker.Result{}, err
		}
	}
	return ebookmaker.Result{}, nil
}

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	cfg      *config.Config
	store    *catalog.SQLiteStore
	engine   *fakeEngine
	notifier *recordingNotifier
	deps     converter.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	reg, err := outputtype.Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	f := &fixture{cfg: cfg, store: store, engine: &fakeEngine{}, notifier: &recordingNotifier{}}
	f.deps = converter.Deps{Catalog: store, Registry: reg, Runner: f.engine, Notifier: f.notifier}
	return f
}

// seedHTMLEntry registers an html source for id in the catalog and on disk.
func (f *fixture) seedHTMLEntry(t *testing.T, id int) {
	t.Helper()
	idStr := strconv.Itoa(id)
	modified := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	testsupport.SeedEntry(t, f.store, id, catalog.File{
		Path:     "files/" + idStr + "/" + idStr + "-h/" + idStr + "-h.htm",
		FileType: "html",
		Encoding: "iso-8859-1",
		Size:     1024,
		Modified: modified,
	})
	testsupport.WriteFileAt(t, filepath.Join(f.cfg.Paths.FilesDir, "files", idStr, idStr+"-h", idStr+"-h.htm"), modified)
}

func registeredPaths(t *testing.T, store *catalog.SQLiteStore, id int) []string {
	t.Helper()
	files, err := store.ListFiles(context.Background(), id)
	if err != nil {
		t.Fatalf("ListFiles returned error: %v", err)
	}
	var out []string
	for _, file := range files {
		if strings.HasPrefix(file.Path, "cache/") {
			out = append(out, file.Path)
		}
	}
	return out
}

func TestRunBuildsAndRegistersThenSettles(t *testing.T) {
	f := newFixture(t)
	f.seedHTMLEntry(t, 4554)

	opts := converter.Options{
		Selection: converter.Selection{Range: "99,4554"},
		Make:      []string{"epub.images"},
		RunID:     "test-run",
	}
	summary, err := converter.Run(context.Background(), f.cfg, f.deps, opts, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Processed != 1 || summary.Missing != 1 {
		t.Fatalf("unexpected entry counts: %+v", summary)
	}
	if summary.Jobs != 1 || summary.Batches != 1 || summary.FailedBatches != 0 {
		t.Fatalf("unexpected job counts: %+v", summary)
	}
	if got := registeredPaths(t, f.store, 4554); !slices.Equal(got, []string{"cache/epub/4554/pg4554-images.epub"}) {
		t.Fatalf("unexpected registered artifacts: %v", got)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != notifications.EventRunCompleted {
		t.Fatalf("expected run completed notification, got %v", f.notifier.events)
	}

	summary, err = converter.Run(context.Background(), f.cfg, f.deps, opts, nil)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if summary.Jobs != 0 || summary.Batches != 0 {
		t.Fatalf("expected current artifact to need no work, got %+v", summary)
	}
	if f.engine.calls != 1 {
		t.Fatalf("expected engine to run once across both runs, got %d", f.engine.calls)
	}
}

func TestRunDryRunCollectsPlans(t *testing.T) {
	f := newFixture(t)
	f.seedHTMLEntry(t, 4554)
	f.seedHTMLEntry(t, 4555)

	summary, err := converter.Run(context.Background(), f.cfg, f.deps, converter.Options{
		Selection:       converter.Selection{Range: "4554-"},
		Make:            []string{"epub"},
		EntriesPerBatch: 2,
		DryRun:          true,
	}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if f.engine.calls != 0 {
		t.Fatal("dry run must not call the engine")
	}
	if len(summary.Plans) != 2 || summary.Jobs != 4 {
		t.Fatalf("expected two plans with two jobs each, got %+v", summary)
	}
	if got := summary.Plans[0].JobTypes(); !slices.Equal(got, []string{"epub.noimages", "epub.images"}) {
		t.Fatalf("unexpected planned types: %v", got)
	}
	if len(f.notifier.events) != 0 {
		t.Fatalf("dry run must not notify, got %v", f.notifier.events)
	}
	if testsupport.Exists(f.cfg.EntryCacheDir(4554)) {
		t.Fatal("dry run must not create output directories")
	}
}

func TestRunStopsOnBatchFailure(t *testing.T) {
	f := newFixture(t)
	f.seedHTMLEntry(t, 11)
	f.seedHTMLEntry(t, 12)
	f.engine.exitCode = 1

	opts := converter.Options{
		Selection: converter.Selection{Range: "11-12"},
		Make:      []string{"epub.images"},
	}
	summary, err := converter.Run(context.Background(), f.cfg, f.deps, opts, nil)
	if err != nil {
		t.Fatalf("failed batches without --stop should not fail the run: %v", err)
	}
	if summary.FailedBatches != 2 || f.engine.calls != 2 {
		t.Fatalf("expected both batches to run and fail, got %+v", summary)
	}

	f.engine.calls = 0
	opts.Stop = true
	_, err = converter.Run(context.Background(), f.cfg, f.deps, opts, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error with --stop, got %v", err)
	}
	if f.engine.calls != 1 {
		t.Fatalf("expected run to stop after the first batch, got %d calls", f.engine.calls)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	f.seedHTMLEntry(t, 11)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := converter.Run(ctx, f.cfg, f.deps, converter.Options{
		Selection: converter.Selection{Range: "11"},
		Make:      []string{"epub.images"},
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if f.engine.calls != 0 {
		t.Fatal("engine must not run after cancellation")
	}
}

func TestRunRejectsBadTypesAndEmptySelection(t *testing.T) {
	f := newFixture(t)

	_, err := converter.Run(context.Background(), f.cfg, f.deps, converter.Options{
		Selection: converter.Selection{Range: "1"},
		Make:      []string{"epub.bogus"},
	}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}

	_, err = converter.Run(context.Background(), f.cfg, f.deps, converter.Options{
		Make: []string{"epub.images"},
	}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty selection, got %v", err)
	}
}

func TestResolveTypesMergesBuildIntoMake(t *testing.T) {
	reg, err := outputtype.Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	mk, bd, err := converter.ResolveTypes(reg, []string{"kindle.images"}, []string{"epub.images"})
	if err != nil {
		t.Fatalf("ResolveTypes returned error: %v", err)
	}
	if !slices.Equal(mk, []string{"epub.images", "kindle.images"}) {
		t.Fatalf("unexpected make list: %v", mk)
	}
	if !slices.Equal(bd, []string{"epub.images"}) {
		t.Fatalf("unexpected build list: %v", bd)
	}

	if _, _, err := converter.ResolveTypes(reg, nil, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for no types, got %v", err)
	}
}
