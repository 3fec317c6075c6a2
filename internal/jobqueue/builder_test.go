package jobqueue_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"ebookconverter/internal/candidates"
	"ebookconverter/internal/config"
	"ebookconverter/internal/jobqueue"
	"ebookconverter/internal/outputtype"
	"ebookconverter/internal/testsupport"
)

type stubSource map[int][]candidates.Candidate

func (s stubSource) ListCandidates(_ context.Context, entryID int) []candidates.Candidate {
	return s[entryID]
}

type stubCatalog struct {
	nonText    bool
	nonTextErr error
	removed    []string
}

func (s *stubCatalog) IsNonText(context.Context, int) (bool, error) {
	return s.nonText, s.nonTextErr
}

func (s *stubCatalog) RemoveFile(_ context.Context, path string) error {
	s.removed = append(s.removed, path)
	return nil
}

func mustRegistry(t *testing.T) *outputtype.Registry {
	t.Helper()
	reg, err := outputtype.Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	return reg
}

// seedSource writes the catalog candidates to disk under FilesDir.
func seedSource(t *testing.T, cfg *config.Config, cands ...candidates.Candidate) []candidates.Candidate {
	t.Helper()
	for _, c := range cands {
		testsupport.WriteFileAt(t, filepath.Join(cfg.Paths.FilesDir, filepath.FromSlash(c.Path)), c.Modified)
	}
	return cands
}

func TestBuildQueuePrefersNonUTF8HTMLOverText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	modified := time.Now().Add(-48 * time.Hour)
	source := stubSource{4554: seedSource(t, cfg,
		candidates.Candidate{Path: "files/4554/4554-h/4554-h.htm", Format: "html/iso-8859-1", Modified: modified, Size: 1024},
		candidates.Candidate{Path: "files/4554/4554-8.txt", Format: "txt/utf-8", Modified: modified, Size: 512},
	)}

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{}, jobqueue.Options{Make: []string{"epub.images"}}, nil)
	plan, err := builder.BuildQueue(context.Background(), 4554)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if len(plan.Jobs) != 1 {
		t.Fatalf("expected one job, got %+v", plan.Outcomes)
	}

	job := plan.Jobs[0]
	htmlPath := filepath.Join(cfg.Paths.FilesDir, "files", "4554", "4554-h", "4554-h.htm")
	want := jobqueue.Job{
		Type:          "epub.images",
		MainType:      "epub",
		EntryID:       4554,
		OutputDir:     filepath.Join(cfg.Paths.CacheDir, "4554"),
		OutputFile:    "pg4554-images.epub",
		LogFile:       "pg4554.converter.log",
		URL:           "file://" + htmlPath,
		Include:       []string{"file://" + filepath.Dir(htmlPath) + "/*"},
		MaxDepth:      3,
		Source:        "https://www.gutenberg.org/files/4554/4554-h/4554-h.htm",
		OPFIdentifier: "https://www.gutenberg.org/ebooks/4554",
	}
	if !reflect.DeepEqual(job, want) {
		t.Fatalf("unexpected job:\n got %+v\nwant %+v", job, want)
	}
}

func TestBuildQueueChainsGeneratedOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := stubSource{9846: seedSource(t, cfg,
		candidates.Candidate{Path: "files/9846/9846-h/9846-h.htm", Format: "html/utf-8", Modified: time.Now().Add(-time.Hour)},
	)}

	opts := jobqueue.Options{Make: []string{"epub.images", "kindle.images"}}
	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{}, opts, nil)
	plan, err := builder.BuildQueue(context.Background(), 9846)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if got := plan.JobTypes(); !reflect.DeepEqual(got, []string{"epub.images", "kindle.images"}) {
		t.Fatalf("unexpected job types: %v", got)
	}

	epub := filepath.Join(cfg.Paths.CacheDir, "9846", "pg9846-images.epub")
	kindle := plan.Jobs[1]
	if kindle.URL != "file://"+epub {
		t.Fatalf("expected kindle job to consume generated epub, got %q", kindle.URL)
	}
	if kindle.Source != "https://www.gutenberg.org/cache/epub/9846/pg9846-images.epub" {
		t.Fatalf("unexpected kindle source url: %q", kindle.Source)
	}
	outcome, ok := plan.Outcome("kindle.images")
	if !ok || outcome.Source != epub {
		t.Fatalf("unexpected kindle outcome: %+v", outcome)
	}
}

func TestBuildQueueWithoutChainSourceSkipsDependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := stubSource{9846: seedSource(t, cfg,
		candidates.Candidate{Path: "files/9846/9846-h/9846-h.htm", Format: "html/utf-8", Modified: time.Now()},
	)}

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{}, jobqueue.Options{Make: []string{"kindle.images"}, DryRun: true}, nil)
	plan, err := builder.BuildQueue(context.Background(), 9846)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	outcome, _ := plan.Outcome("kindle.images")
	if outcome.Outcome != jobqueue.SkippedNoSource {
		t.Fatalf("expected no-source skip, got %+v", outcome)
	}
}

func TestBuildQueueNoSourceRemovesLeftoverArtifact(t *testing.T) {
	tests := []struct {
		name          string
		opts          jobqueue.Options
		wantDiskGone  bool
		wantCatalogRm bool
	}{
		{name: "normal", opts: jobqueue.Options{}, wantDiskGone: true, wantCatalogRm: true},
		{name: "shadow", opts: jobqueue.Options{Shadow: true}, wantDiskGone: true, wantCatalogRm: false},
		{name: "dry run", opts: jobqueue.Options{DryRun: true}, wantDiskGone: false, wantCatalogRm: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			artifact := filepath.Join(cfg.Paths.CacheDir, "9846", "pg9846-images.mobi")
			testsupport.WriteFile(t, artifact, 10)
			testsupport.WriteFile(t, artifact+".gz", 10)

			source := stubSource{9846: seedSource(t, cfg,
				candidates.Candidate{Path: "files/9846/9846-h/9846-h.htm", Format: "html/utf-8", Modified: time.Now()},
			)}
			cat := &stubCatalog{}
			tc.opts.Make = []string{"kindle.images"}
			builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, cat, tc.opts, nil)

			plan, err := builder.BuildQueue(context.Background(), 9846)
			if err != nil {
				t.Fatalf("BuildQueue returned error: %v", err)
			}
			if len(plan.Jobs) != 0 {
				t.Fatalf("expected no jobs, got %v", plan.JobTypes())
			}
			if outcome, _ := plan.Outcome("kindle.images"); outcome.Outcome != jobqueue.SkippedNoSource {
				t.Fatalf("expected no-source skip, got %+v", outcome)
			}
			if gone := !testsupport.Exists(artifact) && !testsupport.Exists(artifact+".gz"); gone != tc.wantDiskGone {
				t.Fatalf("leftover removed = %v, want %v", gone, tc.wantDiskGone)
			}
			wantRemoved := []string(nil)
			if tc.wantCatalogRm {
				wantRemoved = []string{"cache/epub/9846/pg9846-images.mobi"}
			}
			if !reflect.DeepEqual(cat.removed, wantRemoved) {
				t.Fatalf("catalog removals = %v, want %v", cat.removed, wantRemoved)
			}
		})
	}
}

func TestBuildQueueExclusionRemovesStaleArtifact(t *testing.T) {
	tests := []struct {
		name          string
		opts          jobqueue.Options
		wantDiskGone  bool
		wantCatalogRm bool
	}{
		{name: "normal", opts: jobqueue.Options{}, wantDiskGone: true, wantCatalogRm: true},
		{name: "shadow", opts: jobqueue.Options{Shadow: true}, wantDiskGone: true, wantCatalogRm: false},
		{name: "dry run", opts: jobqueue.Options{DryRun: true}, wantDiskGone: false, wantCatalogRm: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			artifact := filepath.Join(cfg.Paths.CacheDir, "4554", "pg4554-images.epub")
			testsupport.WriteFile(t, artifact, 10)
			testsupport.WriteFile(t, artifact+".gz", 10)

			source := stubSource{4554: {
				{Path: "files/4554/4554-dp.epub", Format: "epub.dp/unknown"},
				{Path: "files/4554/4554-h/4554-h.htm", Format: "html/utf-8"},
			}}
			cat := &stubCatalog{}
			tc.opts.Make = []string{"epub.images"}
			builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, cat, tc.opts, nil)

			plan, err := builder.BuildQueue(context.Background(), 4554)
			if err != nil {
				t.Fatalf("BuildQueue returned error: %v", err)
			}
			if len(plan.Jobs) != 0 {
				t.Fatalf("expected no jobs, got %v", plan.JobTypes())
			}
			if outcome, _ := plan.Outcome("epub.images"); outcome.Outcome != jobqueue.SkippedExcluded {
				t.Fatalf("expected exclusion, got %+v", outcome)
			}
			if gone := !testsupport.Exists(artifact) && !testsupport.Exists(artifact+".gz"); gone != tc.wantDiskGone {
				t.Fatalf("artifact removed = %v, want %v", gone, tc.wantDiskGone)
			}
			wantRemoved := []string(nil)
			if tc.wantCatalogRm {
				wantRemoved = []string{"cache/epub/4554/pg4554-images.epub"}
			}
			if !reflect.DeepEqual(cat.removed, wantRemoved) {
				t.Fatalf("catalog removals = %v, want %v", cat.removed, wantRemoved)
			}
		})
	}
}

func TestBuildQueueTextOutputNeedsTextSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := stubSource{1: seedSource(t, cfg,
		candidates.Candidate{Path: "files/1/1-h/1-h.htm", Format: "html/utf-8", Modified: time.Now()},
	)}

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{},
		jobqueue.Options{Make: []string{"txt.utf-8"}, DryRun: true}, nil)
	plan, err := builder.BuildQueue(context.Background(), 1)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if outcome, _ := plan.Outcome("txt.utf-8"); outcome.Outcome != jobqueue.SkippedNoSource {
		t.Fatalf("expected no text source, got %+v", outcome)
	}
}

func TestBuildQueueSizeGuard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := stubSource{77: seedSource(t, cfg,
		candidates.Candidate{Path: "files/77/77-8.txt", Format: "txt/iso-8859-1", Size: 9 * 1024 * 1024},
		candidates.Candidate{Path: "files/77/77-h/77-h.htm", Format: "html/utf-8", Size: 9 * 1024 * 1024},
	)}

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{},
		jobqueue.Options{Make: []string{"txt.utf-8", "epub.images"}, DryRun: true}, nil)
	plan, err := builder.BuildQueue(context.Background(), 77)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if outcome, _ := plan.Outcome("txt.utf-8"); outcome.Outcome != jobqueue.SkippedOversize {
		t.Fatalf("expected txt ceiling of 8 MiB to apply, got %+v", outcome)
	}
	if outcome, _ := plan.Outcome("epub.images"); outcome.Outcome != jobqueue.Queued {
		t.Fatalf("expected epub ceiling of 16 MiB to allow source, got %+v", outcome)
	}
}

func TestBuildQueueNullTypeRespectsCurrentArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sourceTime := time.Now().Add(-72 * time.Hour)
	source := stubSource{9846: seedSource(t, cfg,
		candidates.Candidate{Path: "files/9846/9846-h/9846-h.htm", Format: "html/utf-8", Modified: sourceTime},
	)}
	testsupport.WriteFileAt(t, filepath.Join(cfg.Paths.CacheDir, "9846", "pg9846-images.epub"), time.Now().Add(-time.Hour))

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{}, jobqueue.Options{Make: []string{"null"}}, nil)
	plan, err := builder.BuildQueue(context.Background(), 9846)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if len(plan.Jobs) != 0 {
		t.Fatalf("expected no job for null, got %v", plan.JobTypes())
	}
	if outcome, _ := plan.Outcome("null"); outcome.Outcome != jobqueue.SkippedUpToDate {
		t.Fatalf("expected up-to-date skip, got %+v", outcome)
	}

	forced := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{},
		jobqueue.Options{Make: []string{"null"}, Build: map[string]struct{}{"null": {}}}, nil)
	plan, err = forced.BuildQueue(context.Background(), 9846)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if got := plan.JobTypes(); !reflect.DeepEqual(got, []string{"null"}) {
		t.Fatalf("expected forced null job, got %v", got)
	}
}

func TestBuildQueueNonTextEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := stubSource{10802: {{Path: "files/10802/10802-h/10802-h.htm", Format: "html/utf-8"}}}

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{nonText: true},
		jobqueue.Options{Make: []string{"epub.images", "rdf"}}, nil)
	plan, err := builder.BuildQueue(context.Background(), 10802)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	for _, outcome := range plan.Outcomes {
		if outcome.Outcome != jobqueue.SkippedIneligible {
			t.Fatalf("expected ineligible outcome, got %+v", outcome)
		}
	}
}

func TestBuildQueueCatalogErrorIsPerType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := stubSource{5: {{Path: "files/5/5.txt", Format: "txt/us-ascii"}}}

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{nonTextErr: errors.New("timeout")},
		jobqueue.Options{Make: []string{"txt.utf-8", "epub.images"}}, nil)
	plan, err := builder.BuildQueue(context.Background(), 5)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if len(plan.Outcomes) != 2 {
		t.Fatalf("expected both types to be reported, got %+v", plan.Outcomes)
	}
	for _, outcome := range plan.Outcomes {
		if outcome.Outcome != jobqueue.SkippedError {
			t.Fatalf("expected error outcome, got %+v", outcome)
		}
	}
}

func TestBuildQueueMissingSourceOnDisk(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := stubSource{8: {{Path: "files/8/8-h/8-h.htm", Format: "html/utf-8"}}}

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), source, &stubCatalog{}, jobqueue.Options{Make: []string{"epub.images"}}, nil)
	plan, err := builder.BuildQueue(context.Background(), 8)
	if err != nil {
		t.Fatalf("BuildQueue returned error: %v", err)
	}
	if outcome, _ := plan.Outcome("epub.images"); outcome.Outcome != jobqueue.SkippedMissingSource {
		t.Fatalf("expected missing-source skip, got %+v", outcome)
	}
}

func TestBuildQueueHonorsCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := jobqueue.NewBuilder(cfg, mustRegistry(t), stubSource{}, &stubCatalog{}, jobqueue.Options{Make: []string{"epub.images"}}, nil)
	if _, err := builder.BuildQueue(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
