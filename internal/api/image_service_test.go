package api_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"pastiche/internal/api"
	"pastiche/internal/artifact"
	"pastiche/internal/filters"
	"pastiche/internal/imaging"
	"pastiche/internal/jobs"
	"pastiche/internal/services"
	"pastiche/internal/store"
	"pastiche/internal/testsupport"
)

type fixture struct {
	registry  *filters.Registry
	service   *api.ImageService
	pool      *jobs.Pool
	artifacts *artifact.Store
	index     *store.Store
}

func newFixture(t *testing.T, timeout time.Duration, poolOpts ...jobs.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	index := testsupport.MustOpenStore(t, cfg)
	arts := testsupport.MustArtifacts(t, cfg, index)
	reg, err := filters.Load(cfg.Paths.FiltersDir, nil)
	if err != nil {
		t.Fatalf("filters.Load: %v", err)
	}
	poolOpts = append([]jobs.Option{jobs.WithJournal(index)}, poolOpts...)
	pool := jobs.New(reg, arts, poolOpts...)
	if err := pool.Start(context.Background(), 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})
	svc := api.NewImageService(reg, arts, pool,
		api.WithTimeout(timeout),
		api.WithPurgeInputs(true),
		api.WithIndex(index),
	)
	return &fixture{registry: reg, service: svc, pool: pool, artifacts: arts, index: index}
}

func TestFiltersScenario(t *testing.T) {
	f := newFixture(t, 10*time.Second)

	infos := f.service.Filters()
	if len(infos) != 2 || infos[0].Name != "sketch" || infos[1].Name != "vangogh" {
		t.Fatalf("unexpected filters %+v", infos)
	}
	if infos[1].DisplayName != "Vangogh" {
		t.Fatalf("unexpected display name %q", infos[1].DisplayName)
	}

	raw := testsupport.PNGBytes(t, 40, 30, 7)
	dims, err := f.service.ImageDimensions(raw)
	if err != nil || dims.Width != 40 || dims.Height != 30 {
		t.Fatalf("ImageDimensions = %+v, %v", dims, err)
	}

	for _, name := range []string{"sketch", "VanGogh"} {
		res, err := f.service.ProcessImage(context.Background(), raw, name)
		if err != nil {
			t.Fatalf("ProcessImage(%s): %v", name, err)
		}
		data, err := os.ReadFile(res.Path)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		cfg, err := imaging.DecodeConfig(data)
		if err != nil || cfg.Width != 40 || cfg.Height != 30 {
			t.Fatalf("output %s: %+v, %v", name, cfg, err)
		}
		art, err := f.service.ArtifactFile(context.Background(), res.ID)
		if err != nil || art.Path != res.Path {
			t.Fatalf("ArtifactFile = %+v, %v", art, err)
		}
		if _, ok := f.pool.Lookup(art.SourceID); ok {
			t.Fatal("finished job should be released")
		}
		if _, err := f.artifacts.Get(context.Background(), art.SourceID); !errors.Is(err, services.ErrArtifactNotFound) {
			t.Fatalf("consumed input should be purged, got %v", err)
		}
	}

	inputs, err := f.service.Artifacts(context.Background(), artifact.KindInput)
	if err != nil || len(inputs) != 0 {
		t.Fatalf("expected no inputs left, got %d (%v)", len(inputs), err)
	}
	history, err := f.service.Jobs(context.Background(), 10)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected 2 journal entries, got %d (%v)", len(history), err)
	}
	for _, job := range history {
		if job.Status != string(jobs.StatusDone) || job.ResultID == "" {
			t.Fatalf("unexpected journal entry %+v", job)
		}
	}
}

func TestProcessImageUnknownFilterEnqueuesNothing(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	_, err := f.service.ProcessImage(context.Background(), testsupport.PNGBytes(t, 8, 8, 1), "monet")
	if !errors.Is(err, services.ErrUnknownFilter) {
		t.Fatalf("expected unknown filter, got %v", err)
	}
	if api.Classify(err) != api.CategoryUnknownFilter {
		t.Fatalf("unexpected category %q", api.Classify(err))
	}
	if stats := f.pool.Stats(); stats.Tracked != 0 || stats.Queued != 0 {
		t.Fatalf("no job should exist: %+v", stats)
	}
	history, err := f.service.Jobs(context.Background(), 10)
	if err != nil || len(history) != 0 {
		t.Fatalf("journal should be empty, got %d (%v)", len(history), err)
	}
	all, err := f.service.Artifacts(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("no artifact should be written, got %d (%v)", len(all), err)
	}
}

func TestProcessImageRejectsUndecodableInput(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	_, err := f.service.ProcessImage(context.Background(), []byte("not an image"), "sketch")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.service.ImageDimensions(nil); api.Classify(err) != api.CategoryInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestProcessImageTimeoutLeavesJobRetrievable(t *testing.T) {
	release := make(chan struct{})
	slow := func(desc filters.Descriptor, input []byte) ([]byte, error) {
		<-release
		return filters.Apply(desc, input)
	}
	f := newFixture(t, 30*time.Millisecond, jobs.WithApplyFunc(slow))

	res, err := f.service.ProcessImage(context.Background(), testsupport.PNGBytes(t, 12, 9, 3), "sketch")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if api.Classify(err) != api.CategoryTimeout {
		t.Fatalf("unexpected category %q", api.Classify(err))
	}
	if res.JobID == "" || res.ID != "" || res.Path != "" {
		t.Fatalf("timed out result should carry only the job id, got %+v", res)
	}
	id := res.JobID

	close(release)
	job, ok := f.pool.Lookup(id)
	if !ok {
		t.Fatal("timed out job should stay tracked")
	}
	<-job.Done()

	info, ok, err := f.service.Job(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("Job(%s) = %v, %v", id, ok, err)
	}
	if info.Status != string(jobs.StatusDone) || info.ResultID == "" {
		t.Fatalf("unexpected job info %+v", info)
	}
	if _, err := f.service.ArtifactFile(context.Background(), info.ResultID); err != nil {
		t.Fatalf("late output should be retrievable: %v", err)
	}
}

func TestSaveAndLastSaved(t *testing.T) {
	f := newFixture(t, 10*time.Second)

	if _, ok, err := f.service.LastSavedImage(context.Background()); err != nil || ok {
		t.Fatalf("expected empty slot, got ok=%v err=%v", ok, err)
	}
	saved, err := f.service.SaveImage(context.Background(), "does-not-exist")
	if err != nil || saved {
		t.Fatalf("unknown id should report false without error, got %v %v", saved, err)
	}

	res, err := f.service.ProcessImage(context.Background(), testsupport.PNGBytes(t, 10, 10, 5), "vangogh")
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	saved, err = f.service.SaveImage(context.Background(), res.ID)
	if err != nil || !saved {
		t.Fatalf("SaveImage = %v, %v", saved, err)
	}
	path, ok, err := f.service.LastSavedImage(context.Background())
	if err != nil || !ok {
		t.Fatalf("LastSavedImage = %q %v %v", path, ok, err)
	}
	want, _ := os.ReadFile(res.Path)
	got, _ := os.ReadFile(path)
	if string(want) != string(got) {
		t.Fatal("persisted file differs from the saved output")
	}

	summary, err := f.service.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if summary.Filters != 2 || summary.LastSaved == nil || summary.LastSaved.SourceID != res.ID {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Artifacts[string(artifact.KindPersisted)] != 1 {
		t.Fatalf("expected one persisted artifact, got %+v", summary.Artifacts)
	}
}

func TestProcessImageAfterShutdown(t *testing.T) {
	f := newFixture(t, time.Second)
	if err := f.pool.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := f.service.ProcessImage(context.Background(), testsupport.PNGBytes(t, 4, 4, 1), "sketch")
	if api.Classify(err) != api.CategoryUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	inputs, _ := f.service.Artifacts(context.Background(), artifact.KindInput)
	if len(inputs) != 0 {
		t.Fatalf("rejected input should be purged, got %d", len(inputs))
	}
}

func TestProcessImageRejectsOversizedImage(t *testing.T) {
	f := newFixture(t, 5*time.Second)

	_, err := f.service.ProcessImage(context.Background(), testsupport.PNGHeader(1_000_000, 1_000_000), "sketch")
	if !errors.Is(err, services.ErrValidation) || !errors.Is(err, imaging.ErrTooLarge) {
		t.Fatalf("expected oversized validation error, got %v", err)
	}
	if stats := f.pool.Stats(); stats.Tracked != 0 || stats.Queued != 0 {
		t.Fatalf("no job should exist: %+v", stats)
	}
	all, err := f.service.Artifacts(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("no artifact should be written, got %d (%v)", len(all), err)
	}

	limited := api.NewImageService(f.registry, f.artifacts, f.pool, api.WithMaxPixels(100))
	if _, err := limited.ProcessImage(context.Background(), testsupport.PNGBytes(t, 11, 10, 1), "sketch"); !errors.Is(err, imaging.ErrTooLarge) {
		t.Fatalf("expected configured limit to apply, got %v", err)
	}
	res, err := limited.ProcessImage(context.Background(), testsupport.PNGBytes(t, 10, 10, 1), "sketch")
	if err != nil || res.JobID == "" || res.ID == "" {
		t.Fatalf("image at the limit should process, got %+v, %v", res, err)
	}
}
