package job

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
	"github.com/tunevault/tunevault-go/internal/extract"
)

// fakeExtractor simulates a source without any network. Each fetch reports
// progress in fixed chunks so control signals land mid-transfer.
type fakeExtractor struct {
	items      []extract.MediaItem
	chunks     int
	chunkWait  time.Duration
	failURLs   map[string]bool
	unknownLen bool

	startOnce sync.Once
	started   chan struct{}
}

func newFakeExtractor(items []extract.MediaItem) *fakeExtractor {
	return &fakeExtractor{
		items:   items,
		chunks:  4,
		started: make(chan struct{}),
	}
}

func (f *fakeExtractor) Probe(ctx context.Context, url string) (*extract.Manifest, error) {
	return &extract.Manifest{Items: f.items}, nil
}

func (f *fakeExtractor) Fetch(ctx context.Context, item *extract.MediaItem, destDir string, progress extract.ProgressFunc) (*extract.Artifact, error) {
	f.startOnce.Do(func() { close(f.started) })

	if f.failURLs[item.URL] {
		return nil, apperrors.NewExtractionError("simulated fetch failure", nil)
	}

	total := int64(f.chunks * 100)
	reported := total
	if f.unknownLen {
		reported = -1
	}
	for c := 1; c <= f.chunks; c++ {
		if f.chunkWait > 0 {
			time.Sleep(f.chunkWait)
		}
		if progress != nil {
			if err := progress(int64(c*100), reported); err != nil {
				return nil, err
			}
		}
	}
	return &extract.Artifact{
		FilePath: destDir + "/" + item.Title + ".mp3",
		Bytes:    total,
	}, nil
}

func singleItem() []extract.MediaItem {
	return []extract.MediaItem{{URL: "fake://one", Title: "One"}}
}

func TestRunner_SingleJobFinishes(t *testing.T) {
	extractor := newFakeExtractor(singleItem())
	runner := NewRunner(extractor, nil)
	j := New(1, KindAudioSingle, "fake://one", t.TempDir())

	var percents []int
	artifacts, err := runner.Run(context.Background(), j, Callbacks{
		Progress: func(p int, _ int64) {
			percents = append(percents, p)
		},
	})
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}

	if j.State() != StateFinished {
		t.Errorf("Expected finished state, got %s", j.State())
	}
	if len(artifacts) != 1 {
		t.Errorf("Expected 1 artifact, got %d", len(artifacts))
	}
	if j.Progress() != 100 {
		t.Errorf("Expected final progress 100, got %d", j.Progress())
	}

	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Errorf("Expected strictly increasing progress, got %v", percents)
			break
		}
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("Expected last report to be 100, got %v", percents)
	}
}

func TestRunner_SingleJobFailure(t *testing.T) {
	extractor := newFakeExtractor(singleItem())
	extractor.failURLs = map[string]bool{"fake://one": true}
	runner := NewRunner(extractor, nil)
	j := New(2, KindAudioSingle, "fake://one", t.TempDir())

	_, err := runner.Run(context.Background(), j, Callbacks{})
	if err == nil {
		t.Fatal("Expected job to fail")
	}
	if j.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", j.State())
	}
	if j.Err() == nil {
		t.Error("Expected terminal error to be recorded")
	}
}

func TestRunner_CollectionSkipsFailedItems(t *testing.T) {
	items := []extract.MediaItem{
		{URL: "fake://1", Title: "One"},
		{URL: "fake://2", Title: "Two"},
		{URL: "fake://3", Title: "Three"},
		{URL: "fake://4", Title: "Four"},
		{URL: "fake://5", Title: "Five"},
	}
	extractor := newFakeExtractor(items)
	extractor.failURLs = map[string]bool{"fake://3": true}
	runner := NewRunner(extractor, nil)
	j := New(3, KindAudioCollection, "fake://playlist", t.TempDir())

	artifacts, err := runner.Run(context.Background(), j, Callbacks{})
	if err != nil {
		t.Fatalf("Expected collection to survive one bad item, got %v", err)
	}

	if j.State() != StateFinished {
		t.Errorf("Expected finished state, got %s", j.State())
	}
	if len(artifacts) != 4 {
		t.Errorf("Expected 4 artifacts after skipping item 3, got %d", len(artifacts))
	}
	if j.Progress() != 100 {
		t.Errorf("Expected final progress 100, got %d", j.Progress())
	}
}

func TestRunner_CollectionReportsSkippedItem(t *testing.T) {
	items := []extract.MediaItem{
		{URL: "fake://1", Title: "One"},
		{URL: "fake://2", Title: "Two"},
		{URL: "fake://3", Title: "Three"},
	}
	extractor := newFakeExtractor(items)
	extractor.failURLs = map[string]bool{"fake://2": true}
	runner := NewRunner(extractor, nil)
	j := New(10, KindAudioCollection, "fake://playlist", t.TempDir())

	var skipped []string
	var skipErr error
	_, err := runner.Run(context.Background(), j, Callbacks{
		ItemError: func(itemURL string, itemErr error) {
			skipped = append(skipped, itemURL)
			skipErr = itemErr
		},
	})
	if err != nil {
		t.Fatalf("Expected collection to finish, got %v", err)
	}

	if len(skipped) != 1 || skipped[0] != "fake://2" {
		t.Errorf("Expected one skip report for fake://2, got %v", skipped)
	}
	if skipErr == nil {
		t.Error("Expected the skip report to carry the item error")
	}
}

func TestRunner_CollectionAllItemsFail(t *testing.T) {
	items := []extract.MediaItem{
		{URL: "fake://1", Title: "One"},
		{URL: "fake://2", Title: "Two"},
	}
	extractor := newFakeExtractor(items)
	extractor.failURLs = map[string]bool{"fake://1": true, "fake://2": true}
	runner := NewRunner(extractor, nil)
	j := New(4, KindAudioCollection, "fake://playlist", t.TempDir())

	_, err := runner.Run(context.Background(), j, Callbacks{})
	if err == nil {
		t.Fatal("Expected failure when every item fails")
	}
	if j.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", j.State())
	}
}

func TestRunner_UnknownLengthEmitsByteCounts(t *testing.T) {
	extractor := newFakeExtractor(singleItem())
	extractor.unknownLen = true
	runner := NewRunner(extractor, nil)
	j := New(11, KindAudioSingle, "fake://one", t.TempDir())

	var byteReports []int64
	var percents []int
	_, err := runner.Run(context.Background(), j, Callbacks{
		Progress: func(p int, b int64) {
			if p < 0 {
				byteReports = append(byteReports, b)
				return
			}
			percents = append(percents, p)
		},
	})
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}

	if len(byteReports) != extractor.chunks {
		t.Fatalf("Expected %d byte reports for unknown length, got %d", extractor.chunks, len(byteReports))
	}
	for i := 1; i < len(byteReports); i++ {
		if byteReports[i] <= byteReports[i-1] {
			t.Errorf("Expected byte reports to grow, got %v", byteReports)
			break
		}
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("Expected completion to still report 100%%, got %v", percents)
	}
}

func TestRunner_StopDuringStartup(t *testing.T) {
	for i := 0; i < 200; i++ {
		extractor := newFakeExtractor(singleItem())
		runner := NewRunner(extractor, nil)
		j := New(int64(100+i), KindAudioSingle, "fake://one", t.TempDir())

		done := make(chan error, 1)
		go func() {
			_, err := runner.Run(context.Background(), j, Callbacks{})
			done <- err
		}()
		go j.Stop()

		err := <-done
		if err != nil && !apperrors.IsCancelled(err) {
			t.Fatalf("Iteration %d: unexpected error: %v", i, err)
		}
		if state := j.State(); !state.Terminal() {
			t.Fatalf("Iteration %d: expected terminal state, got %s", i, state)
		}
	}
}

func TestRunner_PauseAndResume(t *testing.T) {
	extractor := newFakeExtractor(singleItem())
	extractor.chunks = 20
	extractor.chunkWait = 5 * time.Millisecond
	runner := NewRunner(extractor, nil)
	j := New(5, KindAudioSingle, "fake://one", t.TempDir())

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), j, Callbacks{})
		done <- err
	}()

	<-extractor.started
	if err := j.Pause(); err != nil {
		t.Fatalf("Failed to pause: %v", err)
	}

	waitForState(t, j, StatePaused)
	frozen := j.Progress()
	time.Sleep(3 * pollInterval)
	if j.Progress() != frozen {
		t.Errorf("Expected progress to freeze while paused, went %d -> %d", frozen, j.Progress())
	}

	if err := j.Resume(); err != nil {
		t.Fatalf("Failed to resume: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Job failed after resume: %v", err)
	}
	if j.State() != StateFinished {
		t.Errorf("Expected finished state, got %s", j.State())
	}
}

func TestRunner_StopWhileRunning(t *testing.T) {
	extractor := newFakeExtractor(singleItem())
	extractor.chunks = 50
	extractor.chunkWait = 5 * time.Millisecond
	runner := NewRunner(extractor, nil)
	j := New(6, KindAudioSingle, "fake://one", t.TempDir())

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), j, Callbacks{})
		done <- err
	}()

	<-extractor.started
	if err := j.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}

	err := <-done
	if !apperrors.IsCancelled(err) {
		t.Errorf("Expected cancellation error, got %v", err)
	}
	if j.State() != StateStopped {
		t.Errorf("Expected stopped state, got %s", j.State())
	}
}

func TestRunner_StopWhilePaused(t *testing.T) {
	extractor := newFakeExtractor(singleItem())
	extractor.chunks = 20
	extractor.chunkWait = 5 * time.Millisecond
	runner := NewRunner(extractor, nil)
	j := New(7, KindAudioSingle, "fake://one", t.TempDir())

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), j, Callbacks{})
		done <- err
	}()

	<-extractor.started
	if err := j.Pause(); err != nil {
		t.Fatalf("Failed to pause: %v", err)
	}
	waitForState(t, j, StatePaused)

	if err := j.Stop(); err != nil {
		t.Fatalf("Failed to stop paused job: %v", err)
	}

	err := <-done
	if !apperrors.IsCancelled(err) {
		t.Errorf("Expected cancellation error, got %v", err)
	}
	if j.State() != StateStopped {
		t.Errorf("Expected stopped state, got %s", j.State())
	}
}

func TestJob_ControlValidation(t *testing.T) {
	j := New(8, KindAudioSingle, "fake://one", "/tmp")

	if err := j.Pause(); err == nil {
		t.Error("Expected error pausing a pending job")
	}
	if err := j.Resume(); err == nil {
		t.Error("Expected error resuming a job that is not paused")
	}

	j.setState(StateFinished)
	if err := j.Stop(); err == nil {
		t.Error("Expected error stopping a finished job")
	}
}

func TestKind_Helpers(t *testing.T) {
	tests := []struct {
		kind       Kind
		audio      bool
		collection bool
	}{
		{KindAudioSingle, true, false},
		{KindAudioCollection, true, true},
		{KindVideoSingle, false, false},
		{KindVideoCollection, false, true},
	}

	for _, tt := range tests {
		if !tt.kind.Valid() {
			t.Errorf("Expected %s to be valid", tt.kind)
		}
		if tt.kind.IsAudio() != tt.audio {
			t.Errorf("%s: IsAudio() = %v, want %v", tt.kind, tt.kind.IsAudio(), tt.audio)
		}
		if tt.kind.IsCollection() != tt.collection {
			t.Errorf("%s: IsCollection() = %v, want %v", tt.kind, tt.kind.IsCollection(), tt.collection)
		}
	}

	if Kind("bogus").Valid() {
		t.Error("Expected bogus kind to be invalid")
	}
}

func waitForState(t *testing.T, j *Job, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, still %s", want, j.State())
}
