package download

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tunevault/tunevault-go/internal/catalog"
	apperrors "github.com/tunevault/tunevault-go/internal/errors"
	"github.com/tunevault/tunevault-go/internal/extract"
	"github.com/tunevault/tunevault-go/internal/job"
	"github.com/tunevault/tunevault-go/internal/metadata"
	"github.com/tunevault/tunevault-go/internal/store"
)

// Orchestrator accepts job submissions, runs them with bounded concurrency
// and routes finished audio artifacts into the catalog. Job IDs are dense
// and monotonically increasing for the lifetime of the process.
type Orchestrator struct {
	runner   *job.Runner
	repo     *catalog.Repository
	history  *store.HistoryStore
	tagger   *metadata.Tagger
	notifier Notifier
	logger   *zap.Logger

	outputDir string

	nextID int64
	jobs   sync.Map // map[int64]*job.Job
	slots  chan struct{}
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds orchestrator settings
type Config struct {
	OutputDir      string
	ConcurrentJobs int
}

// NewOrchestrator creates an Orchestrator. repo and history may be nil in
// fetch-only setups; finished artifacts are then left on disk unregistered.
func NewOrchestrator(cfg Config, runner *job.Runner, repo *catalog.Repository, history *store.HistoryStore, tagger *metadata.Tagger, notifier Notifier, logger *zap.Logger) *Orchestrator {
	if cfg.ConcurrentJobs <= 0 {
		cfg.ConcurrentJobs = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		runner:    runner,
		repo:      repo,
		history:   history,
		tagger:    tagger,
		notifier:  notifier,
		logger:    logger,
		outputDir: cfg.OutputDir,
		slots:     make(chan struct{}, cfg.ConcurrentJobs),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit registers a new job and schedules it. The returned ID is assigned
// immediately; the job starts as soon as a concurrency slot frees up.
func (o *Orchestrator) Submit(kind job.Kind, url string) (int64, error) {
	if !kind.Valid() {
		return 0, apperrors.NewValidationError(fmt.Sprintf("unknown job kind: %s", kind))
	}
	if url == "" {
		return 0, apperrors.NewValidationError("source url is required")
	}
	if o.ctx.Err() != nil {
		return 0, apperrors.NewCancelledError("orchestrator is shutting down")
	}

	id := atomic.AddInt64(&o.nextID, 1)
	j := job.New(id, kind, url, o.outputDir)
	o.jobs.Store(id, j)
	o.notifier.NotifyStatus(id, string(job.StatePending))

	o.logger.Info("Job submitted",
		zap.Int64("job_id", id),
		zap.String("kind", string(kind)),
		zap.String("url", url))

	o.wg.Add(1)
	go o.execute(j)
	return id, nil
}

func (o *Orchestrator) execute(j *job.Job) {
	defer o.wg.Done()

	select {
	case o.slots <- struct{}{}:
		defer func() { <-o.slots }()
	case <-o.ctx.Done():
		o.finishStopped(j)
		return
	}

	// A stop may have arrived while the job waited for a slot.
	if j.Stopped() {
		o.finishStopped(j)
		return
	}

	o.notifier.NotifyStatus(j.ID, string(job.StateRunning))

	artifacts, err := o.runner.Run(o.ctx, j, job.Callbacks{
		Progress: func(percent int, bytes int64) {
			if percent < 0 {
				o.notifier.NotifyBytes(j.ID, bytes)
				return
			}
			o.notifier.NotifyProgress(j.ID, percent)
		},
		ItemError: func(itemURL string, itemErr error) {
			o.notifier.NotifyStatus(j.ID, fmt.Sprintf("item skipped: %s: %v", itemURL, itemErr))
		},
	})

	switch {
	case apperrors.IsCancelled(err):
		o.notifier.NotifyStopped(j.ID)
	case err != nil:
		o.notifier.NotifyError(j.ID, err.Error())
	default:
		o.registerArtifacts(j, artifacts)
		o.notifier.NotifyFinished(j.ID, artifacts)
	}
}

// finishStopped settles a job that never ran
func (o *Orchestrator) finishStopped(j *job.Job) {
	j.Stop()
	o.notifier.NotifyStopped(j.ID)
}

// registerArtifacts records fetched artifacts. Audio artifacts are tagged
// from their sidecar and ingested into the catalog; video artifacts only get
// a history entry. A bad artifact never fails the finished job.
func (o *Orchestrator) registerArtifacts(j *job.Job, artifacts []*extract.Artifact) {
	for _, artifact := range artifacts {
		meta, err := metadata.ParseSidecar(artifact.FilePath)
		if err != nil {
			o.logger.Warn("Sidecar unreadable, using defaults",
				zap.Int64("job_id", j.ID),
				zap.String("file_path", artifact.FilePath),
				zap.Error(err))
		}

		if thumb := artifact.ThumbnailPath; thumb != "" {
			if data, err := os.ReadFile(thumb); err == nil {
				meta.ArtworkData = data
				meta.ArtworkMIME = "image/jpeg"
			}
		}

		if j.Kind.IsAudio() {
			if o.tagger != nil {
				if err := o.tagger.Apply(artifact.FilePath, meta); err != nil {
					o.logger.Warn("Failed to tag audio file",
						zap.Int64("job_id", j.ID),
						zap.String("file_path", artifact.FilePath),
						zap.Error(err))
				}
			}
			if o.repo != nil {
				// Concurrently finishing jobs contend on the catalog writer;
				// busy errors back off and retry before giving up.
				ingest := func() error {
					_, err := o.repo.Ingest(o.ctx, artifact.FilePath, meta)
					return err
				}
				if err := apperrors.RetryWithBackoff(o.ctx, apperrors.DefaultRetryConfig(), ingest); err != nil {
					o.logger.Error("Failed to ingest artifact",
						zap.Int64("job_id", j.ID),
						zap.String("file_path", artifact.FilePath),
						zap.Error(err))
				}
			}
		}

		if o.history != nil {
			entry := &store.HistoryEntry{
				JobID:    j.ID,
				Title:    meta.Title,
				Artist:   meta.Artist,
				Album:    meta.Album,
				FilePath: artifact.FilePath,
				FileSize: artifact.Bytes,
				Checksum: artifact.Checksum,
			}
			if err := o.history.Add(o.ctx, entry); err != nil {
				o.logger.Warn("Failed to record download history",
					zap.Int64("job_id", j.ID),
					zap.Error(err))
			}
		}
	}
}

// Pause pauses a running job
func (o *Orchestrator) Pause(id int64) error {
	j, err := o.get(id)
	if err != nil {
		return err
	}
	return j.Pause()
}

// Resume resumes a paused job
func (o *Orchestrator) Resume(id int64) error {
	j, err := o.get(id)
	if err != nil {
		return err
	}
	return j.Resume()
}

// Stop requests termination of a job. Stopping an unknown or already
// finished job is a no-op.
func (o *Orchestrator) Stop(id int64) error {
	value, ok := o.jobs.Load(id)
	if !ok {
		return nil
	}
	j := value.(*job.Job)
	if j.State().Terminal() {
		return nil
	}
	return j.Stop()
}

// Status returns the state and progress of a job
func (o *Orchestrator) Status(id int64) (job.State, int, error) {
	j, err := o.get(id)
	if err != nil {
		return "", 0, err
	}
	return j.State(), j.Progress(), nil
}

// ActiveJobs returns the number of jobs not yet in a terminal state
func (o *Orchestrator) ActiveJobs() int {
	count := 0
	o.jobs.Range(func(_, value interface{}) bool {
		if !value.(*job.Job).State().Terminal() {
			count++
		}
		return true
	})
	return count
}

// Shutdown stops all jobs and waits for their goroutines to settle, bounded
// by the context deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.logger.Info("Orchestrator shutting down",
		zap.Int("active_jobs", o.ActiveJobs()))

	o.jobs.Range(func(_, value interface{}) bool {
		j := value.(*job.Job)
		if !j.State().Terminal() {
			j.Stop()
		}
		return true
	})
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (o *Orchestrator) get(id int64) (*job.Job, error) {
	value, ok := o.jobs.Load(id)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("job %d not found", id))
	}
	return value.(*job.Job), nil
}
