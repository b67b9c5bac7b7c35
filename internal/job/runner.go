package job

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
	"github.com/tunevault/tunevault-go/internal/extract"
	"github.com/tunevault/tunevault-go/internal/monitoring"
)

// Callbacks receives runner notifications for one job. Progress carries the
// normalized overall percent; when the current item's total size is unknown,
// percent is -1 and bytes carries the raw transferred byte count so listeners
// still see liveness. ItemError reports a collection item that was skipped
// without failing the job. Either func may be nil.
type Callbacks struct {
	Progress  func(percent int, bytes int64)
	ItemError func(itemURL string, err error)
}

// Runner drives a job from Pending to a terminal state using an extractor.
// One Run call per job; the runner owns the job's state transitions.
type Runner struct {
	extractor extract.Extractor
	logger    *zap.Logger
}

// NewRunner creates a Runner
func NewRunner(extractor extract.Extractor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		extractor: extractor,
		logger:    logger,
	}
}

// Run executes the job and returns the fetched artifacts. Collection jobs
// skip items that fail and succeed as long as at least one item lands; a
// stop request wins over everything and yields StateStopped.
func (r *Runner) Run(ctx context.Context, j *Job, cb Callbacks) ([]*extract.Artifact, error) {
	runCtx, cancel := context.WithCancel(ctx)
	j.bindCancel(cancel)
	defer cancel()

	if cb.Progress == nil {
		cb.Progress = func(int, int64) {}
	}
	if cb.ItemError == nil {
		cb.ItemError = func(string, error) {}
	}

	j.setState(StateRunning)
	monitoring.RecordJobStart()
	defer func() {
		monitoring.RecordJobEnd(string(j.Kind), string(j.State()), j.Duration())
	}()

	artifacts, err := r.run(runCtx, j, cb)
	if err != nil {
		if apperrors.IsCancelled(err) || j.Stopped() {
			j.setState(StateStopped)
			r.logger.Info("Job stopped", zap.Int64("job_id", j.ID))
			return artifacts, apperrors.NewCancelledError("job stopped")
		}
		j.setError(err)
		j.setState(StateFailed)
		r.logger.Error("Job failed",
			zap.Int64("job_id", j.ID),
			zap.String("kind", string(j.Kind)),
			zap.Error(err))
		return artifacts, err
	}

	if j.updateProgress(100) {
		cb.Progress(100, 0)
	}
	j.setState(StateFinished)
	r.logger.Info("Job finished",
		zap.Int64("job_id", j.ID),
		zap.String("kind", string(j.Kind)),
		zap.Int("artifacts", len(artifacts)))
	return artifacts, nil
}

func (r *Runner) run(ctx context.Context, j *Job, cb Callbacks) ([]*extract.Artifact, error) {
	if err := j.checkpoint(ctx); err != nil {
		return nil, err
	}

	manifest, err := r.extractor.Probe(ctx, j.URL)
	if err != nil {
		return nil, err
	}

	totalItems := len(manifest.Items)
	if !j.Kind.IsCollection() && totalItems > 1 {
		// A single-item job fetches only the first manifest entry.
		manifest.Items = manifest.Items[:1]
		totalItems = 1
	}

	var artifacts []*extract.Artifact
	var failed int

	for i := range manifest.Items {
		if err := j.checkpoint(ctx); err != nil {
			return artifacts, err
		}

		item := manifest.Items[i]
		itemIndex := i
		progress := func(written, total int64) error {
			if err := j.checkpoint(ctx); err != nil {
				return err
			}
			if total <= 0 {
				// Unknown content length: no fraction to normalize, so
				// report raw bytes to keep the stream alive.
				cb.Progress(-1, written)
				return nil
			}
			fraction := float64(written) / float64(total)
			if fraction > 1 {
				fraction = 1
			}
			percent := int((float64(itemIndex) + fraction) / float64(totalItems) * 100)
			if j.updateProgress(percent) {
				cb.Progress(percent, written)
			}
			return nil
		}

		artifact, err := r.extractor.Fetch(ctx, &item, j.DestDir, progress)
		if err != nil {
			if apperrors.IsCancelled(err) {
				return artifacts, err
			}
			failed++
			if !j.Kind.IsCollection() {
				return artifacts, err
			}
			// Collections press on past a bad item; the skip is surfaced
			// to listeners, not just logged.
			r.logger.Warn("Skipping failed collection item",
				zap.Int64("job_id", j.ID),
				zap.String("url", item.URL),
				zap.Error(err))
			cb.ItemError(item.URL, err)
			continue
		}

		artifacts = append(artifacts, artifact)
		percent := (itemIndex + 1) * 100 / totalItems
		if j.updateProgress(percent) {
			cb.Progress(percent, artifact.Bytes)
		}
	}

	if totalItems > 0 && failed == totalItems {
		return artifacts, apperrors.NewExtractionError(
			fmt.Sprintf("all %d collection items failed", totalItems), nil)
	}
	return artifacts, nil
}
