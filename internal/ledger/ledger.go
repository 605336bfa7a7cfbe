// Package ledger records every account extraction as a job and links the
// resulting product to it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/shopgrab/internal/metrics"
	"github.com/dukerupert/shopgrab/internal/model"
	"github.com/dukerupert/shopgrab/internal/store"
)

const HistoryLimit = 50

// ErrSaveFailed is recorded on a job whose extraction succeeded but whose
// product could not be stored.
var ErrSaveFailed = errors.New("saving extraction result failed")

type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*model.ProductData, error)
}

type Notifier interface {
	Publish(ev model.JobEvent)
}

type Ledger struct {
	jobs      *store.JobStore
	extractor Extractor
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Ledger. notifier may be nil.
func New(jobs *store.JobStore, extractor Extractor, notifier Notifier, logger *slog.Logger) *Ledger {
	return &Ledger{
		jobs:      jobs,
		extractor: extractor,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Run creates a processing job, extracts rawURL and finalizes the job. The
// quota must already have been charged. On extraction failure the failed
// job is returned together with the extraction error. If the product cannot
// be stored the job is failed with ErrSaveFailed.
func (l *Ledger) Run(ctx context.Context, accountID int64, rawURL string) (*model.ExtractionJob, *model.ExtractedProduct, error) {
	start := l.now()
	job, err := l.jobs.Create(accountID, rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create job: %w", err)
	}
	l.publish(job, "")

	data, extractErr := l.extractor.Extract(ctx, rawURL)
	elapsed := l.now().Sub(start)
	metrics.ExtractionDuration.Observe(elapsed.Seconds())

	if extractErr != nil {
		metrics.ExtractionsTotal.WithLabelValues("account", "failed").Inc()
		if err := l.jobs.Fail(job.ID, extractErr.Error(), elapsed.Milliseconds()); err != nil {
			return nil, nil, errors.Join(extractErr, fmt.Errorf("mark job failed: %w", err))
		}
		l.logger.Info("extraction failed", "job_id", job.ID, "account_id", accountID, "error", extractErr)
		return l.reload(job, model.JobFailed, extractErr.Error()), nil, extractErr
	}

	product, err := l.jobs.Complete(job.ID, data, elapsed.Milliseconds())
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("account", "failed").Inc()
		saveErr := fmt.Errorf("complete job: %w", err)
		if err := l.jobs.Fail(job.ID, ErrSaveFailed.Error(), elapsed.Milliseconds()); err != nil {
			return nil, nil, errors.Join(saveErr, fmt.Errorf("mark job failed: %w", err))
		}
		l.logger.Error("save extraction result", "job_id", job.ID, "account_id", accountID, "error", saveErr)
		return l.reload(job, model.JobFailed, ErrSaveFailed.Error()), nil, fmt.Errorf("%w: %w", ErrSaveFailed, saveErr)
	}
	metrics.ExtractionsTotal.WithLabelValues("account", "completed").Inc()
	l.logger.Info("extraction completed", "job_id", job.ID, "account_id", accountID, "duration_ms", elapsed.Milliseconds())

	done := l.reload(job, model.JobCompleted, "")
	done.Product = product
	return done, product, nil
}

// History returns the account's most recent jobs, newest first.
func (l *Ledger) History(accountID int64) ([]model.ExtractionJob, error) {
	jobs, err := l.jobs.ListRecent(accountID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("job history: %w", err)
	}
	if jobs == nil {
		jobs = []model.ExtractionJob{}
	}
	return jobs, nil
}

// reload fetches the finalized job and publishes its new state. A failed
// read falls back to the in-memory copy.
func (l *Ledger) reload(job *model.ExtractionJob, status, message string) *model.ExtractionJob {
	got, err := l.jobs.GetByID(job.ID)
	if err != nil || got == nil {
		l.logger.Warn("reload job", "job_id", job.ID, "error", err)
		cp := *job
		cp.Status = status
		if message != "" {
			cp.Error = &message
		}
		got = &cp
	}
	l.publish(got, message)
	return got
}

func (l *Ledger) publish(job *model.ExtractionJob, message string) {
	if l.notifier == nil {
		return
	}
	l.notifier.Publish(model.JobEvent{
		AccountID: job.AccountID,
		JobID:     job.ID,
		Status:    job.Status,
		URL:       job.URL,
		Error:     message,
	})
}
