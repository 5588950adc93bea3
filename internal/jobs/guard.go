// Package jobs enforces "at most one in-flight generation job per
// user" across process restarts and concurrent runs, by reconciling the
// local cache against the remote service's authoritative job state.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/store"
)

// JobAPI is the slice of the transport client the guard needs.
type JobAPI interface {
	ActiveJob(ctx context.Context) (*api.ActiveJob, error)
	CreateJob(ctx context.Context, req api.GenerateRequest) (*api.Job, error)
}

// Decision is the guard's verdict for one wizard entry.
type Decision struct {
	// Redirect means an active job exists; the caller should show job
	// progress instead of allowing a new generation.
	Redirect bool
	JobID    string
	// Verified closes once the background verification of a locally
	// cached record finishes. Nil when no verification was started.
	// Short-lived callers must drain it before exiting, or the purge of
	// a finished job's record loses the race with process exit and the
	// redirect repeats on every run.
	Verified <-chan struct{}
}

// Guard runs the active-job check. It must be evaluated on every entry
// into the wizard; the optimistic local path is corrected by background
// verification only for future entries, never retroactively.
type Guard struct {
	api    JobAPI
	store  *store.Store
	log    *zap.Logger
	userID string
	now    func() time.Time
}

func NewGuard(client JobAPI, st *store.Store, userID string, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		api:    client,
		store:  st,
		log:    log,
		userID: userID,
		now:    time.Now,
	}
}

// activeStatuses are job states that still occupy the single slot.
func isActiveStatus(status string) bool {
	switch status {
	case "pending", "queued", "processing", "in_progress":
		return true
	default:
		return false
	}
}

// Check reconciles local and remote job state and decides whether to
// redirect or allow wizard entry.
//
// A cached record owned by the current user redirects immediately and
// verifies in the background: navigation is never blocked on the remote
// check, and a stale record only costs one extra redirect. A record
// owned by anyone else is purged before use. With no trustworthy local
// record the remote service is asked; a failure there is fail-open,
// since the service itself arbitrates again at job-creation time.
func (g *Guard) Check(ctx context.Context) Decision {
	rec, ok := g.store.LoadActiveJob()
	if ok && rec.OwnerUserID == g.userID {
		done := make(chan struct{})
		go func() {
			defer close(done)
			g.verify(rec)
		}()
		return Decision{Redirect: true, JobID: rec.JobID, Verified: done}
	}
	if ok {
		g.log.Info("purging job record owned by another user",
			zap.String("record_owner", rec.OwnerUserID),
			zap.String("current_user", g.userID))
		if err := g.store.ClearActiveJob(); err != nil {
			g.log.Warn("failed to purge foreign job record", zap.Error(err))
		}
	}

	job, err := g.api.ActiveJob(ctx)
	if err != nil {
		g.log.Warn("active job check failed, allowing wizard entry", zap.Error(err))
		return Decision{}
	}
	if job != nil && isActiveStatus(job.Status) {
		g.saveRecord(job.JobID, job.Status)
		return Decision{Redirect: true, JobID: job.JobID}
	}
	return Decision{}
}

// verify checks a locally cached record against the service after an
// optimistic redirect. It only corrects the cache for the next entry;
// the navigation that already happened stands.
func (g *Guard) verify(rec store.ActiveJobRecord) {
	job, err := g.api.ActiveJob(context.Background())
	if err != nil {
		g.log.Warn("background job verification failed", zap.Error(err))
		return
	}

	if job == nil || job.JobID != rec.JobID || !isActiveStatus(job.Status) {
		if err := g.store.ClearActiveJob(); err != nil {
			g.log.Warn("failed to purge stale job record", zap.Error(err))
		} else {
			g.log.Info("purged stale job record",
				zap.String("job_id", rec.JobID))
		}
	}
}

func (g *Guard) saveRecord(jobID, status string) {
	err := g.store.SaveActiveJob(store.ActiveJobRecord{
		JobID:       jobID,
		Status:      status,
		OwnerUserID: g.userID,
		SavedAt:     g.now(),
	})
	if err != nil {
		g.log.Warn("failed to cache job record", zap.Error(err))
	}
}
