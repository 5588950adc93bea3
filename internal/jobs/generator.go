package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
)

// StartResult reports how a generation request concluded.
type StartResult struct {
	JobID string
	// AlreadyActive means no new job was created: either the guard
	// found one up front or the service answered with a conflict.
	AlreadyActive bool
	// Verified is the guard decision's verification channel, passed
	// through so short-lived callers can drain it. May be nil.
	Verified <-chan struct{}
}

// StartGeneration runs the guard and, when the slot is free, creates a
// generation job from the collected profile. A conflict answer from the
// service is treated like a redirect: the reported job id is cached and
// returned.
func (g *Guard) StartGeneration(ctx context.Context, p *profile.BusinessProfile, websiteConfig map[string]interface{}) (StartResult, error) {
	if d := g.Check(ctx); d.Redirect {
		return StartResult{JobID: d.JobID, AlreadyActive: true, Verified: d.Verified}, nil
	}

	req := api.GenerateRequest{
		BusinessInfo:  p.JSON(),
		WebsiteConfig: websiteConfig,
	}
	job, err := g.api.CreateJob(ctx, req)
	if err != nil {
		if jobID, ok := api.ConflictJobID(err); ok {
			g.log.Info("generation conflict, adopting active job",
				zap.String("job_id", jobID))
			g.saveRecord(jobID, "in_progress")
			return StartResult{JobID: jobID, AlreadyActive: true}, nil
		}
		return StartResult{}, fmt.Errorf("create generation job: %w", err)
	}

	g.saveRecord(job.JobID, job.Status)
	return StartResult{JobID: job.JobID}, nil
}
