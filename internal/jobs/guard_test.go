package jobs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
	"github.com/sumit-dhanorkar/sitewizard/internal/store"
)

type fakeJobAPI struct {
	mu          sync.Mutex
	activeCalls int
	createCalls int

	activeFn func() (*api.ActiveJob, error)
	createFn func(req api.GenerateRequest) (*api.Job, error)
}

func (f *fakeJobAPI) ActiveJob(context.Context) (*api.ActiveJob, error) {
	f.mu.Lock()
	f.activeCalls++
	f.mu.Unlock()
	if f.activeFn != nil {
		return f.activeFn()
	}
	return nil, nil
}

func (f *fakeJobAPI) CreateJob(_ context.Context, req api.GenerateRequest) (*api.Job, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(req)
	}
	return &api.Job{JobID: "J-new", Status: "pending"}, nil
}

func (f *fakeJobAPI) calls() (active, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeCalls, f.createCalls
}

func newTestGuard(t *testing.T, client JobAPI, userID string) (*Guard, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "durable"), filepath.Join(dir, "session"), zap.NewNop())
	require.NoError(t, err)
	return NewGuard(client, st, userID, zap.NewNop()), st
}

func TestLocalHitRedirectsImmediately(t *testing.T) {
	fake := &fakeJobAPI{
		activeFn: func() (*api.ActiveJob, error) {
			return &api.ActiveJob{JobID: "J1", Status: "processing"}, nil
		},
	}
	guard, st := newTestGuard(t, fake, "u1")

	require.NoError(t, st.SaveActiveJob(store.ActiveJobRecord{
		JobID: "J1", Status: "processing", OwnerUserID: "u1", SavedAt: time.Now(),
	}))

	d := guard.Check(context.Background())
	require.True(t, d.Redirect)
	require.Equal(t, "J1", d.JobID)

	// Verification confirms the job; the record survives.
	require.NotNil(t, d.Verified)
	select {
	case <-d.Verified:
	case <-time.After(2 * time.Second):
		t.Fatal("background verification did not run")
	}
	_, ok := st.LoadActiveJob()
	require.True(t, ok)
}

func TestLocalHitStaleRecordPurgedAfterRedirect(t *testing.T) {
	fake := &fakeJobAPI{
		activeFn: func() (*api.ActiveJob, error) {
			// A realistic round trip: slow enough that a caller who
			// exits without draining Verified would keep the record.
			time.Sleep(50 * time.Millisecond)
			return nil, nil // service says nothing is running
		},
	}
	guard, st := newTestGuard(t, fake, "u1")

	require.NoError(t, st.SaveActiveJob(store.ActiveJobRecord{
		JobID: "J1", Status: "processing", OwnerUserID: "u1", SavedAt: time.Now(),
	}))

	// Redirect is optimistic: it happens even though the record turns
	// out stale, and before the round trip completes.
	d := guard.Check(context.Background())
	require.True(t, d.Redirect)
	_, ok := st.LoadActiveJob()
	require.True(t, ok, "redirect must not block on the remote check")

	require.NotNil(t, d.Verified)
	select {
	case <-d.Verified:
	case <-time.After(2 * time.Second):
		t.Fatal("background verification did not run")
	}
	_, ok = st.LoadActiveJob()
	require.False(t, ok, "stale record must be purged once Verified is drained")
}

func TestForeignOwnerRecordNeverTrusted(t *testing.T) {
	fake := &fakeJobAPI{}
	guard, st := newTestGuard(t, fake, "u2")

	require.NoError(t, st.SaveActiveJob(store.ActiveJobRecord{
		JobID: "J1", Status: "processing", OwnerUserID: "u1", SavedAt: time.Now(),
	}))

	d := guard.Check(context.Background())
	require.False(t, d.Redirect, "a record owned by another user must not cause a redirect")

	// The foreign record was purged and the remote check consulted.
	_, ok := st.LoadActiveJob()
	require.False(t, ok)
	active, _ := fake.calls()
	require.Equal(t, 1, active)
}

func TestRemoteCheckFindsJob(t *testing.T) {
	fake := &fakeJobAPI{
		activeFn: func() (*api.ActiveJob, error) {
			return &api.ActiveJob{JobID: "J7", Status: "queued"}, nil
		},
	}
	guard, st := newTestGuard(t, fake, "u1")

	d := guard.Check(context.Background())
	require.True(t, d.Redirect)
	require.Equal(t, "J7", d.JobID)

	rec, ok := st.LoadActiveJob()
	require.True(t, ok)
	require.Equal(t, "u1", rec.OwnerUserID, "fresh records carry the current user as owner")
}

func TestRemoteCheckIgnoresFinishedJob(t *testing.T) {
	fake := &fakeJobAPI{
		activeFn: func() (*api.ActiveJob, error) {
			return &api.ActiveJob{JobID: "J7", Status: "completed"}, nil
		},
	}
	guard, _ := newTestGuard(t, fake, "u1")

	d := guard.Check(context.Background())
	require.False(t, d.Redirect)
}

func TestRemoteCheckFailureIsFailOpen(t *testing.T) {
	fake := &fakeJobAPI{
		activeFn: func() (*api.ActiveJob, error) {
			return nil, &api.Error{Kind: api.KindTransport, Message: "connection refused"}
		},
	}
	guard, _ := newTestGuard(t, fake, "u1")

	d := guard.Check(context.Background())
	require.False(t, d.Redirect, "network failure must allow wizard entry")
}

func TestStartGenerationCreatesJob(t *testing.T) {
	fake := &fakeJobAPI{}
	guard, st := newTestGuard(t, fake, "u1")

	p := profile.New()
	p.CompanyName = "Acme Exports"

	res, err := guard.StartGeneration(context.Background(), p, map[string]interface{}{"template": "classic"})
	require.NoError(t, err)
	require.False(t, res.AlreadyActive)
	require.Equal(t, "J-new", res.JobID)

	rec, ok := st.LoadActiveJob()
	require.True(t, ok)
	require.Equal(t, "J-new", rec.JobID)
	require.Equal(t, "u1", rec.OwnerUserID)
}

func TestStartGenerationConflictAdoptsActiveJob(t *testing.T) {
	fake := &fakeJobAPI{
		createFn: func(api.GenerateRequest) (*api.Job, error) {
			return nil, &api.Error{
				Kind:    api.KindConflict,
				Status:  409,
				Message: "a generation job is already running",
				JobID:   "J-existing",
			}
		},
	}
	guard, st := newTestGuard(t, fake, "u1")

	res, err := guard.StartGeneration(context.Background(), profile.New(), nil)
	require.NoError(t, err)
	require.True(t, res.AlreadyActive)
	require.Equal(t, "J-existing", res.JobID)

	rec, ok := st.LoadActiveJob()
	require.True(t, ok)
	require.Equal(t, "J-existing", rec.JobID)
}

func TestStartGenerationGuardShortCircuits(t *testing.T) {
	fake := &fakeJobAPI{
		activeFn: func() (*api.ActiveJob, error) {
			return &api.ActiveJob{JobID: "J1", Status: "processing"}, nil
		},
	}
	guard, st := newTestGuard(t, fake, "u1")
	require.NoError(t, st.SaveActiveJob(store.ActiveJobRecord{
		JobID: "J1", Status: "processing", OwnerUserID: "u1", SavedAt: time.Now(),
	}))

	res, err := guard.StartGeneration(context.Background(), profile.New(), nil)
	require.NoError(t, err)
	require.True(t, res.AlreadyActive)
	require.Equal(t, "J1", res.JobID)

	_, create := fake.calls()
	require.Equal(t, 0, create, "no new job while one is active")
	require.NotNil(t, res.Verified, "guard redirects pass the verification channel through")
	<-res.Verified
}
