package store

import (
	"time"

	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
)

// Fixed keys for the typed accessors below. Nothing else writes to the
// scopes, which keeps key collisions impossible by construction.
const (
	keyProfile      = "business_profile"
	keyConversation = "conversation_ref"
	keyActiveJob    = "active_job"
)

// ConversationRef points at an in-progress server-side session so a
// later run can try to resume it.
type ConversationRef struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the ref is older than ttl as of now.
func (r ConversationRef) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) >= ttl
}

// ActiveJobRecord caches the generation job this client believes is in
// flight. A record owned by a different user is never trusted.
type ActiveJobRecord struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	OwnerUserID string    `json:"owner_user_id"`
	SavedAt     time.Time `json:"saved_at"`
}

func (st *Store) SaveProfile(p *profile.BusinessProfile) error {
	return st.durable.Set(keyProfile, p)
}

func (st *Store) LoadProfile() (*profile.BusinessProfile, bool) {
	p := profile.New()
	if !st.durable.Get(keyProfile, p) {
		return nil, false
	}
	return p, true
}

func (st *Store) SaveConversationRef(ref ConversationRef) error {
	return st.session.Set(keyConversation, ref)
}

func (st *Store) LoadConversationRef() (ConversationRef, bool) {
	var ref ConversationRef
	if !st.session.Get(keyConversation, &ref) {
		return ConversationRef{}, false
	}
	return ref, ref.SessionID != ""
}

func (st *Store) ClearConversationRef() error {
	return st.session.Delete(keyConversation)
}

func (st *Store) SaveActiveJob(rec ActiveJobRecord) error {
	return st.durable.Set(keyActiveJob, rec)
}

func (st *Store) LoadActiveJob() (ActiveJobRecord, bool) {
	var rec ActiveJobRecord
	if !st.durable.Get(keyActiveJob, &rec) {
		return ActiveJobRecord{}, false
	}
	return rec, rec.JobID != ""
}

func (st *Store) ClearActiveJob() error {
	return st.durable.Delete(keyActiveJob)
}
