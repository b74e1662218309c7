package grant

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/agentsafe/internal/audit"
)

// Store is the grant event log. Grants are issued and revoked by appending
// events; the live set is recomputed from the log on every read.
type Store struct {
	path string
	mu   sync.Mutex

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore returns a store backed by the given JSONL file.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Issue appends an issue event and returns the new grant.
func (s *Store) Issue(actor, tool, scope string, ttl time.Duration, reason string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	g := Grant{
		GrantID:   uuid.NewString(),
		Actor:     actor,
		Tool:      tool,
		Scope:     scope,
		Reason:    reason,
		CreatedAt: now.Format(audit.TimestampFormat),
		ExpiresAt: now.Add(ttl).Format(audit.TimestampFormat),
	}
	rec := record{
		Action:    "issue",
		GrantID:   g.GrantID,
		Actor:     g.Actor,
		Tool:      g.Tool,
		Scope:     g.Scope,
		Reason:    g.Reason,
		CreatedAt: g.CreatedAt,
		ExpiresAt: g.ExpiresAt,
	}
	if err := appendRecord(s.path, rec); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// Revoke appends a revoke event. Revoking an unknown grant id is recorded
// and simply has no effect on replay.
func (s *Store) Revoke(grantID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reason == "" {
		reason = "manual revoke"
	}
	rec := record{
		Action:    "revoke",
		GrantID:   grantID,
		Reason:    reason,
		Timestamp: s.now().UTC().Format(audit.TimestampFormat),
	}
	return appendRecord(s.path, rec)
}

// Active folds the log into the set of live grants: issued, never revoked,
// not yet expired.
func (s *Store) Active() ([]Grant, error) {
	recs, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	revoked := make(map[string]bool)
	for _, r := range recs {
		if r.Action == "revoke" {
			revoked[r.GrantID] = true
		}
	}
	now := s.now().UTC()
	var out []Grant
	for _, r := range recs {
		if r.Action != "issue" || revoked[r.GrantID] {
			continue
		}
		g := Grant{
			GrantID:   r.GrantID,
			Actor:     r.Actor,
			Tool:      r.Tool,
			Scope:     r.Scope,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
		}
		if g.Expired(now) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

// IsAllowed reports whether any active grant covers the actor, tool, and
// scope string.
func (s *Store) IsAllowed(actor, tool, scope string) (bool, error) {
	grants, err := s.Active()
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Covers(actor, tool, scope) {
			return true, nil
		}
	}
	return false, nil
}
