package grant

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/agentsafe/internal/audit"
)

// Approval request statuses. "expired" is never written to the log; it is a
// view over pending requests past their expiry.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

// DefaultRequestTTL bounds how long an approval request stays actionable.
const DefaultRequestTTL = 15 * time.Minute

// ApprovalRequest tracks a capability request through review.
type ApprovalRequest struct {
	RequestID  string `json:"request_id"`
	Actor      string `json:"actor"`
	Tool       string `json:"tool"`
	Scope      string `json:"scope"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	Status     string `json:"status"`
	Reviewer   string `json:"reviewer,omitempty"`
	ReviewedAt string `json:"reviewed_at,omitempty"`
	ReviewNote string `json:"review_note,omitempty"`
	GrantID    string `json:"grant_id,omitempty"`
}

// RequestStore is the approval request event log.
type RequestStore struct {
	path string
	mu   sync.Mutex

	// now is replaceable in tests.
	now func() time.Time
}

// NewRequestStore returns a store backed by the given JSONL file.
func NewRequestStore(path string) *RequestStore {
	return &RequestStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *RequestStore) Path() string {
	return s.path
}

// Create appends a pending request. A non-positive ttl falls back to
// DefaultRequestTTL.
func (s *RequestStore) Create(actor, tool, scope, reason string, ttl time.Duration) (ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	now := s.now().UTC()
	req := ApprovalRequest{
		RequestID: uuid.NewString(),
		Actor:     actor,
		Tool:      tool,
		Scope:     scope,
		Reason:    reason,
		CreatedAt: now.Format(audit.TimestampFormat),
		ExpiresAt: now.Add(ttl).Format(audit.TimestampFormat),
		Status:    StatusPending,
	}
	rec := record{
		Action:    "request",
		RequestID: req.RequestID,
		Actor:     req.Actor,
		Tool:      req.Tool,
		Scope:     req.Scope,
		Reason:    req.Reason,
		CreatedAt: req.CreatedAt,
		ExpiresAt: req.ExpiresAt,
		Status:    req.Status,
	}
	if err := appendRecord(s.path, rec); err != nil {
		return ApprovalRequest{}, err
	}
	return req, nil
}

// materialize folds the log into requests keyed by id. Review events that
// reference an unknown request, or one already reviewed, are skipped.
func (s *RequestStore) materialize() (map[string]*ApprovalRequest, error) {
	recs, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	reqs := make(map[string]*ApprovalRequest)
	for _, r := range recs {
		switch r.Action {
		case "request":
			reqs[r.RequestID] = &ApprovalRequest{
				RequestID: r.RequestID,
				Actor:     r.Actor,
				Tool:      r.Tool,
				Scope:     r.Scope,
				Reason:    r.Reason,
				CreatedAt: r.CreatedAt,
				ExpiresAt: r.ExpiresAt,
				Status:    StatusPending,
			}
		case "approve", "reject":
			req, ok := reqs[r.RequestID]
			if !ok || req.Status != StatusPending {
				continue
			}
			if r.Action == "approve" {
				req.Status = StatusApproved
			} else {
				req.Status = StatusRejected
			}
			req.Reviewer = r.Reviewer
			req.ReviewedAt = r.ReviewedAt
			req.ReviewNote = r.Reason
			req.GrantID = r.GrantID
		}
	}
	return reqs, nil
}

// List returns requests newest first. Status "all" keeps everything;
// otherwise only matching requests are returned. Pending requests past
// their expiry read as expired.
func (s *RequestStore) List(status string) ([]ApprovalRequest, error) {
	reqs, err := s.materialize()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var out []ApprovalRequest
	for _, req := range reqs {
		if req.Status == StatusPending && expired(req.ExpiresAt, now) {
			req.Status = StatusExpired
		}
		if status != "all" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

// Get returns one request by id.
func (s *RequestStore) Get(requestID string) (ApprovalRequest, error) {
	reqs, err := s.materialize()
	if err != nil {
		return ApprovalRequest{}, err
	}
	req, ok := reqs[requestID]
	if !ok {
		return ApprovalRequest{}, fmt.Errorf("grant: unknown request id %q", requestID)
	}
	if req.Status == StatusPending && expired(req.ExpiresAt, s.now().UTC()) {
		req.Status = StatusExpired
	}
	return *req, nil
}

// Approve issues a grant for the request and then records the approval. The
// grant is written first: a crash between the two appends leaves an issued
// grant rather than an approval pointing at nothing.
func (s *RequestStore) Approve(requestID, reviewer string, ttl time.Duration, reason string, grants *Store) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs, err := s.materialize()
	if err != nil {
		return Grant{}, err
	}
	req, ok := reqs[requestID]
	if !ok {
		return Grant{}, fmt.Errorf("grant: unknown request id %q", requestID)
	}
	if req.Status != StatusPending {
		return Grant{}, fmt.Errorf("grant: request %q is not pending (status %s)", requestID, req.Status)
	}
	if expired(req.ExpiresAt, s.now().UTC()) {
		return Grant{}, fmt.Errorf("grant: request %q has expired", requestID)
	}

	g, err := grants.Issue(req.Actor, req.Tool, req.Scope, ttl, reason)
	if err != nil {
		return Grant{}, err
	}
	rec := record{
		Action:     "approve",
		RequestID:  requestID,
		GrantID:    g.GrantID,
		Reviewer:   reviewer,
		Reason:     reason,
		ReviewedAt: s.now().UTC().Format(audit.TimestampFormat),
	}
	if err := appendRecord(s.path, rec); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// Reject records a rejection for a pending request.
func (s *RequestStore) Reject(requestID, reviewer, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs, err := s.materialize()
	if err != nil {
		return err
	}
	req, ok := reqs[requestID]
	if !ok {
		return fmt.Errorf("grant: unknown request id %q", requestID)
	}
	if req.Status != StatusPending {
		return fmt.Errorf("grant: request %q is not pending (status %s)", requestID, req.Status)
	}
	rec := record{
		Action:     "reject",
		RequestID:  requestID,
		Reviewer:   reviewer,
		Reason:     reason,
		ReviewedAt: s.now().UTC().Format(audit.TimestampFormat),
	}
	return appendRecord(s.path, rec)
}
