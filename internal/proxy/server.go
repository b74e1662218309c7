package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/ppiankov/agentsafe/internal/adapter"
	"github.com/ppiankov/agentsafe/internal/audit"
	"github.com/ppiankov/agentsafe/internal/backend"
	"github.com/ppiankov/agentsafe/internal/grant"
)

// upstreamTimeout bounds one forwarded request end to end.
const upstreamTimeout = 20 * time.Second

// Server is the enforcing reverse proxy. Tool routes are evaluated and
// audited before forwarding; all other traffic passes through untouched.
type Server struct {
	cfg    Config
	routes []*regexp.Regexp
	ledger *audit.Ledger
	grants *grant.Store
	adapt  adapter.Func
	client *http.Client
	srv    *http.Server

	mu         sync.RWMutex
	backend    backend.Backend
	policyHash string
}

// NewServer builds a proxy from config, loading the policy backend, adapter,
// and event logs.
func NewServer(cfg Config) (*Server, error) {
	cfg.Normalize()

	routes, err := compileRoutes(cfg.RouteRegexes)
	if err != nil {
		return nil, err
	}

	adapt, err := adapter.ByName(cfg.Adapter)
	if err != nil {
		return nil, err
	}

	b, err := backend.Load(cfg.PolicyBackend, cfg.PolicyPath, cfg.OPAURL, cfg.OPADecisionPath)
	if err != nil {
		return nil, fmt.Errorf("proxy: load policy backend: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		routes:  routes,
		ledger:  audit.NewLedger(cfg.LedgerPath),
		grants:  grant.NewStore(cfg.GrantsPath),
		adapt:   adapt,
		client:  &http.Client{Timeout: upstreamTimeout},
		backend: b,
	}
	if lb, ok := b.(*backend.Local); ok {
		s.policyHash = lb.PolicyHash()
	}

	s.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: s,
	}
	return s, nil
}

// Start listens and serves until the context is cancelled. When the config
// names a policy file and a local backend, the file is watched for changes.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("proxy: listen on %s: %w", s.srv.Addr, err)
	}

	if s.watchable() {
		go s.watchPolicy(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// currentBackend returns the active backend under the reload lock.
func (s *Server) currentBackend() backend.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// ServeHTTP evaluates tool routes and forwards everything.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	generatedID := audit.NewRequestID()

	if !routeMatches(r.URL.Path, s.routes) {
		s.forward(w, r, nil, generatedID)
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "bad_request",
			"reason":     fmt.Sprintf("read body: %v", err),
			"request_id": generatedID,
		})
		return
	}
	r.Body.Close()

	// An undecodable body is an empty payload; the adapter decides whether
	// that is a 400 or the generic fallback.
	payload := map[string]any{}
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			payload = map[string]any{}
		}
	}

	actor := r.Header.Get(s.cfg.ActorHeader)
	if actor == "" {
		actor = adapter.DefaultActor
	}

	action, err := s.adapt(r.URL.Path, payload, actor)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "bad_request",
			"reason":     err.Error(),
			"request_id": generatedID,
		})
		return
	}

	eval, err := decide(s.currentBackend(), s.grants, action, s.workspaceRoot())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "bad_request",
			"reason":     err.Error(),
			"request_id": generatedID,
		})
		return
	}

	requestID := eval.Action.RequestID
	if requestID == "" {
		requestID = generatedID
	}
	s.audit(eval, requestID)

	if !eval.Decision.Allowed {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":      "blocked",
			"reason":     eval.Decision.Reason,
			"rule_id":    eval.Decision.RuleID,
			"request_id": requestID,
		})
		return
	}

	s.forward(w, r, rawBody, generatedID)
}

// audit appends the decision to the ledger. A ledger write failure must not
// turn an ALLOW into a 500, so it is reported on stderr only.
func (s *Server) audit(eval Evaluation, requestID string) {
	ev := audit.Event{
		RequestID:   requestID,
		Actor:       eval.Action.Actor,
		Tool:        "proxy",
		ArgsSummary: fmt.Sprintf("route=%s tool=%s", eval.Action.Route, eval.Action.Tool),
		Decision:    audit.DecisionBlock,
		Reason:      eval.Decision.Reason,
		RuleID:      eval.Decision.RuleID,
		Proxy: &audit.ProxyDetail{
			Route:         eval.Action.Route,
			Tool:          eval.Action.Tool,
			Args:          eval.Action.Args,
			SessionID:     eval.Action.SessionID,
			Upstream:      s.cfg.Upstream,
			PolicyBackend: s.cfg.PolicyBackend,
			Adapter:       s.cfg.Adapter,
		},
	}
	if eval.Decision.Allowed {
		ev.Decision = audit.DecisionAllow
	}
	if err := s.ledger.Append(ev); err != nil {
		logf("proxy: audit append failed: %v", err)
	}
}

// forward relays the request to the upstream. When body is nil the request
// body is streamed through; otherwise the already-read bytes are re-sent.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, body []byte, requestID string) {
	upstreamURL := joinUpstream(s.cfg.Upstream, r.URL.RequestURI())

	var reader io.Reader = r.Body
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, reader)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "upstream_unavailable",
			"reason":     err.Error(),
			"request_id": requestID,
		})
		return
	}
	for k, vv := range r.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Host", "Content-Length":
			continue
		}
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "upstream_unavailable",
			"reason":     err.Error(),
			"request_id": requestID,
		})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "upstream_unavailable",
			"reason":     fmt.Sprintf("read upstream response: %v", err),
			"request_id": requestID,
		})
		return
	}

	for k, vv := range resp.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Content-Length", "Transfer-Encoding", "Connection":
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(respBody)))
	w.WriteHeader(resp.StatusCode)
	w.Write(respBody)
}

func (s *Server) workspaceRoot() string {
	abs, err := filepath.Abs(s.cfg.Workspace)
	if err != nil {
		return s.cfg.Workspace
	}
	return abs
}

// joinUpstream glues the original request URI onto the upstream base.
func joinUpstream(upstream, requestURI string) string {
	base := upstream
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if len(requestURI) == 0 || requestURI[0] != '/' {
		requestURI = "/" + requestURI
	}
	return base + requestURI
}

func writeJSON(w http.ResponseWriter, code int, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(code)
	w.Write(body)
}
