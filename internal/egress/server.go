// Package egress implements the forward proxy that sandboxed commands use
// for network access. Plain proxy requests and CONNECT tunnels are both
// checked against the policy's domain and port allowlists; every verdict
// lands on the audit ledger under the egress.proxy tool.
package egress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ppiankov/agentsafe/internal/audit"
	"github.com/ppiankov/agentsafe/internal/backend"
	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/state"
)

// dialTimeout bounds the TCP connect for a CONNECT tunnel.
const dialTimeout = 5 * time.Second

// Config holds egress proxy configuration.
type Config struct {
	Listen          string
	PolicyPath      string
	PolicyBackend   string
	LedgerPath      string
	OPAURL          string
	OPADecisionPath string
}

// Server is the allowlisting forward proxy. MITM-free: CONNECT sees the
// hostname and port only, never the plaintext.
type Server struct {
	cfg     Config
	backend backend.Backend
	ledger  *audit.Ledger
	srv     *http.Server
}

// NewServer loads the policy backend and builds the proxy.
func NewServer(cfg Config) (*Server, error) {
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = state.LedgerPath(".")
	}
	b, err := backend.Load(cfg.PolicyBackend, cfg.PolicyPath, cfg.OPAURL, cfg.OPADecisionPath)
	if err != nil {
		return nil, fmt.Errorf("egress: load policy backend: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		backend: b,
		ledger:  audit.NewLedger(cfg.LedgerPath),
	}
	s.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: s,
	}
	return s, nil
}

// Start listens and serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("egress: listen on %s: %w", s.srv.Addr, err)
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

// ServeHTTP dispatches CONNECT tunnels and plain proxy requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		s.handleConnect(w, r)
		return
	}
	s.handleHTTP(w, r)
}

// handleHTTP checks and forwards a plain proxy request. The request URL must
// be absolute, which is what clients send when configured with a proxy.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if !r.URL.IsAbs() {
		http.Error(w, "egress: not a proxy request", http.StatusBadRequest)
		return
	}

	target := r.URL.String()
	decision := s.backend.EvaluateFetch(target)
	s.audit(fmt.Sprintf("%s %s", r.Method, target), decision)

	if !decision.Allowed {
		body, _ := json.Marshal(map[string]string{
			"error":   "blocked",
			"reason":  decision.Reason,
			"rule_id": decision.RuleID,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write(body)
		return
	}

	r.RequestURI = ""
	resp, err := http.DefaultTransport.RoundTrip(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("egress: forward: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// handleConnect checks the CONNECT target and, when allowed, tunnels bytes
// both ways until either side closes.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	decision := s.backend.EvaluateFetch(connectURL(r.Host))
	s.audit("CONNECT "+r.Host, decision)

	if !decision.Allowed {
		http.Error(w, fmt.Sprintf("egress blocked: %s (%s)", decision.Reason, decision.RuleID), http.StatusForbidden)
		return
	}

	targetConn, err := net.DialTimeout("tcp", r.Host, dialTimeout)
	if err != nil {
		http.Error(w, fmt.Sprintf("egress: tunnel: %v", err), http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		targetConn.Close()
		http.Error(w, "egress: hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		targetConn.Close()
		http.Error(w, fmt.Sprintf("egress: hijack: %v", err), http.StatusInternalServerError)
		return
	}
	io.WriteString(clientConn, "HTTP/1.1 200 Connection Established\r\n\r\n")

	go func() {
		defer targetConn.Close()
		defer clientConn.Close()
		io.Copy(targetConn, clientConn)
	}()
	go func() {
		defer targetConn.Close()
		defer clientConn.Close()
		io.Copy(clientConn, targetConn)
	}()
}

// audit appends one verdict to the ledger.
func (s *Server) audit(summary string, decision model.Decision) {
	outcome := audit.DecisionBlock
	if decision.Allowed {
		outcome = audit.DecisionAllow
	}
	err := s.ledger.Append(audit.Event{
		RequestID:   audit.NewRequestID(),
		Tool:        "egress.proxy",
		ArgsSummary: summary,
		Decision:    outcome,
		Reason:      decision.Reason,
		RuleID:      decision.RuleID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "egress: audit append failed: %v\n", err)
	}
}

// connectURL synthesizes a URL for policy evaluation from a CONNECT target.
// Port 443 reads as https, anything else as http with an explicit port.
func connectURL(hostport string) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, "443"
	}
	if port == "443" {
		return "https://" + net.JoinHostPort(host, port)
	}
	return "http://" + net.JoinHostPort(host, port)
}
