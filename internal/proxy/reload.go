package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/agentsafe/internal/backend"
)

// reloadDebounce collapses the burst of events an editor save produces into
// a single reload.
const reloadDebounce = 200 * time.Millisecond

// watchable reports whether hot reload applies: only file-backed local
// policies can change underneath us.
func (s *Server) watchable() bool {
	switch s.cfg.PolicyBackend {
	case "", "yaml", "local":
		return s.cfg.PolicyPath != ""
	}
	return false
}

// watchPolicy watches the policy file for writes and swaps the backend on
// change. The directory is watched rather than the file so that the
// rename-and-replace dance editors do still delivers events.
func (s *Server) watchPolicy(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logf("proxy: policy watcher unavailable: %v", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(s.cfg.PolicyPath)
	if err := watcher.Add(dir); err != nil {
		logf("proxy: watch %q: %v", dir, err)
		return
	}
	target := filepath.Base(s.cfg.PolicyPath)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, s.reloadPolicy)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logf("proxy: policy watcher error: %v", err)
		}
	}
}

// reloadPolicy loads a fresh backend and swaps it in. A failed load keeps
// the running policy.
func (s *Server) reloadPolicy() {
	b, err := backend.Load(s.cfg.PolicyBackend, s.cfg.PolicyPath, s.cfg.OPAURL, s.cfg.OPADecisionPath)
	if err != nil {
		logf("proxy: policy reload failed: %v", err)
		return
	}
	hash := ""
	if lb, ok := b.(*backend.Local); ok {
		hash = lb.PolicyHash()
	}

	s.mu.Lock()
	s.backend = b
	s.policyHash = hash
	s.mu.Unlock()

	logf("proxy: policy reloaded (%s)", hash)
}

func logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
