package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Allowlist is the set of recipients the send_message tool may reach.
// Backed by a JSON file ({"recipients": ["+5215550001", ...]}), reloaded
// on change so operators can extend it without a restart.
type Allowlist struct {
	mu         sync.RWMutex
	path       string
	recipients map[string]bool
}

type allowlistFile struct {
	Recipients []string `json:"recipients"`
}

// NewAllowlist loads the file at path. A missing file yields an empty
// allowlist (deny-all for recipient-targeted tools), not an error.
func NewAllowlist(path string) *Allowlist {
	a := &Allowlist{path: path, recipients: make(map[string]bool)}
	if err := a.reload(); err != nil && !os.IsNotExist(err) {
		slog.Warn("allowlist load failed", "path", path, "error", err)
	}
	return a
}

// Allowed reports whether the recipient is on the list.
func (a *Allowlist) Allowed(recipient string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recipients[recipient]
}

// Len returns the current list size.
func (a *Allowlist) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.recipients)
}

func (a *Allowlist) reload() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return err
	}
	var f allowlistFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	next := make(map[string]bool, len(f.Recipients))
	for _, r := range f.Recipients {
		next[r] = true
	}

	a.mu.Lock()
	a.recipients = next
	a.mu.Unlock()

	slog.Info("allowlist loaded", "path", a.path, "recipients", len(next))
	return nil
}

// Watch reloads the file on filesystem changes until ctx is cancelled.
// Watches the parent directory because editors replace files by rename.
func (a *Allowlist) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(a.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(a.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := a.reload(); err != nil {
				slog.Warn("allowlist reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("allowlist watcher error", "error", err)
		}
	}
}
