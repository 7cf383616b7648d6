// Package tenant maintains the set of configured customer organizations the
// gateway is allowed to act for. Tool calls validate their target company
// against this registry before anything is dispatched downstream.
package tenant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/voicedesk-ai/voicedesk/internal/logging"
)

// Tenant is one configured customer organization.
type Tenant struct {
	CompanyID      int64  `yaml:"companyId" json:"companyId"`
	RoutingQueueID int64  `yaml:"routingQueueId" json:"routingQueueId"`
	DisplayName    string `yaml:"displayName" json:"displayName"`

	// Fields consumed by the agent-config generator.
	Greeting          string `yaml:"greeting,omitempty" json:"greeting,omitempty"`
	TransferExtension string `yaml:"transferExtension,omitempty" json:"transferExtension,omitempty"`
}

// file is the on-disk shape of the tenants file.
type file struct {
	Tenants []Tenant `yaml:"tenants"`
}

// Registry holds the tenant set, reloadable from disk.
type Registry struct {
	mu      sync.RWMutex
	path    string
	byID    map[int64]Tenant
	ordered []Tenant
}

// Load reads the tenants file and builds a registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// reload re-reads the file, replacing the tenant set only on success.
func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read tenants %s: %w", r.path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse tenants %s: %w", r.path, err)
	}

	byID := make(map[int64]Tenant, len(f.Tenants))
	for _, t := range f.Tenants {
		if t.CompanyID == 0 {
			return fmt.Errorf("tenants %s: entry %q missing companyId", r.path, t.DisplayName)
		}
		if _, dup := byID[t.CompanyID]; dup {
			return fmt.Errorf("tenants %s: duplicate companyId %d", r.path, t.CompanyID)
		}
		byID[t.CompanyID] = t
	}

	r.mu.Lock()
	r.byID = byID
	r.ordered = f.Tenants
	r.mu.Unlock()
	return nil
}

// Get returns the tenant for a company id.
func (r *Registry) Get(companyID int64) (Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[companyID]
	return t, ok
}

// All returns the tenants in file order.
func (r *Registry) All() []Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tenant, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Count returns the number of configured tenants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Watch reloads the registry when the tenants file changes, until ctx is
// cancelled. A reload failure keeps the previous tenant set and is logged.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tenant watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("tenant watcher: %w", err)
	}

	lg := logging.Component("tenant")
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if err := r.reload(); err != nil {
				lg.Error().Err(err).Msg("tenant reload failed, keeping previous set")
				continue
			}
			lg.Info().Int("tenants", r.Count()).Msg("tenants reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			lg.Error().Err(err).Msg("tenant watcher error")
		}
	}
}
