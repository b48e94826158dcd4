package app

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
	"github.com/relicta-tech/installkit/internal/observability"
)

// Resolution is a non-blocking view of installed plugin info.
type Resolution struct {
	// Infos holds one entry per requested id that is known. A nil value means
	// the plugin is known not to be installed.
	Infos map[string]*domain.InstalledPluginInfo
	// Loading is true while some requested ids are still being fetched. An
	// absent entry does not mean "not installed" while loading.
	Loading bool
}

// Installed returns the info for pluginID when it is known to be installed.
func (r Resolution) Installed(pluginID string) (*domain.InstalledPluginInfo, bool) {
	info := r.Infos[pluginID]
	return info, info != nil
}

// InstalledVersionResolver is a read-through cache of installed plugin info
// shared by every wizard. Wizards never write to it; successful installs
// invalidate entries instead.
type InstalledVersionResolver struct {
	lister ports.InstalledPluginLister
	logger *slog.Logger

	mu         sync.RWMutex
	cache      map[string]*domain.InstalledPluginInfo
	generation uint64

	group singleflight.Group
	bg    sync.WaitGroup
}

// NewInstalledVersionResolver creates a resolver over lister.
func NewInstalledVersionResolver(lister ports.InstalledPluginLister, logger *slog.Logger) *InstalledVersionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstalledVersionResolver{
		lister: lister,
		logger: logger,
		cache:  make(map[string]*domain.InstalledPluginInfo),
	}
}

// Resolve returns installed info for pluginIDs, fetching the ids that are not
// cached. Concurrent fetches of the same ids are shared.
func (r *InstalledVersionResolver) Resolve(ctx context.Context, pluginIDs []string) (map[string]*domain.InstalledPluginInfo, error) {
	result, missing := r.snapshot(pluginIDs)
	if len(missing) == 0 {
		return result, nil
	}

	v, err, _ := r.group.Do(strings.Join(missing, "\x00"), func() (any, error) {
		return r.fetch(ctx, missing)
	})
	if err != nil {
		return nil, err
	}
	for id, info := range v.(map[string]*domain.InstalledPluginInfo) {
		result[id] = info
	}
	return result, nil
}

// Lookup returns what is cached for pluginIDs without blocking. When enabled
// is false nothing is fetched. Otherwise ids missing from the cache are
// fetched in the background and Loading is set.
func (r *InstalledVersionResolver) Lookup(pluginIDs []string, enabled bool) Resolution {
	if !enabled {
		return Resolution{Infos: map[string]*domain.InstalledPluginInfo{}}
	}

	infos, missing := r.snapshot(pluginIDs)
	if len(missing) == 0 {
		return Resolution{Infos: infos}
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if _, err := r.Resolve(context.Background(), missing); err != nil {
			r.logger.Warn("failed to fetch installed plugins", "plugin_ids", missing, "error", err)
		}
	}()
	return Resolution{Infos: infos, Loading: true}
}

// Wait blocks until background fetches started by Lookup have finished.
func (r *InstalledVersionResolver) Wait() {
	r.bg.Wait()
}

// Invalidate drops cached entries. Without ids the whole cache is dropped.
func (r *InstalledVersionResolver) Invalidate(pluginIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	if len(pluginIDs) == 0 {
		clear(r.cache)
		return
	}
	for _, id := range pluginIDs {
		delete(r.cache, id)
	}
}

func (r *InstalledVersionResolver) snapshot(pluginIDs []string) (map[string]*domain.InstalledPluginInfo, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make(map[string]*domain.InstalledPluginInfo, len(pluginIDs))
	var missing []string
	for _, id := range pluginIDs {
		if id == "" {
			continue
		}
		info, ok := r.cache[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		infos[id] = copyInfo(info)
	}
	slices.Sort(missing)
	return infos, slices.Compact(missing)
}

func (r *InstalledVersionResolver) fetch(ctx context.Context, pluginIDs []string) (map[string]*domain.InstalledPluginInfo, error) {
	r.mu.RLock()
	gen := r.generation
	r.mu.RUnlock()

	var listed map[string]domain.InstalledPluginInfo
	err := observability.TraceFunc(ctx, "resolver.list_installed", func(ctx context.Context) error {
		var err error
		listed, err = r.lister.ListInstalled(ctx, pluginIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	fetched := make(map[string]*domain.InstalledPluginInfo, len(pluginIDs))
	for _, id := range pluginIDs {
		if info, ok := listed[id]; ok {
			fetched[id] = &info
		} else {
			fetched[id] = nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// An invalidation during the fetch makes the answer stale for the cache.
	if gen == r.generation {
		for id, info := range fetched {
			r.cache[id] = info
		}
	}

	out := make(map[string]*domain.InstalledPluginInfo, len(fetched))
	for id, info := range fetched {
		out[id] = copyInfo(info)
	}
	return out, nil
}

func copyInfo(info *domain.InstalledPluginInfo) *domain.InstalledPluginInfo {
	if info == nil {
		return nil
	}
	cp := *info
	return &cp
}
