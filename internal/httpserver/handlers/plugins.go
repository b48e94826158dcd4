package handlers

import (
	"net/http"
	"strings"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/httpserver/dto"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// CheckUpdates answers GET /updates?repo=owner/repo&current=1.2.0.
func (h *Handler) CheckUpdates(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.CheckUpdates"

	if h.advisor == nil {
		respondError(w, http.StatusServiceUnavailable, "update checks are not configured", rperrors.KindConfig.String())
		return
	}
	q := r.URL.Query()
	repo, ok := domain.ParseRepoRef(q.Get("repo"))
	if !ok {
		respondErr(w, h.logger, rperrors.Validation(op, "repo must be owner/repo"))
		return
	}
	current := q.Get("current")

	advice, releases, err := h.advisor.CheckRepository(r.Context(), repo, current)
	if err != nil {
		respondErr(w, h.logger, rperrors.NetworkWrap(err, op, advice.Advisory.Message))
		return
	}
	respondJSON(w, http.StatusOK, dto.UpdateCheckResponse{
		Repo:       repo.String(),
		Current:    current,
		NeedUpdate: advice.NeedUpdate,
		Advisory:   advice.Advisory,
		Versions:   domain.ReleaseTags(releases),
	})
}

// InstalledPlugins answers GET /plugins?ids=a/b,c/d through the shared
// installed version cache.
func (h *Handler) InstalledPlugins(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.InstalledPlugins"

	if h.services.Resolver == nil {
		respondError(w, http.StatusServiceUnavailable, "installed plugin lookup is not configured", rperrors.KindConfig.String())
		return
	}
	var ids []string
	for _, raw := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		respondErr(w, h.logger, rperrors.Validation(op, "at least one plugin id is required"))
		return
	}

	infos, err := h.services.Resolver.Resolve(r.Context(), ids)
	if err != nil {
		respondErr(w, h.logger, rperrors.NetworkWrap(err, op, "failed to check installed plugins"))
		return
	}
	out := make(map[string]*domain.InstalledPluginInfo, len(ids))
	for _, id := range ids {
		out[id] = infos[id]
	}
	respondJSON(w, http.StatusOK, dto.InstalledPluginsResponse{Plugins: out})
}
