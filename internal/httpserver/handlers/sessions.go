package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/httpserver/dto"
	"github.com/relicta-tech/installkit/internal/httpserver/websocket"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// DefaultMaxUploadBytes bounds local package uploads.
const DefaultMaxUploadBytes = 64 << 20

// Options configures a Handler.
type Options struct {
	Services app.Services
	// Advisor answers update checks. One is built from Services when nil.
	Advisor        *app.UpdateAdvisor
	Events         *websocket.Broadcaster
	Sessions       *SessionStore
	Logger         *slog.Logger
	MaxUploadBytes int64
	Version        string
}

// Handler serves the session API.
type Handler struct {
	services  app.Services
	advisor   *app.UpdateAdvisor
	events    *websocket.Broadcaster
	sessions  *SessionStore
	logger    *slog.Logger
	maxUpload int64
	version   string

	installs sync.WaitGroup
}

// New creates a Handler.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	advisor := opts.Advisor
	if advisor == nil && opts.Services.Releases != nil {
		advisor = app.NewUpdateAdvisor(opts.Services.Releases, logger)
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewSessionStore(DefaultSessionTTL)
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Handler{
		services:  opts.Services,
		advisor:   advisor,
		events:    opts.Events,
		sessions:  sessions,
		logger:    logger.With("component", "api"),
		maxUpload: maxUpload,
		version:   opts.Version,
	}
}

// Wait blocks until running installs have returned.
func (h *Handler) Wait() {
	h.installs.Wait()
}

// Close cancels every session and waits for running installs.
func (h *Handler) Close() {
	h.sessions.Close()
	h.installs.Wait()
}

// register stores w as a new session and publishes its steps.
func (h *Handler) register(flow domain.Flow, w installWizard) *session {
	for _, id := range h.sessions.Prune() {
		h.events.SessionClosed(id)
	}
	s := h.sessions.add(flow, w)
	w.OnStep(h.events.StepListener(s.id, flow))
	h.events.SessionCreated(s.dto())
	h.logger.Info("session created", "session", s.id, "flow", string(flow))
	return s
}

// session resolves the {id} URL parameter.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	s, ok := h.sessions.get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found", rperrors.KindNotFound.String())
	}
	return s, ok
}

// CreateGitHubSession starts a GitHub flow. With an update payload the
// repository's releases are fetched and the session starts on package
// selection.
func (h *Handler) CreateGitHubSession(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateGitHubSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if req.Update != nil {
		h.createGitHubUpdate(w, r, *req.Update)
		return
	}

	wiz, err := app.NewGitHubWizard(h.services)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	s := h.register(domain.FlowGitHub, wiz)
	if req.URL != "" {
		// A rejected URL stays visible as the step message.
		_ = wiz.SubmitURL(r.Context(), req.URL)
	}
	respondJSON(w, http.StatusCreated, s.dto())
}

func (h *Handler) createGitHubUpdate(w http.ResponseWriter, r *http.Request, req dto.GitHubUpdateRequest) {
	const op = "handlers.CreateGitHubSession"

	repo, ok := domain.ParseRepoRef(req.Repo)
	if !ok {
		respondErr(w, h.logger, rperrors.Validation(op, domain.ErrInvalidGitHubURL.Error()))
		return
	}
	releases, err := h.services.Releases.FetchReleases(r.Context(), repo.Owner, repo.Repo)
	if err != nil {
		respondErr(w, h.logger, rperrors.NetworkWrap(err, op, domain.ErrFetchReleases.Error()))
		return
	}

	wiz, err := app.NewGitHubUpdateWizard(h.services, app.GitHubUpdatePayload{
		Repo:      repo.String(),
		Version:   req.Version,
		Package:   req.Package,
		Releases:  releases,
		Installed: req.Installed,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	s := h.register(domain.FlowGitHubUpdate, wiz)
	respondJSON(w, http.StatusCreated, s.dto())
}

// CreateLocalSession uploads the multipart "file" field and starts a local
// flow. The response reflects the upload result.
func (h *Handler) CreateLocalSession(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.CreateLocalSession"

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		if statusFor(err) == http.StatusRequestEntityTooLarge {
			respondErr(w, h.logger, err)
			return
		}
		respondErr(w, h.logger, rperrors.Wrap(err, rperrors.KindValidation, op, "a package or bundle file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondErr(w, h.logger, rperrors.IOWrap(err, op, "failed to read uploaded file"))
		return
	}

	wiz, err := app.NewLocalWizard(h.services, app.LocalFile{
		Name: header.Filename,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	s := h.register(domain.FlowLocal, wiz)
	// Failures move the session to upload_failed.
	_ = wiz.Upload(r.Context())
	respondJSON(w, http.StatusCreated, s.dto())
}

// CreateMarketplaceSession starts a marketplace flow.
func (h *Handler) CreateMarketplaceSession(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMarketplaceSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if req.UniqueIdentifier == "" {
		respondError(w, http.StatusBadRequest, "unique_identifier is required", rperrors.KindValidation.String())
		return
	}

	wiz, err := app.NewMarketplaceWizard(r.Context(), h.services, req.UniqueIdentifier, nil)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	s := h.register(domain.FlowMarketplace, wiz)
	respondJSON(w, http.StatusCreated, s.dto())
}

// ListSessions lists live sessions, oldest first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	all := h.sessions.list()
	out := make([]dto.SessionDTO, 0, len(all))
	for _, s := range all {
		out = append(out, s.dto())
	}
	respondJSON(w, http.StatusOK, out)
}

// GetSession returns one session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		respondJSON(w, http.StatusOK, s.dto())
	}
}

// DeleteSession cancels a session and forgets it.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.remove(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found", rperrors.KindNotFound.String())
		return
	}
	s.close()
	h.events.SessionClosed(s.id)
	h.logger.Info("session canceled", "session", s.id)
	w.WriteHeader(http.StatusNoContent)
}

// githubAction runs fn against a GitHub session.
func (h *Handler) githubAction(w http.ResponseWriter, r *http.Request, fn func(*app.GitHubWizard) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	g, ok := s.wizard.(*app.GitHubWizard)
	if !ok {
		respondErr(w, h.logger, app.ErrStepMismatch)
		return
	}
	if err := fn(g); err != nil && !s.wizard.Step().ID().IsTerminal() {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, s.dto())
}

// SubmitURL submits a repository URL.
func (h *Handler) SubmitURL(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitURLRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.githubAction(w, r, func(g *app.GitHubWizard) error {
		return g.SubmitURL(r.Context(), req.URL)
	})
}

// SelectVersion selects a release.
func (h *Handler) SelectVersion(w http.ResponseWriter, r *http.Request) {
	var req dto.SelectVersionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.githubAction(w, r, func(g *app.GitHubWizard) error {
		return g.SelectVersion(req.Version)
	})
}

// SelectPackage selects an asset of the selected release.
func (h *Handler) SelectPackage(w http.ResponseWriter, r *http.Request) {
	var req dto.SelectPackageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.githubAction(w, r, func(g *app.GitHubWizard) error {
		return g.SelectPackage(req.Package)
	})
}

// Upload uploads the selected asset. An upload failure is reported through
// the upload_failed step with status 200.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	h.githubAction(w, r, func(g *app.GitHubWizard) error {
		if _, ok := g.Step().(domain.SelectPackageStep); !ok {
			return app.ErrStepMismatch
		}
		if !g.CanUpload() {
			return rperrors.Validation("handlers.Upload", "select a version and a package first")
		}
		return g.Upload(r.Context())
	})
}

// Back returns to the previous step.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	h.githubAction(w, r, func(g *app.GitHubWizard) error {
		if !g.Back() {
			return app.ErrStepMismatch
		}
		return nil
	})
}

// Retry leaves a failure step.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !s.wizard.Retry() {
		respondErr(w, h.logger, app.ErrStepMismatch)
		return
	}
	respondJSON(w, http.StatusOK, s.dto())
}

// Install starts an install attempt in the background and answers 202.
// Progress is visible through the session and the WebSocket.
func (h *Handler) Install(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req dto.InstallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if !s.wizard.CanInstall() {
		respondErr(w, h.logger, app.ErrStepMismatch)
		return
	}

	// The attempt outlives the request but keeps its values.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	if !s.startRun(cancel) {
		cancel()
		respondErr(w, h.logger, app.ErrInstallInProgress)
		return
	}

	var opts []app.AttemptOption
	if req.SkipRefresh {
		opts = append(opts, app.WithoutRefresh())
	}

	h.installs.Add(1)
	go func() {
		defer h.installs.Done()
		outcome := s.install(ctx, opts...)
		s.finishRun(outcome)
		h.events.Outcome(s.id, outcome)
		h.logger.Info("install finished", "session", s.id, "status", outcome.Status, "message", outcome.Message)
	}()

	respondJSON(w, http.StatusAccepted, s.dto())
}
