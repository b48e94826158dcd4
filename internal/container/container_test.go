package container

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/installkit/internal/config"
	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/observability"
	"github.com/relicta-tech/installkit/internal/sandbox"
)

type mockCloseable struct {
	closeCount int32
	closeDelay time.Duration
	closeErr   error
	order      *[]string
	name       string
}

func (m *mockCloseable) Close() error {
	if m.closeDelay > 0 {
		time.Sleep(m.closeDelay)
	}
	atomic.AddInt32(&m.closeCount, 1)
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.closeErr
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, rperrors.IsKind(err, rperrors.KindConfig))
}

func TestNew_WiresServices(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Host.Version = "1.5.0"
	cfg.Poller.Interval = time.Millisecond

	a, err := New(cfg, WithVersion("test"))
	require.NoError(t, err)
	defer a.Close()

	s := a.Services()
	assert.NotNil(t, s.Releases)
	assert.Same(t, a.Daemon(), s.Installer)
	assert.NotNil(t, s.Resolver)
	assert.Equal(t, time.Millisecond, s.PollInterval)
	assert.Equal(t, "1.5.0", s.HostVersion)
	assert.Equal(t, cfg.Bundle.MaxConcurrentPolls, s.MaxConcurrentPolls)
	assert.NotNil(t, a.Metrics())

	releases, err := s.Releases.FetchReleases(context.Background(), "acme", "search-plugin")
	require.NoError(t, err)
	assert.Len(t, releases, 3, "the default catalog is served")
}

func TestNew_LoadsCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
repositories:
  - repo: octo/tool
    releases:
      - tag: v0.1.0
        assets:
          - name: tool.difypkg
            manifest: {name: tool, author: octo, version: 0.1.0}
`), 0o600))

	cfg := config.DefaultConfig()
	cfg.Sandbox.Catalog = path
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	releases, err := a.Services().Releases.FetchReleases(context.Background(), "octo", "tool")
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, "v0.1.0", releases[0].Tag)
}

func TestNew_MissingCatalog(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sandbox.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(cfg)
	assert.True(t, rperrors.IsKind(err, rperrors.KindNotFound))
}

func TestNew_WithDaemon(t *testing.T) {
	d := sandbox.NewDaemon(nil)
	a, err := New(config.DefaultConfig(), WithDaemon(d))
	require.NoError(t, err)
	defer a.Close()
	assert.Same(t, d, a.Daemon())
}

func TestNew_Tracing(t *testing.T) {
	t.Cleanup(func() { observability.InitTracer(observability.TracerConfig{}) })

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := config.DefaultConfig()
	cfg.Output.Trace = true
	a, err := New(cfg, WithDaemon(sandbox.NewDaemon(nil)), WithLogger(logger))
	require.NoError(t, err)
	defer a.Close()

	_, span := observability.StartSpan(context.Background(), "container.check")
	span.End()
	assert.Contains(t, buf.String(), "span=container.check")

	cfg.Output.Trace = false
	b, err := New(cfg, WithDaemon(sandbox.NewDaemon(nil)), WithLogger(logger))
	require.NoError(t, err)
	defer b.Close()

	buf.Reset()
	_, span = observability.StartSpan(context.Background(), "quiet")
	span.End()
	assert.Empty(t, buf.String())
}

func TestApp_Close_ReverseOrder(t *testing.T) {
	a, err := New(config.DefaultConfig())
	require.NoError(t, err)

	var order []string
	a.RegisterCloseable(&mockCloseable{name: "first", order: &order})
	a.RegisterCloseable(&mockCloseable{name: "second", order: &order})

	require.NoError(t, a.Close())
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, a.Close(), "closing twice is a no-op")
}

func TestApp_Close_CollectsErrors(t *testing.T) {
	a, err := New(config.DefaultConfig())
	require.NoError(t, err)

	boom := errors.New("boom")
	ok := &mockCloseable{}
	a.RegisterCloseable(&mockCloseable{closeErr: boom})
	a.RegisterCloseable(ok)

	err = a.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok.closeCount))
}

func TestApp_CloseWithTimeout(t *testing.T) {
	a, err := New(config.DefaultConfig())
	require.NoError(t, err)
	a.RegisterCloseable(&mockCloseable{closeDelay: 200 * time.Millisecond})

	err = a.CloseWithTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
