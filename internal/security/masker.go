// Package security provides secret masking for log and terminal output.
package security

import (
	"io"
	"sort"
	"strings"
	"sync"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
)

// minSecretLen keeps short values from masking unrelated text.
const minSecretLen = 6

const mask = "[REDACTED]"

// Masker redacts known secrets and credential patterns.
type Masker struct {
	mu      sync.RWMutex
	secrets []string
}

// NewMasker creates a Masker that only masks credential patterns until
// secrets are added.
func NewMasker() *Masker {
	return &Masker{}
}

// AddSecret registers a literal value, such as a configured API key, to be
// masked wherever it appears. Values shorter than six characters are ignored.
func (m *Masker) AddSecret(secret string) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLen {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.secrets {
		if s == secret {
			return
		}
	}
	m.secrets = append(m.secrets, secret)
	// Longest first so a secret containing another is masked whole.
	sort.Slice(m.secrets, func(i, j int) bool { return len(m.secrets[i]) > len(m.secrets[j]) })
}

// Mask redacts registered secrets and credential patterns from s.
func (m *Masker) Mask(s string) string {
	m.mu.RLock()
	for _, secret := range m.secrets {
		s = strings.ReplaceAll(s, secret, mask)
	}
	m.mu.RUnlock()
	return rperrors.RedactSensitive(s)
}

// MaskedWriter wraps an io.Writer to mask secrets before writing.
type MaskedWriter struct {
	mu sync.Mutex
	w  io.Writer
	m  *Masker
}

// NewMaskedWriter creates a writer that masks everything written through it.
func NewMaskedWriter(w io.Writer, m *Masker) *MaskedWriter {
	return &MaskedWriter{w: w, m: m}
}

// Write masks p and writes it. It reports len(p) on success to satisfy the
// io.Writer contract. Secrets split across two writes are not masked.
func (mw *MaskedWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if _, err := io.WriteString(mw.w, mw.m.Mask(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetOutput changes the underlying writer.
func (mw *MaskedWriter) SetOutput(w io.Writer) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.w = w
}
