// provider.go - process-wide certificate provider.
//
// Signing material is loaded and validated once at startup (or on an explicit
// Reload) and exposed through a narrow interface. Components never re-read or
// re-parse PEM text per request. When material is missing or unusable the
// provider reports a not-configured condition; the rest of the service keeps
// running and the signing/push paths surface the condition to callers.

package crypto

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Source describes where each signing blob comes from. Inline values take
// precedence over file paths.
type Source struct {
	CertInline string
	CertFile   string
	KeyInline  string
	KeyFile    string

	IntermediateInline string
	IntermediateFile   string

	// IssuerName is the name expected in the intermediate authority
	// certificate's subject (defaults to "Apple").
	IssuerName string
}

// Provider owns the parsed signing material.
type Provider struct {
	source Source

	mu          sync.RWMutex
	material    *Material
	diagnostics Diagnostics
}

// NewProvider creates a provider and performs the initial load. A load
// failure does not return an error: the provider starts in the
// not-configured state and the diagnostics report says why.
func NewProvider(source Source) *Provider {
	if source.IssuerName == "" {
		source.IssuerName = "Apple"
	}
	p := &Provider{source: source}
	p.Reload()
	return p
}

// Material returns the validated signing material, or a not-configured error
// when the material is missing or failed validation.
func (p *Provider) Material() (*Material, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.material == nil {
		return nil, NewNotConfiguredError("pass signing material is not configured")
	}
	return p.material, nil
}

// Diagnostics returns the report from the most recent load.
func (p *Provider) Diagnostics() Diagnostics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.diagnostics
}

// Configured reports whether usable signing material is loaded.
func (p *Provider) Configured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.material != nil
}

// Reload re-reads the configured sources and replaces the held material.
// On failure the previous material is discarded: serving stale credentials
// after an operator rotates them would be worse than reporting unavailable.
func (p *Provider) Reload() {
	certBlob, certErr := resolveBlob(p.source.CertInline, p.source.CertFile)
	keyBlob, keyErr := resolveBlob(p.source.KeyInline, p.source.KeyFile)
	intermediateBlob, intermediateErr := resolveBlob(p.source.IntermediateInline, p.source.IntermediateFile)

	p.mu.Lock()
	defer p.mu.Unlock()

	if certErr != nil || keyErr != nil || intermediateErr != nil {
		p.material = nil
		p.diagnostics = sourceDiagnostics(certErr, keyErr, intermediateErr)
		return
	}

	diagnostics := Diagnose(certBlob, keyBlob, intermediateBlob, p.source.IssuerName)
	p.diagnostics = diagnostics

	if !diagnostics.Valid {
		p.material = nil
		return
	}

	material, err := LoadMaterial(certBlob, keyBlob, intermediateBlob)
	if err != nil {
		// Diagnose passed but parsing failed - record it so operators see
		// the real cause instead of a bare not-configured condition.
		p.material = nil
		p.diagnostics.Valid = false
		p.diagnostics.Results = append(p.diagnostics.Results, fmt.Sprintf("material load: FAILED: %v", err))
		return
	}

	p.material = material
}

// resolveBlob returns the inline value if set, otherwise the file contents.
// An empty source pair is an error: the caller decides whether that is fatal.
func resolveBlob(inline, file string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if file == "" {
		return "", fmt.Errorf("not configured")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

// sourceDiagnostics builds a report for the case where blobs could not even
// be read from their sources.
func sourceDiagnostics(certErr, keyErr, intermediateErr error) Diagnostics {
	d := Diagnostics{Valid: false}

	appendResult := func(name string, err error) {
		if err != nil {
			d.Results = append(d.Results, fmt.Sprintf("%s: FAILED: %v", name, err))
		} else {
			d.Results = append(d.Results, fmt.Sprintf("%s: OK (source readable)", name))
		}
	}

	appendResult("signing certificate", certErr)
	appendResult("private key", keyErr)
	appendResult("intermediate certificate", intermediateErr)

	return d
}
