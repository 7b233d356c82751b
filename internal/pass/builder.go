// builder.go - orchestrates content -> manifest -> signature -> archive.

package pass

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stampwise/passd/internal/crypto"
	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/metrics"
)

// defaultIcon is used when a design carries no icon of its own: the archive
// format requires an icon to be present.
//
//go:embed assets/icon.png
var defaultIcon []byte

// BuilderConfig is the pass metadata shared by every archive this service
// produces.
type BuilderConfig struct {
	PassTypeIdentifier string
	TeamIdentifier     string
	OrganizationName   string
	WebServiceURL      string

	// SigningTimeout bounds the CPU-bound sign step; when exceeded the
	// build fails as a signing error rather than hanging the request.
	SigningTimeout time.Duration
}

// BuildRequest describes one archive to produce.
type BuildRequest struct {
	Design       loyalty.Design
	SerialNumber string
	CustomerID   uuid.UUID
	Balance      int

	// AuthenticationToken is embedded in the content document so the wallet
	// client can authenticate its web service calls.
	AuthenticationToken string
}

// Archive is a finished, signed pass archive.
type Archive struct {
	Data     []byte
	Length   int64
	Filename string
}

// Builder produces signed pass archives. Key material is obtained from the
// certificate provider per build, so an operator reload takes effect without
// a restart.
type Builder struct {
	provider *crypto.Provider
	config   BuilderConfig
}

func NewBuilder(provider *crypto.Provider, config BuilderConfig) *Builder {
	return &Builder{provider: provider, config: config}
}

// Build renders, signs and packages a pass. The build fails with a
// not-configured error when signing material is unavailable and with a
// signing error when the signer fails or exceeds the signing timeout.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (archive *Archive, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.RecordPassBuildDuration(status, time.Since(start).Seconds())
	}()

	material, err := b.provider.Material()
	if err != nil {
		return nil, err
	}

	content, err := BuildContent(ContentInput{
		Design:              req.Design,
		SerialNumber:        req.SerialNumber,
		Balance:             req.Balance,
		BarcodeMessage:      EncodeBarcode(req.Design.ID, req.CustomerID, req.SerialNumber),
		AuthenticationToken: req.AuthenticationToken,
		PassTypeIdentifier:  b.config.PassTypeIdentifier,
		TeamIdentifier:      b.config.TeamIdentifier,
		OrganizationName:    b.config.OrganizationName,
		WebServiceURL:       b.config.WebServiceURL,
	})
	if err != nil {
		return nil, err
	}

	contentBytes, err := content.Marshal()
	if err != nil {
		return nil, err
	}

	files := map[string][]byte{
		ContentFileName: contentBytes,
	}

	icon := req.Design.IconPNG
	if len(icon) == 0 {
		icon = defaultIcon
	}
	files[IconFileName] = icon

	if len(req.Design.LogoPNG) > 0 {
		files[LogoFileName] = req.Design.LogoPNG
	}

	manifest, err := BuildManifest(files)
	if err != nil {
		return nil, err
	}

	signature, err := b.sign(ctx, manifest, material)
	if err != nil {
		return nil, err
	}

	files[ManifestFileName] = manifest
	files[SignatureFileName] = signature

	data, err := WriteArchive(files)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Data:     data,
		Length:   int64(len(data)),
		Filename: fmt.Sprintf("%s.pkpass", req.SerialNumber),
	}, nil
}

// sign runs the signing engine under the configured timeout.
func (b *Builder) sign(ctx context.Context, manifest []byte, material *crypto.Material) ([]byte, error) {
	timeout := b.config.SigningTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	signCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type signResult struct {
		signature []byte
		err       error
	}

	done := make(chan signResult, 1)
	go func() {
		signature, err := crypto.SignManifest(manifest, material)
		done <- signResult{signature, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, WrapSigningError(res.err, "failed to sign manifest")
		}
		return res.signature, nil
	case <-signCtx.Done():
		return nil, WrapSigningError(signCtx.Err(), "signing timed out")
	}
}
