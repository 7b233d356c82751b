// manifest.go - the file manifest the signature is computed over.
//
// The vendor archive format mandates SHA-1: the manifest maps each bundled
// file name to the lowercase hex SHA-1 digest of its exact serialized bytes.
// The manifest itself and the signature are never listed.

package pass

// #nosec G505 -- SHA-1 is mandated by the wallet archive format, not chosen.
import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Fixed archive file names mandated by the wallet vendor.
const (
	ContentFileName   = "pass.json"
	ManifestFileName  = "manifest.json"
	SignatureFileName = "signature"
	IconFileName      = "icon.png"
	LogoFileName      = "logo.png"
)

// BuildManifest computes the manifest for the given bundle files. Keys are
// archive file names, values the exact bytes to be archived. The result is
// canonical JSON so identical bundles always hash identically.
func BuildManifest(files map[string][]byte) ([]byte, error) {
	if len(files) == 0 {
		return nil, NewValidationError("manifest requires at least one file")
	}

	digests := make(map[string]string, len(files))
	for name, data := range files {
		if name == ManifestFileName || name == SignatureFileName {
			return nil, NewValidationError(name + " must not be listed in the manifest")
		}
		sum := sha1.Sum(data) // #nosec G401 -- mandated by the archive format
		digests[name] = hex.EncodeToString(sum[:])
	}

	raw, err := json.Marshal(digests)
	if err != nil {
		return nil, WrapInternalError(err, "failed to marshal manifest")
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, WrapInternalError(err, "failed to canonicalize manifest")
	}

	return canonical, nil
}

// ParseManifest decodes manifest bytes back into the name -> digest map.
// Used by verification paths and tests.
func ParseManifest(manifest []byte) (map[string]string, error) {
	var digests map[string]string
	if err := json.Unmarshal(manifest, &digests); err != nil {
		return nil, WrapValidationError(err, "failed to parse manifest")
	}
	return digests, nil
}

// FileDigest returns the lowercase hex SHA-1 of data, as listed in manifests.
func FileDigest(data []byte) string {
	sum := sha1.Sum(data) // #nosec G401 -- mandated by the archive format
	return hex.EncodeToString(sum[:])
}
