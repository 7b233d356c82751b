// signer.go - detached CMS signatures over the pass manifest.
//
// The wallet client only accepts a PKCS#7/CMS SignedData structure that binds
// the full certificate chain (leaf + WWDR intermediate). A bare signature
// over the manifest digest looks plausible on the wire but is rejected on the
// device, so that variant is deliberately not implemented. The signing
// process is performed with a library (github.com/smallstep/pkcs7).

package crypto

import (
	"crypto/x509"

	"github.com/smallstep/pkcs7"
)

// SignManifest produces a detached CMS signature over the manifest bytes.
//
// The returned bytes are the DER-encoded SignedData with the content
// omitted (detached): a verifier recomputes the manifest hash independently
// and checks it against the signature using the embedded chain.
//
// SignManifest is a pure function of its inputs plus the key material; it
// never returns an empty signature without an error.
func SignManifest(manifest []byte, material *Material) ([]byte, error) {
	if material == nil {
		return nil, NewNotConfiguredError("pass signing material is not configured")
	}
	if len(manifest) == 0 {
		return nil, NewValidationError("manifest is empty")
	}

	signedData, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, WrapSigningError(err, "failed to initialize signed data")
	}

	signedData.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	err = signedData.AddSignerChain(
		material.Certificate,
		material.PrivateKey,
		[]*x509.Certificate{material.Intermediate},
		pkcs7.SignerInfoConfig{},
	)
	if err != nil {
		return nil, WrapSigningError(err, "failed to add signer chain")
	}

	signedData.Detach()

	signature, err := signedData.Finish()
	if err != nil {
		return nil, WrapSigningError(err, "failed to finalize signature")
	}
	if len(signature) == 0 {
		return nil, NewSigningError("signer produced an empty signature")
	}

	return signature, nil
}

// VerifyManifestSignature checks a detached signature against the manifest
// bytes. When roots is non-nil the embedded chain is validated against it;
// otherwise only the signature itself is checked. Used by tests and passctl.
func VerifyManifestSignature(manifest, signature []byte, roots *x509.CertPool) error {
	p7, err := pkcs7.Parse(signature)
	if err != nil {
		return WrapValidationError(err, "failed to parse signature")
	}

	p7.Content = manifest

	if roots != nil {
		if err := p7.VerifyWithChain(roots); err != nil {
			return WrapSigningError(err, "signature chain verification failed")
		}
		return nil
	}

	if err := p7.Verify(); err != nil {
		return WrapSigningError(err, "signature verification failed")
	}
	return nil
}
