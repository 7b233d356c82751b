// archive.go - assembling the final pass archive.
//
// The archive is a plain deflate ZIP with a fixed file set: the content
// file, manifest, signature, and image assets. No directory entries and no
// files that are absent from the manifest - any discrepancy invalidates the
// pass on the receiving device.

package pass

import (
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"time"
)

// MediaType is the wallet pass media type the archive is served with.
const MediaType = "application/vnd.apple.pkpass"

// WriteArchive assembles the archive from the given files. Entries are
// written in sorted name order with a fixed timestamp so identical inputs
// produce identical archives.
func WriteArchive(files map[string][]byte) ([]byte, error) {
	if len(files) == 0 {
		return nil, NewValidationError("archive requires at least one file")
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, name := range names {
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, WrapInternalError(err, "failed to create archive entry "+name)
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, WrapInternalError(err, "failed to write archive entry "+name)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, WrapInternalError(err, "failed to finalize archive")
	}

	return buf.Bytes(), nil
}

// ReadArchive unpacks an archive back into its files. Used by verification
// paths and tests.
func ReadArchive(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, WrapValidationError(err, "failed to open archive")
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			return nil, NewValidationError("archive contains a directory entry: " + f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, WrapInternalError(err, "failed to open archive entry "+f.Name)
		}
		data, err := io.ReadAll(rc)
		closeErr := rc.Close()
		if err != nil {
			return nil, WrapInternalError(err, "failed to read archive entry "+f.Name)
		}
		if closeErr != nil {
			return nil, WrapInternalError(closeErr, "failed to close archive entry "+f.Name)
		}
		files[f.Name] = data
	}

	return files, nil
}
