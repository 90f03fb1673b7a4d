// Package crx reads metadata from browser-extension packages.
//
// A package is a zip container holding manifest.json at its root. Chrome's
// .crx files prefix the zip with a signed header; both CRX2 and CRX3 headers
// are skipped so callers can hand either a .crx or a plain .zip to this
// package.
package crx

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// ManifestName is the archive entry holding extension metadata.
const ManifestName = "manifest.json"

var (
	// ErrArchiveOpen is returned when the package is not a readable zip container.
	ErrArchiveOpen = errors.New("cannot open package archive")
	// ErrManifestMissing is returned when the archive has no manifest.json entry.
	ErrManifestMissing = errors.New("manifest.json not found in package")
	// ErrManifestParse is returned when manifest.json is not valid JSON.
	ErrManifestParse = errors.New("cannot parse manifest.json")
)

var crxMagic = []byte("Cr24")

// Manifest holds the subset of manifest.json fields the registry cares about.
type Manifest struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	DefaultLocale string `json:"default_locale"`

	// localizedName is resolved from _locales when Name is a __MSG_ placeholder.
	localizedName string
}

// DisplayName returns the human-readable name, resolving __MSG_key__
// placeholders where the archive carried the matching locale messages. An
// unresolved placeholder yields "".
func (m *Manifest) DisplayName() string {
	if m.localizedName != "" {
		return m.localizedName
	}
	if _, ok := messageKey(m.Name); ok {
		return ""
	}
	return strings.TrimSpace(m.Name)
}

// ReadVersion returns the manifest version of the package at archivePath.
func ReadVersion(archivePath string) (string, error) {
	m, err := ReadManifest(archivePath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Version), nil
}

// ReadManifest opens the package at archivePath and decodes its manifest.json.
func ReadManifest(archivePath string) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveOpen, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveOpen, err)
	}

	zr, err := openZip(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArchiveOpen, archivePath, err)
	}

	data, err := readEntry(zr, ManifestName)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(trimBOM(data), &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestParse, err)
	}

	if key, ok := messageKey(m.Name); ok && m.DefaultLocale != "" {
		m.localizedName = lookupMessage(zr, m.DefaultLocale, key)
	}

	return &m, nil
}

// openZip returns a zip reader over r, skipping a CRX header when present.
func openZip(r io.ReaderAt, size int64) (*zip.Reader, error) {
	offset, err := crxHeaderSize(r, size)
	if err != nil {
		return nil, err
	}
	return zip.NewReader(io.NewSectionReader(r, offset, size-offset), size-offset)
}

// crxHeaderSize returns the number of bytes preceding the zip payload.
func crxHeaderSize(r io.ReaderAt, size int64) (int64, error) {
	if size < 16 {
		return 0, nil
	}
	head := make([]byte, 16)
	if _, err := r.ReadAt(head, 0); err != nil {
		return 0, err
	}
	if !bytes.Equal(head[:4], crxMagic) {
		return 0, nil
	}

	var offset int64
	switch version := binary.LittleEndian.Uint32(head[4:8]); version {
	case 2:
		// magic, version, public key length, signature length, key, signature
		keyLen := int64(binary.LittleEndian.Uint32(head[8:12]))
		sigLen := int64(binary.LittleEndian.Uint32(head[12:16]))
		offset = 16 + keyLen + sigLen
	case 3:
		// magic, version, header length, protobuf header
		offset = 12 + int64(binary.LittleEndian.Uint32(head[8:12]))
	default:
		return 0, fmt.Errorf("unsupported crx version %d", version)
	}
	if offset > size {
		return 0, fmt.Errorf("crx header length %d exceeds file size %d", offset, size)
	}
	return offset, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, file := range zr.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArchiveOpen, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, ErrManifestMissing
}

// messageKey reports the key of a __MSG_key__ placeholder.
func messageKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "__MSG_") || !strings.HasSuffix(s, "__") || len(s) <= len("__MSG_")+2 {
		return "", false
	}
	return s[len("__MSG_") : len(s)-2], true
}

// lookupMessage resolves key from _locales/<locale>/messages.json. Message
// keys are case-insensitive.
func lookupMessage(zr *zip.Reader, locale, key string) string {
	data, err := readEntry(zr, path.Join("_locales", locale, "messages.json"))
	if err != nil {
		return ""
	}
	var messages map[string]struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimBOM(data), &messages); err != nil {
		return ""
	}
	for k, v := range messages {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v.Message)
		}
	}
	return ""
}

func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
