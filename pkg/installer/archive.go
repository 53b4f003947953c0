package installer

import (
	"archive/tar"
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	pkgerrors "github.com/matzehuels/pget/pkg/errors"
	"github.com/matzehuels/pget/pkg/resolver"
)

var integrityHashes = map[string]func() hash.Hash{
	"sha512": sha512.New,
	"sha256": sha256.New,
	"sha1":   sha1.New,
}

// verify checks data against the integrity string when it names a known
// algorithm, and against the hex sha1 shasum otherwise. Packages that
// advertise neither are accepted.
func verify(step resolver.Install, data []byte) error {
	if algo, encoded, ok := strings.Cut(step.Integrity, "-"); ok {
		if newHash, known := integrityHashes[algo]; known {
			want, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.ErrCodeChecksumMismatch, err, "malformed integrity for %s@%s", step.Name, step.Version)
			}
			h := newHash()
			h.Write(data)
			if subtle.ConstantTimeCompare(h.Sum(nil), want) != 1 {
				return pkgerrors.New(pkgerrors.ErrCodeChecksumMismatch, "%s@%s does not match its %s integrity", step.Name, step.Version, algo)
			}
			return nil
		}
	}

	if step.Shasum == "" {
		return nil
	}
	sum := sha1.Sum(data)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), step.Shasum) {
		return pkgerrors.New(pkgerrors.ErrCodeChecksumMismatch, "%s@%s shasum mismatch: want %s, got %x", step.Name, step.Version, step.Shasum, sum)
	}
	return nil
}

// extract unpacks a gzipped tarball into dir, dropping the first path
// component of every entry. Links and special files are skipped.
func extract(data []byte, dir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPackage, err, "open tarball")
	}
	defer gz.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPath, err, "create %s", dir)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPackage, err, "read tarball")
		}

		rel, err := stripFirst(hdr.Name)
		if err != nil {
			return err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPath, err, "create %s", target)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr); err != nil {
				return err
			}
		}
	}
}

// stripFirst removes the leading path component of an archive entry and
// rejects entries that would land outside the package directory.
func stripFirst(name string) (string, error) {
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", pkgerrors.New(pkgerrors.ErrCodeInvalidPath, "archive entry %q escapes the package directory", name)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	_, rest, ok := strings.Cut(clean, "/")
	if !ok {
		return "", nil
	}
	return rest, nil
}

func writeFile(target string, r io.Reader, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPath, err, "create %s", filepath.Dir(target))
	}
	mode := os.FileMode(0644)
	if hdr.Mode&0111 != 0 {
		mode = 0755
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPath, err, "create %s", target)
	}
	if _, err := io.CopyN(f, r, hdr.Size); err != nil {
		f.Close()
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPackage, err, "unpack %s", hdr.Name)
	}
	return f.Close()
}
