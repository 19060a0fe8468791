package fetch

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"lockstep/internal/services"
)

// unpackBinary extracts the named member from a tar archive (gzip or bzip2
// compressed, matched by magic bytes) into destPath. A release archive is
// expected to carry the binary at bin/<name> or at the root; any other shape
// is a corrupt archive.
func unpackBinary(archivePath, binaryName, destPath string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	reader, err := decompressor(file)
	if err != nil {
		return "", err
	}

	tarReader := tar.NewReader(reader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", services.Wrap(services.ErrCorruptArchive, "fetch", "unpack",
				fmt.Sprintf("read %s", archivePath), err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if filepath.Base(header.Name) != binaryName {
			continue
		}
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, tarReader); err != nil {
			_ = out.Close()
			return "", services.Wrap(services.ErrCorruptArchive, "fetch", "unpack",
				fmt.Sprintf("extract %s", header.Name), err)
		}
		if err := out.Close(); err != nil {
			return "", err
		}
		return destPath, nil
	}

	return "", services.Wrap(services.ErrCorruptArchive, "fetch", "unpack",
		fmt.Sprintf("archive %s does not contain %s", archivePath, binaryName), nil)
}

var gzipMagic = []byte{0x1f, 0x8b}

var bzip2Magic = []byte{'B', 'Z', 'h'}

func decompressor(file *os.File) (io.Reader, error) {
	magic := make([]byte, 3)
	if _, err := io.ReadFull(file, magic); err != nil {
		return nil, services.Wrap(services.ErrCorruptArchive, "fetch", "unpack", "archive too short", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return gzip.NewReader(file)
	case bytes.HasPrefix(magic, bzip2Magic):
		return bzip2.NewReader(file), nil
	default:
		// Uncompressed tar.
		return file, nil
	}
}
