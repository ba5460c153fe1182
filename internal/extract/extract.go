// Package extract detects archive formats by content and unpacks them into
// a destination directory.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format is an archive format recognized by Sniff.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatTarGz
	FormatZip
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

// ErrNotArchive is returned when the file carries none of the recognized
// signatures. The downloaded file then stays in place as the only artifact.
var ErrNotArchive = errors.New("not a recognized archive format")

// Extractor unpacks an archive into dest. Implementations run synchronously
// and leave partially-extracted files in place on failure.
type Extractor interface {
	Extract(ctx context.Context, archive, dest string) error
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
	tarMagic  = []byte("ustar")
)

// tarMagicOffset is where the ustar magic sits in a tar header.
const tarMagicOffset = 257

// Sniff determines the archive format from the file's leading bytes, never
// from its name. Tar-style formats are checked before zip.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, tarMagicOffset+len(tarMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, fmt.Errorf("reading %s: %w", path, err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return FormatTarGz, nil
	case len(header) >= tarMagicOffset+len(tarMagic) &&
		bytes.Equal(header[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic):
		return FormatTar, nil
	case bytes.HasPrefix(header, zipMagic):
		return FormatZip, nil
	default:
		return FormatUnknown, nil
	}
}
