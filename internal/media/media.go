// Package media resolves image locators into bytes providers can upload.
package media

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes bounds the size of an image read from disk.
const DefaultMaxBytes = 15 << 20

var (
	// ErrNotFound is returned when the locator does not name an existing file.
	ErrNotFound = errors.New("image not found")
	// ErrUnsupported is returned for content that is not an image.
	ErrUnsupported = errors.New("unsupported image type")
	// ErrTooLarge is returned for images above the size limit.
	ErrTooLarge = errors.New("image too large")
)

// Image is a decoded image resource.
type Image struct {
	Name string
	MIME string
	Data []byte
}

// Decoder turns an image locator into an Image.
type Decoder interface {
	Decode(locator string) (*Image, error)
}

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc func(locator string) (*Image, error)

func (f DecoderFunc) Decode(locator string) (*Image, error) { return f(locator) }

// FileDecoder reads images from the local filesystem.
type FileDecoder struct {
	MaxBytes int64
}

// Decode accepts a plain path or a file:// URI.
func (d FileDecoder) Decode(locator string) (*Image, error) {
	path, err := Path(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat image: %w", err)
	}
	limit := d.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %q is %d bytes (limit %d)", ErrTooLarge, path, info.Size(), limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %q detected as %s", ErrUnsupported, path, mt.String())
	}

	return &Image{
		Name: uploadName(filepath.Base(path), mt.Extension()),
		MIME: mt.String(),
		Data: data,
	}, nil
}

// uploadName gives name the extension of its detected type; providers infer
// the upload type from the file name.
func uploadName(name, ext string) string {
	current := filepath.Ext(name)
	if ext == "" || strings.EqualFold(current, ext) {
		return name
	}
	return strings.TrimSuffix(name, current) + ext
}

// Path converts a locator into a filesystem path.
func Path(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", fmt.Errorf("%w: empty locator", ErrNotFound)
	}
	if !strings.Contains(locator, "://") {
		return filepath.Clean(locator), nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("parse image locator: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("%w: remote file host %q", ErrUnsupported, u.Host)
	}
	return filepath.FromSlash(u.Path), nil
}
