// Package media stores uploaded files and validates images.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	// Register decoders used by image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrNotAnImage is returned for uploads that are not a supported image
var ErrNotAnImage = errors.New("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")

// BookImageDir is the directory for book covers, relative to the media root
const BookImageDir = "uploads/book"

var imageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// ImageExtensions are the file extensions accepted for image uploads
var ImageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

// ExtensionError reports an upload whose file name has a non-image extension
type ExtensionError struct {
	Extension string
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("File extension “%s” is not allowed. Allowed extensions are: %s.",
		e.Extension, strings.Join(ImageExtensions, ", "))
}

// CheckExtension rejects file names whose extension is not an image extension.
// Names without an extension are accepted.
func CheckExtension(filename string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || slices.Contains(ImageExtensions, ext) {
		return nil
	}
	return &ExtensionError{Extension: ext}
}

// BookImagePath returns a fresh storage path for an uploaded cover.
// The file name is a random uuid; the extension of filename is kept, lower-cased.
// filename may be a bare extension such as ".png".
func BookImagePath(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(BookImageDir, uuid.NewString()+ext)
}

// Image describes a validated image upload
type Image struct {
	MIME      string
	Extension string
	Width     int
	Height    int
}

// DetectImage sniffs data and decodes the image header.
// Anything that is not a readable JPEG, PNG, GIF or WebP image is ErrNotAnImage.
func DetectImage(data []byte) (*Image, error) {
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), imageTypes...) {
		return nil, ErrNotAnImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ErrNotAnImage
	}

	return &Image{
		MIME:      mtype.String(),
		Extension: mtype.Extension(),
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

// Storage keeps files below a root directory
type Storage struct {
	fs afero.Fs
}

// NewStorage returns a storage rooted at root on fs
func NewStorage(fs afero.Fs, root string) *Storage {
	return &Storage{fs: afero.NewBasePathFs(fs, root)}
}

// Fs exposes the rooted filesystem, for serving files
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// Save writes r to name, creating parent directories
func (s *Storage) Save(name string, r io.Reader) error {
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := afero.WriteReader(s.fs, name, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Delete removes name; a missing file is not an error
func (s *Storage) Delete(name string) error {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name exists
func (s *Storage) Exists(name string) (bool, error) {
	return afero.Exists(s.fs, name)
}

// Open opens name for reading
func (s *Storage) Open(name string) (afero.File, error) {
	return s.fs.Open(name)
}
