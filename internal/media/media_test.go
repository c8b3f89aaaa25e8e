package media

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 10, 6))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func encode(t *testing.T, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, testImage()))
	case "jpeg":
		require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	case "gif":
		require.NoError(t, gif.Encode(&buf, testImage(), nil))
	}
	return buf.Bytes()
}

func TestBookImagePath(t *testing.T) {
	t.Run("Should use a uuid name under uploads/book", func(t *testing.T) {
		p := BookImagePath("example.jpg")
		assert.Regexp(t, `^uploads/book/[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}\.jpg$`, p)
		assert.NotEqual(t, p, BookImagePath("example.jpg"))
	})

	t.Run("Should lower-case the extension", func(t *testing.T) {
		assert.True(t, strings.HasSuffix(BookImagePath("Cover.PNG"), ".png"))
	})

	t.Run("Should allow names without an extension", func(t *testing.T) {
		assert.Regexp(t, `^uploads/book/[0-9a-f-]{36}$`, BookImagePath("cover"))
	})

	t.Run("Should accept a bare extension", func(t *testing.T) {
		assert.Regexp(t, `^uploads/book/[0-9a-f-]{36}\.webp$`, BookImagePath(".webp"))
	})
}

func TestCheckExtension(t *testing.T) {
	for _, name := range []string{"cover.jpg", "cover.JPEG", "cover.png", "cover.gif", "cover.webp", "cover"} {
		t.Run("Should accept "+name, func(t *testing.T) {
			assert.NoError(t, CheckExtension(name))
		})
	}

	for _, name := range []string{"evil.html", "cover.svg", "cover.png.js"} {
		t.Run("Should reject "+name, func(t *testing.T) {
			err := CheckExtension(name)
			var extErr *ExtensionError
			require.ErrorAs(t, err, &extErr)
			assert.Contains(t, err.Error(), "Allowed extensions are: jpg, jpeg, png, gif, webp.")
		})
	}
}

func TestDetectImage(t *testing.T) {
	for _, format := range []string{"png", "jpeg", "gif"} {
		t.Run("Should accept "+format, func(t *testing.T) {
			img, err := DetectImage(encode(t, format))
			require.NoError(t, err)
			assert.Equal(t, "image/"+format, img.MIME)
			assert.Equal(t, 10, img.Width)
			assert.Equal(t, 6, img.Height)
		})
	}

	t.Run("Should reject non-images", func(t *testing.T) {
		_, err := DetectImage([]byte("notanimage"))
		assert.ErrorIs(t, err, ErrNotAnImage)
	})

	t.Run("Should reject corrupted images", func(t *testing.T) {
		data := encode(t, "png")[:12]
		_, err := DetectImage(data)
		assert.ErrorIs(t, err, ErrNotAnImage)
	})

	t.Run("Should reject unsupported image types", func(t *testing.T) {
		svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`)
		_, err := DetectImage(svg)
		assert.ErrorIs(t, err, ErrNotAnImage)
	})
}

func TestStorage(t *testing.T) {
	t.Run("Should save, open and delete below the root", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		s := NewStorage(fs, "/vol/web/media")
		name := BookImagePath("cover.png")

		require.NoError(t, s.Save(name, bytes.NewReader([]byte("data"))))

		exists, err := afero.Exists(fs, "/vol/web/media/"+name)
		require.NoError(t, err)
		assert.True(t, exists)

		f, err := s.Open(name)
		require.NoError(t, err)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.Equal(t, "data", string(data))

		require.NoError(t, s.Delete(name))
		exists, err = s.Exists(name)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Should ignore deleting missing files", func(t *testing.T) {
		s := NewStorage(afero.NewMemMapFs(), "/media")
		assert.NoError(t, s.Delete("uploads/book/missing.png"))
	})
}
