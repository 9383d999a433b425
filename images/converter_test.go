package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEncodeKeepsBytesByDefault(t *testing.T) {
	data := testPNG(t, 8, 8)
	enc := NewEncoder(DefaultEncoderConfig())

	got, err := enc.Encode(context.Background(), FromBytes("left.png", data))
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString(data), got)
}

func TestEncodeRejectsEmptyAndOversized(t *testing.T) {
	enc := NewEncoder(EncoderConfig{MaxBytes: 16})

	_, err := enc.Encode(context.Background(), FromBytes("empty.png", nil))
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = enc.Encode(context.Background(), FromBytes("big.png", testPNG(t, 8, 8)))
	require.ErrorIs(t, err, ErrTooLarge)
}

// heicHeader is the start of an ISO-BMFF box as written by phone cameras.
var heicHeader = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c', 0x00, 0x00, 0x00, 0x00, 'm', 'i', 'f', '1', 'h', 'e', 'i', 'c'}

func TestEncodePassesThroughUndecodableFormats(t *testing.T) {
	enc := NewEncoder(DefaultEncoderConfig())

	got, err := enc.Encode(context.Background(), FromBytes("palm.heic", heicHeader))
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString(heicHeader), got)
}

func TestEncodeNormalizeRejectsUndecodable(t *testing.T) {
	enc := NewEncoder(EncoderConfig{Normalize: true, MaxWidth: 10, MaxHeight: 10})

	_, err := enc.Encode(context.Background(), FromBytes("palm.heic", heicHeader))
	require.ErrorIs(t, err, ErrNotImage)

	_, err = enc.Encode(context.Background(), FromBytes("notes.txt", []byte("just some text")))
	require.ErrorIs(t, err, ErrNotImage)
}

type brokenUpload struct{}

func (brokenUpload) Filename() string { return "broken.jpg" }

func (brokenUpload) Open() (io.ReadCloser, error) { return nil, errors.New("disk gone") }

func TestEncodeSurfacesReadErrors(t *testing.T) {
	enc := NewEncoder(DefaultEncoderConfig())
	_, err := enc.Encode(context.Background(), brokenUpload{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk gone")
}

func TestEncodeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enc := NewEncoder(DefaultEncoderConfig())
	_, err := enc.Encode(ctx, FromBytes("left.png", testPNG(t, 4, 4)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestEncodeNormalizesLargeImages(t *testing.T) {
	enc := NewEncoder(EncoderConfig{Normalize: true, MaxWidth: 10, MaxHeight: 10, JPEGQuality: 80})

	got, err := enc.Encode(context.Background(), FromBytes("left.png", testPNG(t, 40, 20)))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 10, img.Bounds().Dx())
	require.Equal(t, 5, img.Bounds().Dy())
}

func TestResizeToFitLeavesSmallImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 5))
	require.Equal(t, image.Image(src), resizeToFit(src, 100, 100))
}
