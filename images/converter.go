package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math"
	"net/http"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyFile = errors.New("file is empty")
	ErrTooLarge  = errors.New("file exceeds the upload size limit")
	ErrNotImage  = errors.New("file is not an image")
)

// Upload is a file the user picked in the form.
type Upload interface {
	Filename() string
	Open() (io.ReadCloser, error)
}

// EncoderConfig controls how uploads are turned into base64 payloads.
type EncoderConfig struct {
	// MaxBytes rejects larger files; 0 means no limit.
	MaxBytes int64 `json:"max_bytes" mapstructure:"max_bytes"`
	// Normalize re-encodes the image as JPEG, downscaled to MaxWidth x MaxHeight.
	Normalize   bool `json:"normalize" mapstructure:"normalize"`
	MaxWidth    int  `json:"max_width" mapstructure:"max_width"`
	MaxHeight   int  `json:"max_height" mapstructure:"max_height"`
	JPEGQuality int  `json:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// DefaultEncoderConfig keeps uploads untouched up to 10 MiB.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		MaxBytes:    10 << 20,
		MaxWidth:    1600,
		MaxHeight:   1600,
		JPEGQuality: 90,
	}
}

type Encoder struct {
	config EncoderConfig
}

func NewEncoder(config EncoderConfig) *Encoder {
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = jpeg.DefaultQuality
	}
	return &Encoder{config: config}
}

// Encode reads the upload and returns its contents as standard base64. Only
// the normalisation path requires a decodable image.
func (e *Encoder) Encode(ctx context.Context, upload Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := e.read(upload)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", upload.Filename(), err)
	}

	// Camera formats such as HEIC are passed on untouched; the backend decides.
	if !e.config.Normalize {
		slog.Debug("Encoded upload", "filename", upload.Filename(), "size", len(data), "content_type", http.DetectContentType(data))
		return base64.StdEncoding.EncodeToString(data), nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("Rejected undecodable upload", "filename", upload.Filename(), "content_type", http.DetectContentType(data), "error", err)
		return "", fmt.Errorf("%s: %w: %w", upload.Filename(), ErrNotImage, err)
	}
	bounds := img.Bounds()
	slog.Debug("Upload decoded", "filename", upload.Filename(), "format", format, "width", bounds.Dx(), "height", bounds.Dy())

	out, err := convertImageToJPEGBase64(img, e.config.MaxWidth, e.config.MaxHeight, e.config.JPEGQuality)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode %s: %w", upload.Filename(), err)
	}
	slog.Debug("Upload normalized", "filename", upload.Filename(), "base64_length", len(out))
	return out, nil
}

func (e *Encoder) read(upload Upload) ([]byte, error) {
	f, err := upload.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if e.config.MaxBytes > 0 {
		r = io.LimitReader(f, e.config.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if e.config.MaxBytes > 0 && int64(len(data)) > e.config.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// convertImageToJPEGBase64 downscales img to fit maxW x maxH (0 leaves that
// side unbounded) and encodes it as base64 JPEG.
func convertImageToJPEGBase64(img image.Image, maxW, maxH, quality int) (string, error) {
	if maxW > 0 || maxH > 0 {
		img = resizeToFit(img, maxW, maxH)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// resizeToFit scales src to fit within maxW x maxH keeping the aspect ratio.
func resizeToFit(src image.Image, maxW, maxH int) image.Image {
	bw := src.Bounds().Dx()
	bh := src.Bounds().Dy()

	if maxW <= 0 && maxH <= 0 {
		return src
	}
	if maxW <= 0 {
		scale := float64(maxH) / float64(bh)
		maxW = int(math.Round(float64(bw) * scale))
	}
	if maxH <= 0 {
		scale := float64(maxW) / float64(bw)
		maxH = int(math.Round(float64(bh) * scale))
	}

	scale := math.Min(float64(maxW)/float64(bw), float64(maxH)/float64(bh))
	if scale >= 1.0 {
		return src
	}
	w := int(math.Max(1, math.Round(float64(bw)*scale)))
	h := int(math.Max(1, math.Round(float64(bh)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// CatmullRom keeps palm creases sharp when downscaling.
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}
