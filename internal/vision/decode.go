// In file: internal/vision/decode.go

// Package vision validates uploaded images and describes them with a
// vision-capable model.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/pehance/pehance/internal/llm"
)

const (
	MaxBytes     = 10 * 1024 * 1024
	MaxDimension = 4000
)

var (
	ErrNoImage      = errors.New("no image data provided")
	ErrInvalidImage = errors.New("invalid image data")
	ErrTooLarge     = errors.New("image too large (max 10MB)")
	ErrDimensions   = errors.New("image dimensions too large (max 4000x4000)")
)

// Image is a decoded, validated upload. Width and Height are zero for
// formats without a registered decoder (bmp, tiff, ...).
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// LLMImage converts the upload into a message attachment.
func (i *Image) LLMImage() llm.Image {
	return llm.Image{MIMEType: i.MIMEType, Data: i.Data}
}

// Decode parses base64 image data, with or without a data URL prefix.
func Decode(imageData string) (*Image, error) {
	payload := strings.TrimSpace(imageData)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
		}
		payload = payload[comma+1:]
	}
	payload = strings.Join(strings.Fields(payload), "")
	if payload == "" {
		return nil, ErrNoImage
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxBytes+3 {
		return nil, ErrTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(data) > MaxBytes {
		return nil, ErrTooLarge
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrInvalidImage, mime.String())
	}

	img := &Image{Data: data, MIMEType: mime.String()}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	switch {
	case err == nil:
		img.Width, img.Height = cfg.Width, cfg.Height
	case errors.Is(err, image.ErrFormat):
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if img.Width > MaxDimension || img.Height > MaxDimension {
		return nil, ErrDimensions
	}
	return img, nil
}
