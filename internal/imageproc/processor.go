package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// ThumbMaxDim bounds both edges of the generated thumb variant.
const ThumbMaxDim = 320

// DetectFormat inspects the raw bytes and returns the image format:
// "jpeg", "png", "gif", "webp", or "" if unknown.
func DetectFormat(data []byte) string {
	// JPEG: starts with FF D8 FF
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg"
	}
	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A {
		return "png"
	}
	// GIF: starts with GIF87a or GIF89a
	if len(data) >= 6 && data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
		return "gif"
	}
	// WebP: starts with RIFF....WEBP
	if len(data) >= 12 && data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "webp"
	}
	return ""
}

// IsSVG checks whether the data appears to be SVG content by looking for
// XML/SVG markers near the beginning of the file.
func IsSVG(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	limit := 512
	if len(data) < limit {
		limit = len(data)
	}
	header := data[:limit]
	return bytes.Contains(header, []byte("<svg"))
}

// CanThumbnail reports whether a thumb variant can be derived from the
// bytes. SVG and GIF pass through untouched and get no thumb.
func CanThumbnail(data []byte) bool {
	if IsSVG(data) {
		return false
	}
	switch DetectFormat(data) {
	case "jpeg", "png":
		return true
	}
	return false
}

// Thumbnail derives a bounded-size rendition of a raster image, preserving
// aspect ratio and never enlarging. The output format follows the input.
func Thumbnail(data []byte) ([]byte, string, error) {
	format := DetectFormat(data)
	if format != "jpeg" && format != "png" {
		return nil, "", fmt.Errorf("unsupported thumbnail source")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}

	if img.Bounds().Dx() > ThumbMaxDim || img.Bounds().Dy() > ThumbMaxDim {
		img = imaging.Fit(img, ThumbMaxDim, ThumbMaxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, "", fmt.Errorf("encoding jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encoding png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
}
