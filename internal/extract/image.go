package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"golang.org/x/image/draw"
)

// ImageProcessor validates, downscales and base64-encodes images for
// gateway transmission.
type ImageProcessor struct {
	MaxWidth  int
	MaxHeight int
	log       *slog.Logger
}

func NewImageProcessor(maxWidth, maxHeight int, log *slog.Logger) *ImageProcessor {
	if log == nil {
		log = slog.Default()
	}
	if maxWidth <= 0 {
		maxWidth = 2048
	}
	if maxHeight <= 0 {
		maxHeight = 2048
	}
	return &ImageProcessor{MaxWidth: maxWidth, MaxHeight: maxHeight, log: log}
}

// Process decodes the image, rejects formats outside JPEG/PNG,
// downscales oversized images preserving aspect ratio and re-encodes
// the result as base64. Oversize alone is never a rejection.
func (p *ImageProcessor) Process(filePath string) ImageResult {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		p.log.Error("image.read_failed", "file_path", filePath, "error", err)
		return ImageResult{Success: false, Err: "image read failed: " + err.Error()}
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return ImageResult{Success: false, Err: "image validation failed: " + err.Error()}
	}
	if format != "jpeg" && format != "png" {
		return ImageResult{Success: false, Err: fmt.Sprintf("unsupported image format: %s", format)}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	encodeSrc := raw
	if width > p.MaxWidth || height > p.MaxHeight {
		resized, newW, newH := p.downscale(img, width, height)
		p.log.Info("image.resized",
			"file_path", filePath,
			"original_size", fmt.Sprintf("%dx%d", width, height),
			"new_size", fmt.Sprintf("%dx%d", newW, newH),
		)

		var buf bytes.Buffer
		switch format {
		case "png":
			err = png.Encode(&buf, resized)
		default:
			err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 95})
		}
		if err != nil {
			p.log.Error("image.encode_failed", "file_path", filePath, "error", err)
			return ImageResult{Success: false, Err: "image processing failed: " + err.Error()}
		}
		encodeSrc = buf.Bytes()
		width, height = newW, newH
	}

	return ImageResult{
		Success:   true,
		ImageData: base64.StdEncoding.EncodeToString(encodeSrc),
		Format:    format,
		Width:     width,
		Height:    height,
	}
}

// downscale fits the image inside MaxWidth×MaxHeight preserving aspect
// ratio, using Catmull-Rom resampling.
func (p *ImageProcessor) downscale(img image.Image, width, height int) (image.Image, int, int) {
	rw := float64(p.MaxWidth) / float64(width)
	rh := float64(p.MaxHeight) / float64(height)
	ratio := rw
	if rh < rw {
		ratio = rh
	}
	newW := int(float64(width) * ratio)
	newH := int(float64(height) * ratio)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst, newW, newH
}
