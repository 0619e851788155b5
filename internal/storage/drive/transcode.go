package drive

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Register the decoders for the accepted image formats.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// maxImageDim is the largest edge, in pixels, of a stored image. Larger
// uploads are downscaled preserving aspect ratio.
const maxImageDim = 2048

// jpegQuality balances artifact size against visible compression loss.
const jpegQuality = 85

// isImageType reports whether the MIME type goes through the transcoder.
func isImageType(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif":
		return true
	}
	return false
}

// transcodeImage normalizes an uploaded image to JPEG, downscaling it so the
// longest edge is at most maxImageDim pixels. Non-image payloads must not be
// passed here.
func transcodeImage(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxImageDim || h > maxImageDim {
		if w >= h {
			h = h * maxImageDim / w
			w = maxImageDim
		} else {
			w = w * maxImageDim / h
			h = maxImageDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		src = dst
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}
