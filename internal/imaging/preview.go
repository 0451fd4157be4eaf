package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"os"

	"github.com/nfnt/resize"
)

const previewQuality = 85

// Preview returns the bytes sent to the vision model for the image at path.
// JPEG, PNG and GIF images larger than maxDim on either side are downsized
// to fit and re-encoded as JPEG. Smaller images, other formats and
// maxDim == 0 return the file unchanged.
func Preview(path string, maxDim uint) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if maxDim == 0 {
		return data, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// bmp, tiff and friends go to the model as they are
		return data, nil
	}
	if uint(cfg.Width) <= maxDim && uint(cfg.Height) <= maxDim {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	thumb := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, thumb, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return out.Bytes(), nil
}

// PreviewLoader adapts Preview to a loader function of the keyword pipeline.
func PreviewLoader(maxDim uint) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		return Preview(path, maxDim)
	}
}
