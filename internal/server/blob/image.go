package blob

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/rollkeeper/internal/common"
)

// NormalizeSelfie decodes an uploaded image, applies EXIF orientation,
// downscales it to fit maxSide and re-encodes it as JPEG.
func NormalizeSelfie(data []byte, maxSide int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: selfie is not a supported image: %v", common.ErrBadRequest, err)
	}

	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode selfie: %w", err)
	}
	return buf.Bytes(), nil
}
