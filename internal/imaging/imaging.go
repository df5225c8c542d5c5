// Package imaging derives a content identity from decoded pixel data and
// classifies degenerate images. Hashing happens after decoding so two
// different encodings of the same pixels produce the same identity.
package imaging

import (
	"crypto/md5" //nolint:gosec // content addressing, not cryptography
	"encoding/hex"
	"image"
	"image/draw"
	"os"

	// Register the decoders for the formats present in the dataset.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/mkivela/tagdex/internal/errors"
)

// Decode opens and decodes the image at path. The format is sniffed from the
// content, not the file extension.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageDecode).
			Context("path", path).
			Build()
	}
	return img, nil
}

// normalize redraws img into an NRGBA image anchored at the origin so that
// pixel bytes are comparable regardless of the source color model or the
// subimage rectangle.
func normalize(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == n.Rect.Dx()*4 {
		return n
	}
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// Hash computes the content hash of an image: the MD5 digest of its decoded
// NRGBA pixel bytes, hex encoded. The first two characters of the result are
// used as the bucket in the content-addressed output layout.
func Hash(img image.Image) string {
	n := normalize(img)
	sum := md5.Sum(n.Pix) //nolint:gosec // content addressing, not cryptography
	return hex.EncodeToString(sum[:])
}

// HashFile decodes the image at path and returns its content hash.
func HashFile(path string) (string, error) {
	img, err := Decode(path)
	if err != nil {
		return "", err
	}
	return Hash(img), nil
}

// IsBlank reports whether the image consists of a single flat color. Such
// images carry no trainable signal and are excluded when blank exclusion is
// enabled.
func IsBlank(img image.Image) bool {
	n := normalize(img)
	if len(n.Pix) <= 4 {
		return true
	}
	first := [4]uint8{n.Pix[0], n.Pix[1], n.Pix[2], n.Pix[3]}
	for i := 4; i < len(n.Pix); i += 4 {
		if n.Pix[i] != first[0] || n.Pix[i+1] != first[1] || n.Pix[i+2] != first[2] || n.Pix[i+3] != first[3] {
			return false
		}
	}
	return true
}

// Equal reports whether two decoded images are pixel-identical.
func Equal(a, b image.Image) bool {
	na, nb := normalize(a), normalize(b)
	if na.Rect.Dx() != nb.Rect.Dx() || na.Rect.Dy() != nb.Rect.Dy() {
		return false
	}
	if len(na.Pix) != len(nb.Pix) {
		return false
	}
	for i := range na.Pix {
		if na.Pix[i] != nb.Pix[i] {
			return false
		}
	}
	return true
}

// SameFiles decodes both paths and reports whether they hold pixel-identical
// images. Used by the merge stage to re-verify a content hash match before
// unioning tag sets.
func SameFiles(pathA, pathB string) (bool, error) {
	imgA, err := Decode(pathA)
	if err != nil {
		return false, err
	}
	imgB, err := Decode(pathB)
	if err != nil {
		return false, err
	}
	return Equal(imgA, imgB), nil
}
