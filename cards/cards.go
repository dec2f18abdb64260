// Package cards handles the card images around the pipeline: cutting
// detected cards out of a photo of the table, identifying a card by its
// perceptual hash and laying candidates out in a numbered grid.
package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoImages = errors.New("no images")
	ErrEmptyBox = errors.New("empty box")
)

// JPEGQuality is used for cropped cards and grids.
const JPEGQuality = 90

var labelColor = color.RGBA{R: 255, A: 255}

// Box is a card bounding box in photo pixel coordinates.
type Box struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

func (b Box) Rect() image.Rectangle { return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax) }

// detection is one entry of an object detection pipeline output.
type detection struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
	Box   struct {
		XMin float64 `json:"xmin"`
		YMin float64 `json:"ymin"`
		XMax float64 `json:"xmax"`
		YMax float64 `json:"ymax"`
	} `json:"box"`
}

// ParseDetections reads the JSON list produced by the card detector, e.g.
//
//	[{"score": 0.98, "label": "card", "box": {"xmin": 10, "ymin": 12, "xmax": 210, "ymax": 330}}]
//
// and returns the boxes in detector order.
func ParseDetections(r io.Reader) ([]Box, error) {
	var dets []detection
	if err := json.NewDecoder(r).Decode(&dets); err != nil {
		return nil, fmt.Errorf("decoding detections: %w", err)
	}

	boxes := make([]Box, len(dets))
	for i, d := range dets {
		boxes[i] = Box{
			XMin: int(math.Round(d.Box.XMin)),
			YMin: int(math.Round(d.Box.YMin)),
			XMax: int(math.Round(d.Box.XMax)),
			YMax: int(math.Round(d.Box.YMax)),
		}
	}
	return boxes, nil
}

// Crop cuts every box out of img. Boxes are clamped to the image bounds, a
// box that is empty after clamping is an error.
func Crop(img image.Image, boxes []Box) ([]image.Image, error) {
	out := make([]image.Image, len(boxes))
	for i, b := range boxes {
		r := b.Rect().Add(img.Bounds().Min).Intersect(img.Bounds())
		if r.Empty() {
			return nil, fmt.Errorf("box %d %v: %w", i, b.Rect(), ErrEmptyBox)
		}

		card := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		xdraw.Draw(card, card.Bounds(), img, r.Min, xdraw.Src)
		out[i] = card
	}
	return out, nil
}

// Hash returns the 64 bit average hash of img as 16 hex digits. It is
// stable across re-encodings of the same card and identifies it in a hand.
func Hash(img image.Image) (string, error) {
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// GridShape returns the rows and columns of the grid used for n images: the
// first of 2x3, 2x4 and 3x4 that fits, then as many rows of 4 as needed.
func GridShape(n int) (rows, cols int) {
	for _, s := range [][2]int{{2, 3}, {2, 4}, {3, 4}} {
		if s[0]*s[1] >= n {
			return s[0], s[1]
		}
	}
	return (n + 3) / 4, 4
}

// Grid resizes imgs to the size of the first one, stamps each with its index
// in red at the centre and lays them out left to right, top to bottom with
// border pixels between cells.
func Grid(imgs []image.Image, border int) (*image.RGBA, error) {
	if len(imgs) == 0 {
		return nil, ErrNoImages
	}

	cell := imgs[0].Bounds().Size()
	rows, cols := GridShape(len(imgs))
	grid := image.NewRGBA(image.Rect(0, 0,
		cols*cell.X+(cols-1)*border,
		rows*cell.Y+(rows-1)*border))
	xdraw.Draw(grid, grid.Bounds(), image.Black, image.Point{}, xdraw.Src)

	for i, img := range imgs {
		at := image.Pt((i%cols)*(cell.X+border), (i/cols)*(cell.Y+border))
		dst := grid.SubImage(image.Rectangle{Min: at, Max: at.Add(cell)}).(*image.RGBA)
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		stampIndex(dst, i)
	}
	return grid, nil
}

// stampIndex writes i with its baseline at the centre of dst, scaled with
// the cell height.
func stampIndex(dst *image.RGBA, i int) {
	face := basicfont.Face7x13
	label := strconv.Itoa(i)
	w := font.MeasureString(face, label).Ceil()
	h := face.Metrics().Height.Ceil()

	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(label)

	b := dst.Bounds()
	scale := max(b.Dy()/(8*h), 1)
	centre := image.Pt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
	r := image.Rect(centre.X, centre.Y-h*scale, centre.X+w*scale, centre.Y).Intersect(b)
	xdraw.NearestNeighbor.Scale(dst, r, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// Decode reads a JPEG, PNG or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

func EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
}

// SaveJPEG encodes img to path, creating or truncating the file.
func SaveJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeJPEG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CardPath returns where card i of n cropped from photo is stored, next to
// the photo. Cards are always stored as JPEG.
func CardPath(photo string, i, n int) string {
	return fmt.Sprintf("%s_card-%d-of-%d.jpg", strings.TrimSuffix(photo, filepath.Ext(photo)), i, n)
}
