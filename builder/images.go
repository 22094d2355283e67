package builder

import (
	"image"
	"image/draw"
	_ "image/jpeg" // Register decoders
	_ "image/png"
	"os"

	"github.com/wudi/pdfremedy/ir/raw"
)

// Image is raw 8-bit samples for an Image XObject.
type Image struct {
	Width, Height int
	ColorSpace    string
	Data          []byte
	SMask         *Image
}

// ImageFromFile loads a PNG or JPEG file.
func ImageFromFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// FromImage converts src to DeviceRGB samples, with a gray soft mask when
// any pixel is transparent.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, nrgba.Pix[offset], nrgba.Pix[offset+1], nrgba.Pix[offset+2])
		a := nrgba.Pix[offset+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	img := &Image{Width: w, Height: h, ColorSpace: "DeviceRGB", Data: pixels}
	if hasAlpha {
		img.SMask = &Image{Width: w, Height: h, ColorSpace: "DeviceGray", Data: alpha}
	}
	return img
}

func (img *Image) emit(doc *raw.Document) raw.RefObj {
	d := raw.Dict()
	d.Set("Type", raw.Name("XObject"))
	d.Set("Subtype", raw.Name("Image"))
	d.Set("Width", raw.Int(int64(img.Width)))
	d.Set("Height", raw.Int(int64(img.Height)))
	d.Set("ColorSpace", raw.Name(img.ColorSpace))
	d.Set("BitsPerComponent", raw.Int(8))
	if img.SMask != nil {
		d.Set("SMask", img.SMask.emit(doc))
	}
	return doc.Add(raw.NewStream(d, img.Data))
}
