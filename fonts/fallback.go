package fonts

import (
	"sync"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Standard-14 fonts usually come without /Widths. Their advances are
// approximated with the Go fonts, which share Helvetica's proportions
// closely enough for bounding boxes.
type fallbackFace struct {
	once  sync.Once
	data  []byte
	font  *sfnt.Font
	upem  sfnt.Units
	mu    sync.Mutex
	buf   sfnt.Buffer
	cache map[rune]float64
}

var (
	regularFace = &fallbackFace{data: goregular.TTF}
	boldFace    = &fallbackFace{data: gobold.TTF}
)

func (f *fallbackFace) load() {
	f.once.Do(func() {
		font, err := sfnt.Parse(f.data)
		if err != nil {
			return
		}
		f.font = font
		f.upem = font.UnitsPerEm()
		f.cache = make(map[rune]float64)
	})
}

func (f *fallbackFace) advance(r rune) (float64, bool) {
	f.load()
	if f.font == nil || f.upem == 0 {
		return 0, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.cache[r]; ok {
		return w, true
	}
	idx, err := f.font.GlyphIndex(&f.buf, r)
	if err != nil || idx == 0 {
		return 0, false
	}
	ppem := fixed.Int26_6(f.upem << 6)
	adv, err := f.font.GlyphAdvance(&f.buf, idx, ppem, xfont.HintingNone)
	if err != nil {
		return 0, false
	}
	w := scaleFixed(adv, f.upem)
	f.cache[r] = w
	return w, true
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}

// fallbackWidth returns the Go font advance of the first rune of text in
// 1/1000 em.
func fallbackWidth(text string, bold bool) (float64, bool) {
	if text == "" {
		return 0, false
	}
	face := regularFace
	if bold {
		face = boldFace
	}
	for _, r := range text {
		return face.advance(r)
	}
	return 0, false
}
