package fonts

import (
	"strconv"
	"strings"

	"github.com/wudi/pdfremedy/ir/raw"
)

var (
	standardEncoding = buildEncoding(map[byte]rune{
		0x27: '’', 0x60: '‘', 0xA1: '¡', 0xA2: '¢', 0xA3: '£', 0xA4: '⁄', 0xA5: '¥',
		0xA6: 'ƒ', 0xA7: '§', 0xA8: '¤', 0xA9: '\'', 0xAA: '“', 0xAB: '«', 0xAC: '‹',
		0xAD: '›', 0xAE: 'ﬁ', 0xAF: 'ﬂ', 0xB1: '–', 0xB2: '†', 0xB3: '‡', 0xB4: '·',
		0xB6: '¶', 0xB7: '•', 0xB8: '‚', 0xB9: '„', 0xBA: '”', 0xBB: '»', 0xBC: '…',
		0xBD: '‰', 0xBF: '¿', 0xD0: '—', 0xE1: 'Æ', 0xE8: 'Ł', 0xE9: 'Ø', 0xEA: 'Œ',
		0xF1: 'æ', 0xF5: 'ı', 0xF8: 'ł', 0xF9: 'ø', 0xFA: 'œ', 0xFB: 'ß',
	}, false)
	winAnsiEncoding = buildEncoding(map[byte]rune{
		0x80: '€', 0x82: '‚', 0x83: 'ƒ', 0x84: '„', 0x85: '…', 0x86: '†', 0x87: '‡',
		0x88: 'ˆ', 0x89: '‰', 0x8A: 'Š', 0x8B: '‹', 0x8C: 'Œ', 0x8E: 'Ž', 0x91: '‘',
		0x92: '’', 0x93: '“', 0x94: '”', 0x95: '•', 0x96: '–', 0x97: '—', 0x98: '˜',
		0x99: '™', 0x9A: 'š', 0x9B: '›', 0x9C: 'œ', 0x9E: 'ž', 0x9F: 'Ÿ',
	}, true)
	macRomanEncoding = buildMacRoman()
)

// buildEncoding starts from ASCII (plus Latin-1 when latin1 is set) and
// applies overrides.
func buildEncoding(overrides map[byte]rune, latin1 bool) [256]rune {
	var enc [256]rune
	for c := 0x20; c < 0x7F; c++ {
		enc[c] = rune(c)
	}
	if latin1 {
		for c := 0xA0; c < 0x100; c++ {
			enc[c] = rune(c)
		}
	}
	for c, r := range overrides {
		enc[c] = r
	}
	return enc
}

func buildMacRoman() [256]rune {
	high := "ÄÅÇÉÑÖÜáàâäãåçéèêëíìîïñóòôöõúùûü†°¢£§•¶ß®©™´¨≠ÆØ∞±≤≥¥µ∂∑∏π∫ªºΩæø¿¡¬√ƒ≈∆«»… ÀÃÕŒœ–—“”‘’÷◊ÿŸ⁄€‹›ﬁﬂ‡·‚„‰ÂÊÁËÈÍÎÏÌÓÔÒÚÛÙıˆ˜¯˘˙˚¸˝˛ˇ"
	enc := buildEncoding(nil, false)
	c := 0x80
	for _, r := range high {
		if c > 0xFF {
			break
		}
		enc[c] = r
		c++
	}
	return enc
}

// simpleEncoding resolves /Encoding for a single-byte font.
func simpleEncoding(doc *raw.Document, o raw.Object) *[256]rune {
	base := &standardEncoding
	switch v := doc.Resolve(o).(type) {
	case raw.NameObj:
		return namedEncoding(v.Val, base)
	case *raw.DictObj:
		enc := *namedEncoding(doc.NameOf(doc.Get(v, "BaseEncoding")), base)
		diffs := doc.ArrayOf(doc.Get(v, "Differences"))
		if diffs == nil {
			return &enc
		}
		code := 0
		for _, it := range diffs.Items {
			switch d := doc.Resolve(it).(type) {
			case raw.NumberObj:
				code = int(d.Int())
			case raw.NameObj:
				if code >= 0 && code < 256 {
					if r, ok := glyphRune(d.Val); ok {
						enc[code] = r
					}
				}
				code++
			}
		}
		return &enc
	}
	return base
}

func namedEncoding(name string, fallback *[256]rune) *[256]rune {
	switch name {
	case "WinAnsiEncoding":
		return &winAnsiEncoding
	case "MacRomanEncoding":
		return &macRomanEncoding
	case "StandardEncoding":
		return &standardEncoding
	}
	return fallback
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "minus": '−', "period": '.', "slash": '/', "colon": ':', "semicolon": ';',
	"less": '<', "equal": '=', "greater": '>', "question": '?', "at": '@',
	"bracketleft": '[', "backslash": '\\', "bracketright": ']', "underscore": '_',
	"quoteleft": '‘', "braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"bullet": '•', "endash": '–', "emdash": '—', "quotedblleft": '“', "quotedblright": '”',
	"ellipsis": '…', "fi": 'ﬁ', "fl": 'ﬂ', "copyright": '©', "registered": '®',
	"trademark": '™', "degree": '°', "Euro": '€', "section": '§', "paragraph": '¶',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"eacute": 'é', "egrave": 'è', "agrave": 'à', "ccedilla": 'ç', "udieresis": 'ü',
	"odieresis": 'ö', "adieresis": 'ä', "germandbls": 'ß', "ntilde": 'ñ',
}

// glyphRune maps a glyph name to a rune: single letters, the common names
// above, and uniXXXX / uXXXX forms.
func glyphRune(name string) (rune, bool) {
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	for _, prefix := range []string{"uni", "u"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok && len(rest) >= 4 && len(rest) <= 6 {
			if v, err := strconv.ParseUint(rest[:4], 16, 32); err == nil && prefix == "uni" {
				return rune(v), true
			}
			if v, err := strconv.ParseUint(rest, 16, 32); err == nil {
				return rune(v), true
			}
		}
	}
	return 0, false
}
