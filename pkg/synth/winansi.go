package synth

import "strings"

// The built-in Helvetica pairing draws from the cp1252 (WinAnsi) repertoire
// only. Text outside it cannot be drawn and must be replaced before it
// reaches a rendering call.
//
// Printable cp1252: ASCII 0x20..0x7E, Latin-1 0xA0..0xFF, plus the 0x80..0x9F
// window extras listed below.
const cp1252Extras = "€‚ƒ„…†‡ˆ" +
	"‰Š‹ŒŽ‘’“”•" +
	"–—˜™š›œžŸ"

func supportedRune(r rune) bool {
	switch {
	case r == '\n' || r == '\r' || r == '\t':
		return true
	case r >= 0x20 && r <= 0x7e:
		return true
	case r >= 0xa0 && r <= 0xff:
		return true
	}
	return strings.ContainsRune(cp1252Extras, r)
}

// Renderable reports whether every rune of s is inside the font repertoire.
func Renderable(s string) bool {
	for _, r := range s {
		if !supportedRune(r) {
			return false
		}
	}
	return true
}

// sanitizeText substitutes the whole value when any rune falls outside the
// repertoire. Partial per-rune replacement would silently alter legal text,
// so the field is swapped for an explicit marker instead.
func sanitizeText(s string) string {
	if Renderable(s) {
		return s
	}
	return unsupportedTextFallback
}
