// Package synth builds signed contract documents. It always produces a new
// fixed-layout PDF from structured data; it never fills fields into the
// uploaded template file.
package synth

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"signdesk/internal/dataurl"
	"signdesk/pkg/domain"
)

// Page geometry in points. A4 portrait: 595.28 x 841.89.
const (
	marginX   = 56.0
	marginTop = 64.0

	titleSize  = 20.0
	metaSize   = 10.0
	bodySize   = 11.0
	lineHeight = 14.0

	signatureY      = 640.0
	signatureScale  = 0.5
	signedByLineY   = 764.0
	signatureGapPts = 6.0
)

const baseFont = "Helvetica"

// unsupportedTextFallback replaces any text value containing characters the
// core fonts cannot draw.
const unsupportedTextFallback = "[Unsupported Text]"

// signatureFallbackMarker is drawn at the signature position when the
// captured image cannot be decoded or embedded.
const signatureFallbackMarker = "(signature unavailable)"

const termsTemplate = `This agreement is entered into between the undersigned member and the facility on the date shown above.

Member Information
    Name:            %s
    Phone:           %s
    Email:           %s
    Date of Birth:   %s
    Address:         %s

Terms and Conditions
1. The member agrees to comply with all posted facility rules and the instructions of staff while on the premises.
2. Fees paid under this agreement are non-refundable except where required by law.
3. The member confirms that the personal information provided above is accurate and will notify the front desk of any change.
4. The facility processes the information above solely to administer this agreement and to contact the member about covered services.
5. This agreement takes effect on the signing date and remains in force until terminated by either party under facility policy.

By signing below, the member acknowledges having read and agreed to the terms above.`

// SynthesisError is fatal to the signing attempt that raised it. The caller
// must not persist any record for the attempt.
type SynthesisError struct {
	Op  string
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis %s: %v", e.Op, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Synthesizer builds contract documents from a template descriptor, signer
// fields, and a captured signature image.
type Synthesizer struct{}

// New checks once, at startup, that every fixed layout string is inside the
// font repertoire. Field values are sanitized per call; the fixed text is a
// build-time contract, so a violation here is a construction error.
func New() (*Synthesizer, error) {
	fixed := []string{
		termsTemplate,
		unsupportedTextFallback,
		signatureFallbackMarker,
		categoryLabel,
		dateLabel,
		signatureLabel,
		signedByLabel,
	}
	for _, probe := range fixed {
		if !Renderable(probe) {
			return nil, fmt.Errorf("synth: fixed layout text outside font repertoire: %.20q", probe)
		}
	}
	return &Synthesizer{}, nil
}

const (
	categoryLabel  = "Category: "
	dateLabel      = "Date: "
	signatureLabel = "Signature"
	signedByLabel  = "Signed by: "
)

// Synthesize renders a single-page document and returns it re-encoded as a
// data URL (data:application/pdf;base64,...). It is a pure function of its
// inputs except for the embedded generation date.
//
// Signature handling: input that cannot even be parsed as a base64 data URL
// is fatal; a payload that parses but cannot be drawn as a PNG degrades to
// the fallback marker and synthesis continues.
func (s *Synthesizer) Synthesize(tpl domain.Template, signer domain.SignerInfo, signature string) (string, error) {
	sigData, err := prepareSignature(signature)
	if err != nil {
		return "", &SynthesisError{Op: "signature", Err: err}
	}

	doc := fpdf.New("P", "pt", "A4", "")
	translate := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetMargins(marginX, marginTop, marginX)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	// Header: title, category, generation date, rule.
	doc.SetFont(baseFont, "B", titleSize)
	doc.CellFormat(0, 26, translate(sanitizeText(tpl.Name)), "", 1, "C", false, 0, "")
	doc.SetFont(baseFont, "", metaSize)
	doc.CellFormat(0, 14, translate(categoryLabel+string(tpl.Category)), "", 1, "C", false, 0, "")
	doc.CellFormat(0, 14, translate(dateLabel+time.Now().Format("2006-01-02")), "", 1, "C", false, 0, "")
	doc.Ln(10)
	ruleY := doc.GetY()
	doc.Line(marginX, ruleY, 595.28-marginX, ruleY)
	doc.Ln(12)

	// Body: fixed terms interpolated with sanitized signer fields.
	body := fmt.Sprintf(termsTemplate,
		sanitizeText(signer.Name),
		sanitizeText(signer.Phone),
		sanitizeText(signer.Email),
		sanitizeText(signer.BirthDate),
		sanitizeText(signer.Address),
	)
	doc.SetFont(baseFont, "", bodySize)
	doc.MultiCell(0, lineHeight, translate(body), "", "L", false)

	// Signature block at a fixed position near the page foot.
	doc.SetXY(marginX, signatureY)
	doc.SetFont(baseFont, "B", bodySize)
	doc.CellFormat(0, lineHeight, translate(signatureLabel), "", 1, "L", false, 0, "")
	if sigData != nil {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		info := doc.RegisterImageOptionsReader("signature", opts, bytes.NewReader(sigData))
		w := info.Width() * signatureScale
		h := info.Height() * signatureScale
		doc.ImageOptions("signature", marginX, signatureY+lineHeight+signatureGapPts, w, h, false, opts, 0, "")
	} else {
		doc.SetFont(baseFont, "", bodySize)
		doc.CellFormat(0, lineHeight, translate(signatureFallbackMarker), "", 1, "L", false, 0, "")
	}
	doc.SetXY(marginX, signedByLineY)
	doc.SetFont(baseFont, "", bodySize)
	doc.CellFormat(0, lineHeight, translate(signedByLabel+sanitizeText(signer.Name)), "", 1, "L", false, 0, "")

	if doc.Err() {
		return "", &SynthesisError{Op: "render", Err: doc.Error()}
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return "", &SynthesisError{Op: "serialize", Err: err}
	}
	return dataurl.Format(dataurl.MediaTypePDF, buf.Bytes()), nil
}

// prepareSignature decodes the captured signature image. It returns the PNG
// bytes to embed, or nil when rendering should fall back to the marker. An
// error means the input was not a decodable data URL at all, which is fatal.
func prepareSignature(encoded string) ([]byte, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, errors.New("signature image missing")
	}
	mediaType, data, err := dataurl.Parse(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if mediaType != dataurl.MediaTypePNG || len(data) == 0 {
		return nil, nil
	}
	if !embeddable(data) {
		return nil, nil
	}
	return data, nil
}

// embeddable verifies the payload both parses as a PNG and survives a trial
// embed. The trial runs against a throwaway document because an embed
// failure poisons the document error state, and a poisoned real document
// would abort synthesis, which signature problems must never do.
func embeddable(data []byte) bool {
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return false
	}
	probe := fpdf.New("P", "pt", "A4", "")
	probe.AddPage()
	probe.RegisterImageOptionsReader("probe", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
	return probe.Ok()
}
