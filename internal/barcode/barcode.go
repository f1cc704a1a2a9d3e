package barcode

import (
	"errors"
	"fmt"
	"image"
)

// Format identifies the symbology a candidate was decoded from.
type Format string

const (
	FormatEAN13      Format = "ean_13"
	FormatEAN8       Format = "ean_8"
	FormatUPCA       Format = "upc_a"
	FormatUPCE       Format = "upc_e"
	FormatCode39     Format = "code_39"
	FormatCode128    Format = "code_128"
	FormatITF        Format = "itf"
	FormatQR         Format = "qr"
	FormatDataMatrix Format = "data_matrix"
	FormatAztec      Format = "aztec"
	FormatPDF417     Format = "pdf_417"
	FormatManual     Format = "manual"
)

// Numeric reports whether the symbology carries digit-only payloads.
// Manual entries and 2D formats may hold arbitrary payloads.
func (f Format) Numeric() bool {
	switch f {
	case FormatEAN13, FormatEAN8, FormatUPCA, FormatUPCE, FormatITF:
		return true
	}
	return false
}

// Candidate is a single raw decode result from one frame. It is immutable
// and never persisted.
type Candidate struct {
	Code       string
	Format     Format
	Confidence float64
	Bounds     *image.Rectangle // optional, for UI overlay
}

// Manual synthesizes the candidate produced by a typed-in code.
func Manual(code string) Candidate {
	return Candidate{Code: code, Format: FormatManual, Confidence: 1.0}
}

// ErrInvalidFormat is returned when a code fails local syntax validation.
// It never reaches the product resolver.
var ErrInvalidFormat = errors.New("invalid barcode format")

const minLength = 8

// Validate checks the syntax of a decoded payload. Codes shorter than eight
// characters are rejected outright; the digit-only rule applies only to
// numeric symbologies, so QR/DataMatrix payloads and manual entries pass
// through with the length check alone.
func Validate(code string, format Format) error {
	if len(code) < minLength {
		return fmt.Errorf("%w: %q is shorter than %d characters", ErrInvalidFormat, code, minLength)
	}
	if format.Numeric() {
		for _, r := range code {
			if r < '0' || r > '9' {
				return fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidFormat, code)
			}
		}
	}
	return nil
}
