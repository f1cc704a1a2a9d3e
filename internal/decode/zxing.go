package decode

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"checkout-scan-backend/internal/barcode"
	"checkout-scan-backend/internal/capture"
)

// ZXing is the bundled software decoder, used when the device can deliver
// raw frames but has no native barcode API. It runs the one-dimensional
// multi-format reader first and falls back to the QR reader, which matches
// the retail symbologies on product packaging.
type ZXing struct {
	oned gozxing.Reader
	qr   gozxing.Reader
}

// NewZXing creates the software decoder backend.
func NewZXing() *ZXing {
	return &ZXing{
		oned: oned.NewMultiFormatUPCEANReader(nil),
		qr:   qrcode.NewQRCodeReader(),
	}
}

func (z *ZXing) Name() string { return "zxing" }

// Detect decodes the frame image. Pre-decoded frames pass straight through
// so a manual injection works regardless of the selected backend. A frame
// with nothing decodable in it yields zero candidates, not an error.
func (z *ZXing) Detect(frame capture.Frame) ([]barcode.Candidate, error) {
	if frame.Decoded != nil {
		return []barcode.Candidate{*frame.Decoded}, nil
	}
	if frame.Image == nil {
		return nil, nil
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(frame.Image)
	if err != nil {
		return nil, err
	}

	for _, reader := range []gozxing.Reader{z.oned, z.qr} {
		result, err := reader.Decode(bmp, nil)
		if err != nil {
			continue // nothing this reader recognizes in the frame
		}
		c := barcode.Candidate{
			Code:       result.GetText(),
			Format:     mapFormat(result.GetBarcodeFormat()),
			Confidence: 1.0, // the library does not score its reads
			Bounds:     boundsOf(result.GetResultPoints()),
		}
		return []barcode.Candidate{c}, nil
	}
	return nil, nil
}

func mapFormat(f gozxing.BarcodeFormat) barcode.Format {
	switch f {
	case gozxing.BarcodeFormat_EAN_13:
		return barcode.FormatEAN13
	case gozxing.BarcodeFormat_EAN_8:
		return barcode.FormatEAN8
	case gozxing.BarcodeFormat_UPC_A:
		return barcode.FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return barcode.FormatUPCE
	case gozxing.BarcodeFormat_CODE_39:
		return barcode.FormatCode39
	case gozxing.BarcodeFormat_CODE_128:
		return barcode.FormatCode128
	case gozxing.BarcodeFormat_ITF:
		return barcode.FormatITF
	case gozxing.BarcodeFormat_QR_CODE:
		return barcode.FormatQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return barcode.FormatDataMatrix
	case gozxing.BarcodeFormat_AZTEC:
		return barcode.FormatAztec
	case gozxing.BarcodeFormat_PDF_417:
		return barcode.FormatPDF417
	}
	return barcode.FormatCode128
}

func boundsOf(points []gozxing.ResultPoint) *image.Rectangle {
	if len(points) == 0 {
		return nil
	}
	minX, minY := points[0].GetX(), points[0].GetY()
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.GetX() < minX {
			minX = p.GetX()
		}
		if p.GetX() > maxX {
			maxX = p.GetX()
		}
		if p.GetY() < minY {
			minY = p.GetY()
		}
		if p.GetY() > maxY {
			maxY = p.GetY()
		}
	}
	r := image.Rect(int(minX), int(minY), int(maxX), int(maxY))
	return &r
}
