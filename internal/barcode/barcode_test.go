package barcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		code      string
		format    Format
		expectErr bool
	}{
		{
			name:      "Too short",
			code:      "1234",
			format:    FormatEAN8,
			expectErr: true,
		},
		{
			name:      "Valid numeric",
			code:      "12345678",
			format:    FormatEAN8,
			expectErr: false,
		},
		{
			name:      "Valid UPC-A",
			code:      "012345678905",
			format:    FormatUPCA,
			expectErr: false,
		},
		{
			name:      "Letters in numeric symbology",
			code:      "ABC12345",
			format:    FormatEAN13,
			expectErr: true,
		},
		{
			name:      "Letters in QR payload",
			code:      "https://example.com/p/42",
			format:    FormatQR,
			expectErr: false,
		},
		{
			name:      "Letters in manual entry",
			code:      "ABC12345",
			format:    FormatManual,
			expectErr: false,
		},
		{
			name:      "Short manual entry",
			code:      "1234567",
			format:    FormatManual,
			expectErr: true,
		},
		{
			name:      "DataMatrix payload",
			code:      "PK-2024-00017",
			format:    FormatDataMatrix,
			expectErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.code, tc.format)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatNumeric(t *testing.T) {
	assert.True(t, FormatEAN13.Numeric())
	assert.True(t, FormatITF.Numeric())
	assert.False(t, FormatQR.Numeric())
	assert.False(t, FormatCode128.Numeric())
	assert.False(t, FormatManual.Numeric())
}
