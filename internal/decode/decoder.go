package decode

import (
	"errors"

	"checkout-scan-backend/internal/barcode"
	"checkout-scan-backend/internal/capture"
)

// ErrDeviceUnsupported means no viable detection backend exists for the
// operator device. It is surfaced once; the caller must force manual-entry
// mode.
var ErrDeviceUnsupported = errors.New("no viable detection backend")

// Detector consumes one frame and yields zero or more raw candidates.
// Implementations correspond to interchangeable decoding backends.
type Detector interface {
	Detect(frame capture.Frame) ([]barcode.Candidate, error)
	Name() string
}

// Capabilities is what the operator device advertises at session start.
type Capabilities struct {
	// DeviceDecoder is true when the device runs a native barcode API and
	// pushes pre-decoded reads instead of raw frames.
	DeviceDecoder bool `json:"device_decoder"`
	// Camera is true when the device can deliver raw frames.
	Camera bool `json:"camera"`
}

// Select probes the advertised capabilities and picks a backend once per
// session. A native device decoder is preferred over the bundled software
// decoder; a device with neither gets ErrDeviceUnsupported.
func Select(caps Capabilities) (Detector, error) {
	if caps.DeviceDecoder {
		return NewDevice(), nil
	}
	if caps.Camera {
		return NewZXing(), nil
	}
	return nil, ErrDeviceUnsupported
}

// Device is the passthrough backend for hardware whose native barcode API
// delivers decoded reads. The reads arrive as frames with Decoded set and
// carry the device's own confidence score.
type Device struct{}

// NewDevice creates the passthrough backend.
func NewDevice() *Device { return &Device{} }

func (d *Device) Name() string { return "device" }

// Detect returns the pre-decoded read carried by the frame, if any.
func (d *Device) Detect(frame capture.Frame) ([]barcode.Candidate, error) {
	if frame.Decoded == nil {
		return nil, nil
	}
	c := *frame.Decoded
	if c.Confidence == 0 {
		c.Confidence = 1.0
	}
	return []barcode.Candidate{c}, nil
}
