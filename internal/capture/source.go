package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"checkout-scan-backend/internal/barcode"
)

// ErrCameraUnavailable is returned when a live stream cannot be acquired,
// either because the device denied access or the source is already in use.
// The operator may retry starting the scanner.
var ErrCameraUnavailable = errors.New("camera unavailable")

// ErrStreamClosed is returned when pushing to a stream that has been released.
var ErrStreamClosed = errors.New("capture stream closed")

// Frame is one unit of input to the detector. Exactly one of Image (a raw
// camera frame) or Decoded (a read produced by a device-side barcode API)
// is set.
type Frame struct {
	Image   image.Image
	Decoded *barcode.Candidate
	At      time.Time
}

// Source acquires a frame stream. Two implementations exist: a live camera
// feed and manual text entry. The detection engine does not care which one
// it is reading from.
type Source interface {
	Open(ctx context.Context) (*Stream, error)
}

// Stream is a pull-based frame accessor. Frames are buffered; when the
// buffer is full the oldest frame is dropped so the reader always sees
// recent input.
type Stream struct {
	frames  chan Frame
	done    chan struct{}
	once    sync.Once
	release func()
}

func newStream(buffer int, release func()) *Stream {
	if buffer <= 0 {
		buffer = 1
	}
	return &Stream{
		frames:  make(chan Frame, buffer),
		done:    make(chan struct{}),
		release: release,
	}
}

// Poll returns the most recent pending frame, discarding older ones.
// It never blocks; ok is false when no frame is waiting.
func (s *Stream) Poll() (Frame, bool) {
	var latest Frame
	ok := false
	for {
		select {
		case f := <-s.frames:
			latest = f
			ok = true
		default:
			return latest, ok
		}
	}
}

// Next blocks until a frame arrives, the stream closes, or ctx is done.
func (s *Stream) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return Frame{}, ErrStreamClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close releases the stream and the underlying device handle. It is safe to
// call from any exit path and more than once.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

func (s *Stream) push(f Frame) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	for {
		select {
		case s.frames <- f:
			return nil
		default:
			// Buffer full: drop the oldest frame.
			select {
			case <-s.frames:
			default:
			}
		}
	}
}

// LiveSource is the camera-backed source. The operator device pushes frames
// into it over the API; the session pulls them through the stream. At most
// one stream may be open at a time.
type LiveSource struct {
	mu     sync.Mutex
	buffer int
	stream *Stream
}

// NewLiveSource creates a live source with the given frame buffer size.
func NewLiveSource(buffer int) *LiveSource {
	return &LiveSource{buffer: buffer}
}

// Open acquires the stream. A second Open while the stream is live fails
// with ErrCameraUnavailable, the same way a busy device would.
func (s *LiveSource) Open(ctx context.Context) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil, ErrCameraUnavailable
	}
	stream := newStream(s.buffer, func() {
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
	})
	s.stream = stream
	return stream, nil
}

// Push delivers a frame from the operator device into the open stream.
func (s *LiveSource) Push(f Frame) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return ErrStreamClosed
	}
	if f.At.IsZero() {
		f.At = time.Now()
	}
	return stream.push(f)
}

// ManualSource synthesizes one candidate per typed-in code, with confidence
// 1.0 and format MANUAL. It satisfies the same Source contract as the
// camera so the pipeline can switch modes without special cases.
type ManualSource struct {
	mu     sync.Mutex
	stream *Stream
}

// NewManualSource creates a manual-entry source.
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// Open acquires the stream. Manual entry has no device to contend for, so
// Open only fails if a stream is already live.
func (s *ManualSource) Open(ctx context.Context) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil, ErrCameraUnavailable
	}
	stream := newStream(1, func() {
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
	})
	s.stream = stream
	return stream, nil
}

// Submit injects a typed code as a pre-decoded frame.
func (s *ManualSource) Submit(code string) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return ErrStreamClosed
	}
	c := barcode.Manual(code)
	return stream.push(Frame{Decoded: &c, At: time.Now()})
}
