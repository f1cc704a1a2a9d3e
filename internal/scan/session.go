package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"checkout-scan-backend/internal/barcode"
	"checkout-scan-backend/internal/capture"
	"checkout-scan-backend/internal/decode"
	"checkout-scan-backend/internal/model"
	"checkout-scan-backend/internal/store"
)

// State is the detection session's lifecycle state.
type State string

const (
	StateIdle                 State = "idle"
	StateInitializing         State = "initializing"
	StateScanning             State = "scanning"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateResolving            State = "resolving"
	StateError                State = "error"
)

// Mode selects between camera scanning and manual entry.
type Mode string

const (
	ModeCamera Mode = "camera"
	ModeManual Mode = "manual"
)

var (
	// ErrManualOnly means the device has no viable detection backend and
	// cannot leave manual-entry mode.
	ErrManualOnly = errors.New("device supports manual entry only")
	// ErrWrongMode means the operation is not valid in the current mode.
	ErrWrongMode = errors.New("operation not valid in current mode")
	// ErrNoResolvedProduct means confirm was called with nothing to add.
	ErrNoResolvedProduct = errors.New("no resolved product to add")
	// ErrRetryUnavailable means retry was called outside the error state.
	ErrRetryUnavailable = errors.New("retry is only valid after a failed lookup")
	// ErrNotIdle means the scanner was started while a cycle is in progress.
	ErrNotIdle = errors.New("scanner is not idle")
)

// ProductLookup resolves a barcode against the external product store.
type ProductLookup interface {
	ProductByBarcode(ctx context.Context, code string) (*model.Product, error)
}

// CartAdder is the external cart-mutation collaborator. Adding an
// already-present product increments its quantity server-side.
type CartAdder interface {
	AddItemToCart(ctx context.Context, cartCode string, item model.CartItem) (*model.CartItem, error)
}

// Notice is an operator-facing pipeline event. Key identifies the event
// class so the delivery layer can coalesce repeats.
type Notice struct {
	Key      string
	CartCode string
	Title    string
	Body     string
}

// Notifier receives pipeline events. Delivery policy belongs to the
// implementation, not to the pipeline.
type Notifier interface {
	Publish(n Notice)
}

// Config holds the pipeline tunables.
type Config struct {
	TickInterval        time.Duration
	Debounce            time.Duration
	MinConfidence       float64
	OccurrenceThreshold int
	HistorySize         int
	LookupTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 250 * time.Millisecond
	}
	if c.Debounce <= 0 {
		c.Debounce = 800 * time.Millisecond
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.8
	}
	if c.OccurrenceThreshold <= 0 {
		c.OccurrenceThreshold = 3
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 10
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 10 * time.Second
	}
	return c
}

// Session is one active scanning run: capture source, detector backend,
// confidence gate, debounced lookup and the resolved-product hand-off. All
// state is guarded by one mutex; the tick loop and the resolver goroutine
// go through the same methods as operator actions.
type Session struct {
	ID string

	cfg      Config
	lookup   ProductLookup
	carts    CartAdder
	notifier Notifier

	live     *capture.LiveSource
	manual   *capture.ManualSource
	detector decode.Detector // nil when the device is manual-only

	mu           sync.Mutex
	state        State
	mode         Mode
	gate         *Gate
	deb          Debouncer
	hist         *history
	inflight     bool
	code         string
	product      *model.Product
	quantity     int
	message      string
	lastError    string
	errorKind    string
	startedAt    time.Time
	stream       *capture.Stream
	manualStream *capture.Stream
	cancelTick   context.CancelFunc
}

// NewSession probes the device capabilities, picks a detector backend once,
// and builds the session. A device with no viable backend still gets a
// session, locked to manual-entry mode.
func NewSession(id string, cfg Config, caps decode.Capabilities, frameBuffer int, lookup ProductLookup, carts CartAdder, notifier Notifier) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		ID:       id,
		cfg:      cfg,
		lookup:   lookup,
		carts:    carts,
		notifier: notifier,
		live:     capture.NewLiveSource(frameBuffer),
		manual:   capture.NewManualSource(),
		gate:     NewGate(cfg.MinConfidence, cfg.OccurrenceThreshold),
		hist:     newHistory(cfg.HistorySize),
		state:    StateIdle,
		mode:     ModeCamera,
		quantity: 1,
	}

	detector, err := decode.Select(caps)
	if err != nil {
		// Surfaced once; the session is forced into manual entry.
		s.mode = ModeManual
		s.openManualLocked()
		s.notify(Notice{Key: "scanner.unsupported", Title: "Scanner unavailable",
			Body: "No barcode detection backend on this device; use manual entry."})
		return s
	}
	s.detector = detector
	return s
}

// Backend names the selected detector backend, or "manual" for a
// manual-only session.
func (s *Session) Backend() string {
	if s.detector == nil {
		return "manual"
	}
	return s.detector.Name()
}

// Start acquires the camera stream and begins the detection tick loop.
// An acquisition failure is recoverable: the session drops back to Idle and
// the operator may retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeCamera {
		return ErrWrongMode
	}
	if s.state == StateScanning || s.state == StateInitializing {
		return nil // already running
	}
	if s.state != StateIdle {
		return ErrNotIdle
	}

	s.state = StateInitializing
	stream, err := s.live.Open(ctx)
	if err != nil {
		s.state = StateIdle
		return fmt.Errorf("%w: %v", capture.ErrCameraUnavailable, err)
	}

	s.stream = stream
	s.startedAt = time.Now()
	s.gate.Reset()
	s.message = ""
	s.state = StateScanning

	tickCtx, cancel := context.WithCancel(context.Background())
	s.cancelTick = cancel
	go s.run(tickCtx, stream)
	return nil
}

// run is the detection tick loop. Ticks are strictly sequential and continue
// until the session leaves Scanning.
func (s *Session) run(ctx context.Context, stream *capture.Stream) {
	timer := time.NewTimer(s.cfg.TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(stream)
			timer.Reset(s.cfg.TickInterval)
		}
	}
}

func (s *Session) tick(stream *capture.Stream) {
	frame, ok := stream.Poll()
	if !ok {
		return
	}
	candidates, err := s.detector.Detect(frame)
	if err != nil {
		log.Printf("session %s: detect: %v", s.ID, err)
		return
	}
	for _, c := range candidates {
		s.offer(c)
	}
}

// offer runs one candidate through the confidence gate. Occurrence counts
// only move while the session is Scanning.
func (s *Session) offer(c barcode.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateScanning {
		return
	}

	v := s.gate.Accept(c, s.inflight)
	switch v.Decision {
	case DecisionRejected:
		// Local validation failure: surfaced immediately, scanning continues.
		s.message = v.Reason.Error()
	case DecisionPending:
		if v.LowConfidence {
			s.message = fmt.Sprintf("low-confidence read of %q, hold the camera steady", v.Code)
		} else {
			s.message = fmt.Sprintf("reading %q (%d/%d)", v.Code, s.gate.Occurrences(v.Code), s.cfg.OccurrenceThreshold)
		}
	case DecisionAccepted:
		s.acceptLocked(v.Code)
	}
}

// acceptLocked moves an accepted code toward resolution: the camera is
// released, the occurrence map is cleared, and the lookup is scheduled
// behind the debounce quiet period.
func (s *Session) acceptLocked(code string) {
	s.stopCaptureLocked()
	s.gate.Reset()
	s.state = StateAwaitingConfirmation
	s.code = code
	s.message = ""
	s.deb.Schedule(s.cfg.Debounce, func() { s.beginLookup(code) })
}

// beginLookup starts the outbound resolution unless one is already in
// flight; the dedup guard silently absorbs duplicate submissions.
func (s *Session) beginLookup(code string) {
	s.mu.Lock()
	if s.state != StateAwaitingConfirmation && s.state != StateError {
		s.mu.Unlock()
		return
	}
	if s.inflight {
		s.mu.Unlock()
		return
	}
	s.inflight = true
	s.state = StateResolving
	s.mu.Unlock()

	go s.resolve(code)
}

func (s *Session) resolve(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LookupTimeout)
	defer cancel()

	product, err := s.lookup.ProductByBarcode(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false

	if s.state != StateResolving {
		// The session was stopped or reset mid-flight; discard the outcome.
		return
	}

	switch {
	case err == nil:
		s.product = product
		if s.quantity < 1 {
			s.quantity = 1
		}
		s.state = StateIdle
		s.lastError = ""
		s.errorKind = ""
		s.notify(Notice{Key: "scan.resolved", Title: "Product found", Body: product.Name})
	case errors.Is(err, store.ErrProductNotFound):
		s.product = nil
		s.state = StateError
		s.errorKind = "not_found"
		s.lastError = fmt.Sprintf("product with barcode %s not found", code)
		s.notify(Notice{Key: "scan.not_found", Title: "Product not found", Body: s.lastError})
	default:
		s.product = nil
		s.state = StateError
		s.errorKind = "transient"
		s.lastError = fmt.Sprintf("lookup failed: %v", err)
		s.notify(Notice{Key: "scan.lookup_failed", Title: "Lookup failed", Body: s.lastError})
	}
}

// SubmitManual injects a typed code. It goes through the manual capture
// source, then straight to the gate's validation step; frame accumulation
// and confidence thresholds do not apply.
func (s *Session) SubmitManual(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeManual {
		return ErrWrongMode
	}
	if s.manualStream == nil {
		s.openManualLocked()
	}
	if err := s.manual.Submit(code); err != nil {
		return err
	}
	frame, ok := s.manualStream.Poll()
	if !ok || frame.Decoded == nil {
		return capture.ErrStreamClosed
	}

	v := s.gate.Accept(*frame.Decoded, s.inflight)
	if v.Decision == DecisionRejected {
		s.message = v.Reason.Error()
		return v.Reason
	}
	if s.inflight {
		return nil // duplicate submission, silently absorbed
	}
	s.acceptLocked(v.Code)
	return nil
}

// Retry re-issues the failed lookup for the same code, bypassing the
// debouncer. Retries are always operator-initiated.
func (s *Session) Retry() error {
	s.mu.Lock()
	if s.state != StateError || s.code == "" {
		s.mu.Unlock()
		return ErrRetryUnavailable
	}
	code := s.code
	s.mu.Unlock()

	s.beginLookup(code)
	return nil
}

// Cancel discards the current candidate, resolved product and error, and
// returns the session to Idle unless it is actively scanning.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deb.Cancel()
	s.code = ""
	s.product = nil
	s.quantity = 1
	s.message = ""
	s.lastError = ""
	s.errorKind = ""
	if s.state != StateScanning {
		s.state = StateIdle
		s.gate.Reset()
	}
}

// Stop halts the tick loop, releases the camera and clears all session
// data. Valid from any state.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// SetMode switches between camera scanning and manual entry. Switching
// clears the session the same way stop does.
func (s *Session) SetMode(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode != ModeCamera && mode != ModeManual {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode == s.mode {
		return nil
	}
	if mode == ModeCamera && s.detector == nil {
		return ErrManualOnly
	}

	s.resetLocked()
	if s.manualStream != nil {
		s.manualStream.Close()
		s.manualStream = nil
	}
	s.mode = mode
	if mode == ModeManual {
		s.openManualLocked()
	}
	return nil
}

// PushFrame delivers a frame from the operator device into the live stream.
func (s *Session) PushFrame(f capture.Frame) error {
	s.mu.Lock()
	if s.mode != ModeCamera {
		s.mu.Unlock()
		return ErrWrongMode
	}
	live := s.live
	s.mu.Unlock()
	return live.Push(f)
}

// SetQuantity adjusts the quantity for the pending add-to-cart, bounded
// below at 1.
func (s *Session) SetQuantity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.quantity = n
}

// Confirm hands the resolved product to the cart collaborator. On success
// the pipeline resets for the next scan and the product joins the history;
// on failure the resolved product is retained so the add stays retryable
// without re-scanning.
func (s *Session) Confirm(ctx context.Context, cartCode string) (*model.CartItem, error) {
	s.mu.Lock()
	if s.product == nil {
		s.mu.Unlock()
		return nil, ErrNoResolvedProduct
	}
	product := s.product
	quantity := s.quantity
	item := model.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  quantity,
		Barcode:   product.Barcode,
	}
	carts := s.carts
	s.mu.Unlock()

	added, err := carts.AddItemToCart(ctx, cartCode, item)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.notify(Notice{Key: "cart.add_failed", CartCode: cartCode, Title: "Add to cart failed", Body: err.Error()})
		return nil, err
	}

	s.hist.add(HistoryEntry{
		ProductID: product.ID,
		Barcode:   product.Barcode,
		Name:      product.Name,
		At:        time.Now(),
	})
	s.product = nil
	s.code = ""
	s.quantity = 1
	s.message = ""
	s.notify(Notice{Key: "cart.added", CartCode: cartCode, Title: "Added to cart",
		Body: fmt.Sprintf("%s x%d", product.Name, quantity)})
	return added, nil
}

// Snapshot is the operator-facing view of the session.
type Snapshot struct {
	ID        string         `json:"id"`
	State     State          `json:"state"`
	Mode      Mode           `json:"mode"`
	Backend   string         `json:"backend"`
	Code      string         `json:"code,omitempty"`
	Quantity  int            `json:"quantity"`
	Product   *model.Product `json:"product,omitempty"`
	Message   string         `json:"message,omitempty"`
	LastError string         `json:"lastError,omitempty"`
	ErrorKind string         `json:"errorKind,omitempty"`
	StartedAt *time.Time     `json:"startedAt,omitempty"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.ID,
		State:     s.state,
		Mode:      s.mode,
		Backend:   s.Backend(),
		Code:      s.code,
		Quantity:  s.quantity,
		Product:   s.product,
		Message:   s.message,
		LastError: s.lastError,
		ErrorKind: s.errorKind,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	return snap
}

// History lists the recently resolved products, most recent first.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.list()
}

// resetLocked implements "any state -> Idle with session data cleared".
func (s *Session) resetLocked() {
	s.stopCaptureLocked()
	s.deb.Cancel()
	s.gate.Reset()
	s.state = StateIdle
	s.code = ""
	s.product = nil
	s.quantity = 1
	s.message = ""
	s.lastError = ""
	s.errorKind = ""
	s.startedAt = time.Time{}
}

// stopCaptureLocked halts the tick loop and releases the camera. Safe on
// every exit path; closing an already-closed stream is a no-op.
func (s *Session) stopCaptureLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

func (s *Session) openManualLocked() {
	stream, err := s.manual.Open(context.Background())
	if err != nil {
		log.Printf("session %s: open manual source: %v", s.ID, err)
		return
	}
	s.manualStream = stream
}

func (s *Session) notify(n Notice) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(n)
}
