package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-scan-backend/internal/barcode"
	"checkout-scan-backend/internal/capture"
	"checkout-scan-backend/internal/decode"
	"checkout-scan-backend/internal/model"
	"checkout-scan-backend/internal/store"
)

// mockLookup is a mock implementation of the ProductLookup interface.
type mockLookup struct {
	calls int32
	fn    func(ctx context.Context, code string) (*model.Product, error)
}

func (m *mockLookup) ProductByBarcode(ctx context.Context, code string) (*model.Product, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.fn(ctx, code)
}

func (m *mockLookup) count() int32 { return atomic.LoadInt32(&m.calls) }

// mockCarts is a mock implementation of the CartAdder interface.
type mockCarts struct {
	fn func(ctx context.Context, cartCode string, item model.CartItem) (*model.CartItem, error)
}

func (m *mockCarts) AddItemToCart(ctx context.Context, cartCode string, item model.CartItem) (*model.CartItem, error) {
	return m.fn(ctx, cartCode, item)
}

type mockNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (m *mockNotifier) Publish(n Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, n)
}

func milk() *model.Product {
	return &model.Product{
		ID:      1,
		Name:    "Milk",
		Price:   decimal.NewFromFloat(3.49),
		Barcode: "012345678905",
	}
}

func testConfig() Config {
	return Config{
		TickInterval:        5 * time.Millisecond,
		Debounce:            25 * time.Millisecond,
		MinConfidence:       0.8,
		OccurrenceThreshold: 3,
		HistorySize:         10,
		LookupTimeout:       time.Second,
	}
}

func newTestSession(lookup ProductLookup, carts CartAdder) *Session {
	return NewSession("test", testConfig(), decode.Capabilities{DeviceDecoder: true, Camera: true},
		8, lookup, carts, &mockNotifier{})
}

func pushRead(t *testing.T, s *Session, code string, conf float64) {
	t.Helper()
	c := barcode.Candidate{Code: code, Format: barcode.FormatUPCA, Confidence: conf}
	require.NoError(t, s.PushFrame(capture.Frame{Decoded: &c}))
}

func TestSession_HappyPath(t *testing.T) {
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		assert.Equal(t, "012345678905", code)
		return milk(), nil
	}}
	var addedItem model.CartItem
	carts := &mockCarts{fn: func(ctx context.Context, cartCode string, item model.CartItem) (*model.CartItem, error) {
		assert.Equal(t, "CART-7", cartCode)
		addedItem = item
		item.ID = 42
		return &item, nil
	}}
	s := newTestSession(lookup, carts)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateScanning, s.Snapshot().State)

	// Three consecutive high-confidence reads of the same code.
	for i := 0; i < 3; i++ {
		pushRead(t, s, "012345678905", 0.95)
		time.Sleep(15 * time.Millisecond)
	}

	// The debounced lookup fires and the product lands on the session.
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.State == StateIdle && snap.Product != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), lookup.count(), "bursts must coalesce into one lookup")

	s.SetQuantity(2)
	item, err := s.Confirm(context.Background(), "CART-7")
	require.NoError(t, err)
	assert.Equal(t, int64(42), item.ID)
	assert.Equal(t, 2, addedItem.Quantity)
	assert.Equal(t, "012345678905", addedItem.Barcode)

	// Success resets the pipeline and records the scan.
	snap := s.Snapshot()
	assert.Nil(t, snap.Product)
	assert.Empty(t, snap.Code)
	assert.Equal(t, 1, snap.Quantity)

	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, int64(1), hist[0].ProductID)
}

func TestSession_LowConfidenceDoesNotProgress(t *testing.T) {
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		return milk(), nil
	}}
	s := newTestSession(lookup, &mockCarts{})

	require.NoError(t, s.Start(context.Background()))
	pushRead(t, s, "012345678905", 0.5)

	require.Eventually(t, func() bool {
		return s.Snapshot().Message != ""
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, StateScanning, snap.State)
	assert.Contains(t, snap.Message, "low-confidence")
	assert.Equal(t, int32(0), lookup.count())
	assert.Equal(t, 0, s.gate.Occurrences("012345678905"))
}

func TestSession_ManualBurstIsOneLookup(t *testing.T) {
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		return milk(), nil
	}}
	s := newTestSession(lookup, &mockCarts{})
	require.NoError(t, s.SetMode(ModeManual))

	// Three submissions inside the quiet period coalesce into one lookup.
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SubmitManual("012345678905"))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return s.Snapshot().Product != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), lookup.count())
}

func TestSession_DedupGuardSingleInflight(t *testing.T) {
	release := make(chan struct{})
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		<-release
		return milk(), nil
	}}
	s := newTestSession(lookup, &mockCarts{})
	require.NoError(t, s.SetMode(ModeManual))

	require.NoError(t, s.SubmitManual("012345678905"))
	require.Eventually(t, func() bool {
		return s.Snapshot().State == StateResolving
	}, time.Second, 5*time.Millisecond)

	// Submissions while a lookup is in flight are silently absorbed.
	require.NoError(t, s.SubmitManual("012345678905"))
	require.NoError(t, s.SubmitManual("40123455"))
	close(release)

	require.Eventually(t, func() bool {
		return s.Snapshot().Product != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), lookup.count())
}

func TestSession_NotFoundThenRetry(t *testing.T) {
	var attempts int32
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, store.ErrProductNotFound
		}
		return milk(), nil
	}}
	s := newTestSession(lookup, &mockCarts{})
	require.NoError(t, s.SetMode(ModeManual))

	require.NoError(t, s.SubmitManual("99999999"))
	require.Eventually(t, func() bool {
		return s.Snapshot().State == StateError
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, "not_found", snap.ErrorKind)
	assert.Contains(t, snap.LastError, "99999999")

	// Retry re-issues the same lookup without the debounce delay.
	start := time.Now()
	require.NoError(t, s.Retry())
	require.Eventually(t, func() bool {
		return s.Snapshot().Product != nil
	}, time.Second, time.Millisecond)
	assert.Less(t, time.Since(start), testConfig().Debounce)
	assert.Equal(t, int32(2), lookup.count())
}

func TestSession_RetryOnlyFromError(t *testing.T) {
	s := newTestSession(&mockLookup{}, &mockCarts{})
	assert.ErrorIs(t, s.Retry(), ErrRetryUnavailable)
}

func TestSession_CancelReturnsToIdle(t *testing.T) {
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		return nil, store.ErrProductNotFound
	}}
	s := newTestSession(lookup, &mockCarts{})
	require.NoError(t, s.SetMode(ModeManual))

	require.NoError(t, s.SubmitManual("99999999"))
	require.Eventually(t, func() bool {
		return s.Snapshot().State == StateError
	}, time.Second, 5*time.Millisecond)

	s.Cancel()
	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Code)
	assert.Empty(t, snap.LastError)
	assert.True(t, s.gate.Empty())
}

func TestSession_StopClearsEverything(t *testing.T) {
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		return milk(), nil
	}}
	s := newTestSession(lookup, &mockCarts{})

	require.NoError(t, s.Start(context.Background()))
	pushRead(t, s, "012345678905", 0.95)
	time.Sleep(15 * time.Millisecond)

	s.Stop()
	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, s.gate.Empty(), "occurrence counts must be cleared on any transition to idle")
	assert.Nil(t, snap.StartedAt)

	// The camera was released; a fresh start can reacquire it.
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestSession_InvalidManualEntrySurfacesAndContinues(t *testing.T) {
	s := newTestSession(&mockLookup{}, &mockCarts{})
	require.NoError(t, s.SetMode(ModeManual))

	err := s.SubmitManual("1234")
	assert.ErrorIs(t, err, barcode.ErrInvalidFormat)

	// The failure is local; the session is still usable.
	assert.NotEqual(t, StateError, s.Snapshot().State)
}

func TestSession_ConfirmWithoutProduct(t *testing.T) {
	s := newTestSession(&mockLookup{}, &mockCarts{})
	_, err := s.Confirm(context.Background(), "CART-7")
	assert.ErrorIs(t, err, ErrNoResolvedProduct)
}

func TestSession_FailedAddKeepsProductRetryable(t *testing.T) {
	lookup := &mockLookup{fn: func(ctx context.Context, code string) (*model.Product, error) {
		return milk(), nil
	}}
	var addAttempts int32
	carts := &mockCarts{fn: func(ctx context.Context, cartCode string, item model.CartItem) (*model.CartItem, error) {
		if atomic.AddInt32(&addAttempts, 1) == 1 {
			return nil, context.DeadlineExceeded
		}
		item.ID = 7
		return &item, nil
	}}
	s := newTestSession(lookup, carts)
	require.NoError(t, s.SetMode(ModeManual))

	require.NoError(t, s.SubmitManual("012345678905"))
	require.Eventually(t, func() bool {
		return s.Snapshot().Product != nil
	}, time.Second, 5*time.Millisecond)

	_, err := s.Confirm(context.Background(), "CART-7")
	require.Error(t, err)
	assert.NotNil(t, s.Snapshot().Product, "a failed add must stay retryable without re-scanning")
	assert.Empty(t, s.History())

	item, err := s.Confirm(context.Background(), "CART-7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.ID)
	assert.Len(t, s.History(), 1)
}

func TestSession_ManualOnlyDevice(t *testing.T) {
	notifier := &mockNotifier{}
	s := NewSession("test", testConfig(), decode.Capabilities{}, 8,
		&mockLookup{}, &mockCarts{}, notifier)

	assert.Equal(t, ModeManual, s.Snapshot().Mode)
	assert.Equal(t, "manual", s.Backend())
	assert.ErrorIs(t, s.SetMode(ModeCamera), ErrManualOnly)
	assert.ErrorIs(t, s.Start(context.Background()), ErrWrongMode)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "scanner.unsupported", notifier.notices[0].Key)
}

func TestHistory_DedupMoveToFront(t *testing.T) {
	h := newHistory(3)
	h.add(HistoryEntry{ProductID: 1, Name: "Milk"})
	h.add(HistoryEntry{ProductID: 2, Name: "Bread"})
	h.add(HistoryEntry{ProductID: 1, Name: "Milk"})

	entries := h.list()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ProductID)
	assert.Equal(t, int64(2), entries[1].ProductID)

	h.add(HistoryEntry{ProductID: 3, Name: "Eggs"})
	h.add(HistoryEntry{ProductID: 4, Name: "Butter"})
	entries = h.list()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(4), entries[0].ProductID)
}
