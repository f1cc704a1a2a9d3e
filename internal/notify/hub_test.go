package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"checkout-scan-backend/internal/scan"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestHub_PublishCoalesces(t *testing.T) {
	h := NewHub(1, nil, &webpush.Options{})

	// Publish the same key twice before any worker runs. The newer event
	// must replace the older one without queueing a second job.
	h.Publish(scan.Notice{Key: "scan.resolved", Title: "first"})
	h.Publish(scan.Notice{Key: "scan.resolved", Title: "second"})

	select {
	case key := <-h.keys:
		assert.Equal(t, "scan.resolved", key)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for the queued key")
	}

	select {
	case key := <-h.keys:
		t.Fatalf("unexpected second job queued: %q", key)
	default:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, "second", h.pending["scan.resolved"].Title)
}

func TestHub_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	h := NewHub(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	// --- Test Case: Cart-targeted event reaches its watchers ---
	t.Run("sends notification to cart watchers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		h.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.JSONEq(t, `{"title":"Item added","body":"Milk added to cart"}`, string(payload))
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN subscription_cart_mapping scm.*JOIN carts.*WHERE carts\.code = \$1`).
			WithArgs("CART-7").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/push", "test_p256dh", "test_auth", time.Now()))

		h.Publish(scan.Notice{
			Key:      "cart.added:CART-7",
			CartCode: "CART-7",
			Title:    "Item added",
			Body:     "Milk added to cart",
		})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// --- Test Case: Subscription expired, should be deleted ---
	t.Run("deletes expired subscription", func(t *testing.T) {
		h.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN subscription_cart_mapping scm.*JOIN carts.*WHERE carts\.code = \$1`).
			WithArgs("CART-8").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/expired", "test_p256dh_expired", "test_auth_expired", time.Now()))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		h.Publish(scan.Notice{
			Key:      "cart.added:CART-8",
			CartCode: "CART-8",
			Title:    "Item added",
			Body:     "Bread added to cart",
		})

		// A short sleep to allow the worker to process the job
		time.Sleep(100 * time.Millisecond)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// --- Test Case: Cart-less event goes to every subscription ---
	t.Run("broadcasts events without a cart", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		var mu sync.Mutex
		var endpoints []string
		h.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				mu.Lock()
				endpoints = append(endpoints, sub.Endpoint)
				mu.Unlock()
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions"`).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/a", "p256dh_a", "auth_a", time.Now()).
				AddRow("https://example.com/b", "p256dh_b", "auth_b", time.Now()))

		h.Publish(scan.Notice{
			Key:   "scanner.unsupported",
			Title: "Scanner unavailable",
			Body:  "Camera decoding is not supported on this device",
		})
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.ElementsMatch(t, []string{"https://example.com/a", "https://example.com/b"}, endpoints)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
