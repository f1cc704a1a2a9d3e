package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"checkout-scan-backend/internal/model"
	"checkout-scan-backend/internal/scan"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Hub is the process-wide notification channel. Events are keyed; repeats of
// a key that have not been delivered yet are coalesced most-recent-wins, so
// a jittery pipeline cannot flood the operator. Delivery runs on a small
// worker pool.
type Hub struct {
	size    int
	keys    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender

	mu      sync.Mutex
	pending map[string]scan.Notice
}

// NewHub creates a notification hub with the given worker pool size.
func NewHub(size int, db *gorm.DB, webpushOptions *webpush.Options) *Hub {
	if size < 1 {
		size = 1
	}
	return &Hub{
		size:    size,
		keys:    make(chan string, 64),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		pending: make(map[string]scan.Notice),
	}
}

// Start launches the worker goroutines.
func (h *Hub) Start(ctx context.Context) {
	for i := 0; i < h.size; i++ {
		go h.worker(ctx, i)
	}
}

// Publish enqueues an event. A key already waiting for delivery is replaced
// by the newer event instead of queueing a duplicate.
func (h *Hub) Publish(n scan.Notice) {
	h.mu.Lock()
	_, queued := h.pending[n.Key]
	h.pending[n.Key] = n
	h.mu.Unlock()
	if queued {
		return
	}

	select {
	case h.keys <- n.Key:
	default:
		h.mu.Lock()
		delete(h.pending, n.Key)
		h.mu.Unlock()
		log.Printf("notify: queue full, dropping event %q", n.Key)
	}
}

func (h *Hub) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case key := <-h.keys:
			h.mu.Lock()
			n, ok := h.pending[key]
			delete(h.pending, key)
			h.mu.Unlock()
			if ok {
				h.deliver(ctx, n)
			}
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// deliver fans the event out to the matching push subscriptions: those
// watching the event's cart, or every subscription for cart-less events.
func (h *Hub) deliver(ctx context.Context, n scan.Notice) {
	if h.db == nil {
		return
	}

	query := h.db.WithContext(ctx).Model(&model.PushSubscription{})
	if n.CartCode != "" {
		query = query.
			Joins("JOIN subscription_cart_mapping scm ON scm.push_subscription_endpoint = push_subscriptions.endpoint").
			Joins("JOIN carts ON carts.id = scm.cart_id").
			Where("carts.code = ?", n.CartCode)
	}

	var subscriptions []model.PushSubscription
	if err := query.Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions for event %q: %v", n.Key, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": n.Title,
		"body":  n.Body,
	})
	if err != nil {
		log.Printf("Error marshaling payload for event %q: %v", n.Key, err)
		return
	}

	log.Printf("Sending %d notifications for event %q", len(subscriptions), n.Key)
	for _, sub := range subscriptions {
		h.send(ctx, sub, payload)
	}
}

// send pushes a single notification and prunes expired subscriptions.
func (h *Hub) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := h.sender.Send(payload, wpSub, h.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := h.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
