package sender

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/notifykit/notifykit/pkg/broadcast"
	"github.com/notifykit/notifykit/pkg/cache"
	"github.com/notifykit/notifykit/pkg/logger"
	"github.com/notifykit/notifykit/pkg/notification"
)

// Metadata keys the in-app sender understands.
const (
	metaCategory = "category"
	metaRealTime = "real_time"
)

// maxTitleLength bounds derived titles in the display payload.
const maxTitleLength = 50

// DisplayPayload is the formatted in-app representation of a notification,
// ready for a client to render.
type DisplayPayload struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	Icon           string `json:"icon"`
	Color          string `json:"color"`
	Category       string `json:"category,omitempty"`
	Priority       string `json:"priority"`
	CreatedAt      string `json:"created_at"`
}

// Static lookup tables for display hints. Unknown categories fall back to
// the bell icon; color follows priority.
var categoryIcons = map[string]string{
	"alert":    "alert-triangle",
	"billing":  "credit-card",
	"security": "shield",
	"social":   "users",
	"system":   "settings",
	"message":  "mail",
}

var priorityColors = map[notification.Priority]string{
	notification.PriorityHigh:   "#dc2626",
	notification.PriorityMedium: "#2563eb",
	notification.PriorityLow:    "#6b7280",
}

const (
	defaultIcon  = "bell"
	defaultColor = "#2563eb"
)

// InAppSender formats notifications into display payloads and broadcasts
// them to the user's live session when one is attached. There is no external
// transport: the record counts as delivered once formatted; the broadcast is
// a side channel and its failures never fail the send.
type InAppSender struct {
	hubs *cache.LRU[string, *broadcast.MemoryHub[DisplayPayload]]
	log  *slog.Logger

	// subMu serializes hub creation so concurrent first subscribers for the
	// same user share one hub instead of overwriting each other's.
	subMu sync.Mutex
}

// InAppOption configures an InAppSender.
type InAppOption func(*InAppSender)

// WithInAppLogger sets the logger for broadcast failures.
func WithInAppLogger(log *slog.Logger) InAppOption {
	return func(s *InAppSender) {
		if log != nil {
			s.log = log
		}
	}
}

// NewInAppSender creates the in-app channel sender. maxUsers bounds the
// number of per-user broadcast hubs held in memory; the least recently
// active user's hub is closed on eviction.
func NewInAppSender(maxUsers int, opts ...InAppOption) *InAppSender {
	if maxUsers <= 0 {
		maxUsers = 1024
	}

	hubs := cache.NewLRU[string, *broadcast.MemoryHub[DisplayPayload]](maxUsers)
	hubs.SetEvictCallback(func(_ string, hub *broadcast.MemoryHub[DisplayPayload]) {
		_ = hub.Close()
	})

	s := &InAppSender{hubs: hubs, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send formats the record into a display payload and pushes it to the
// user's live session unless metadata opts out of real-time delivery.
func (s *InAppSender) Send(ctx context.Context, record *notification.Record) (*Receipt, error) {
	payload := s.format(record)

	if record.Metadata[metaRealTime] != "false" {
		if hub, ok := s.hubs.Get(record.UserID); ok {
			if err := hub.Publish(ctx, broadcast.Message[DisplayPayload]{Data: payload}); err != nil {
				s.log.LogAttrs(ctx, slog.LevelWarn, "in-app broadcast failed",
					logger.UserID(record.UserID),
					logger.NotificationID(record.ID),
					logger.Error(err),
				)
			}
		}
	}

	return &Receipt{
		ProviderMessageID: record.ID.String(),
		Accepted:          []string{record.UserID},
		Detail:            payload.Title,
	}, nil
}

// TestConnection always reports true; the in-app channel has no external
// transport to probe.
func (s *InAppSender) TestConnection(ctx context.Context) bool {
	return true
}

// Subscribe attaches a live session for the given user. The subscription
// ends when ctx is cancelled.
func (s *InAppSender) Subscribe(ctx context.Context, userID string) broadcast.Subscriber[DisplayPayload] {
	s.subMu.Lock()
	hub, ok := s.hubs.Get(userID)
	if !ok {
		hub = broadcast.NewMemoryHub[DisplayPayload](16)
		s.hubs.Put(userID, hub)
	}
	s.subMu.Unlock()

	return hub.Subscribe(ctx)
}

func (s *InAppSender) format(record *notification.Record) DisplayPayload {
	category := record.Metadata[metaCategory]

	icon := categoryIcons[category]
	if icon == "" {
		icon = defaultIcon
	}
	color := priorityColors[record.Priority]
	if color == "" {
		color = defaultColor
	}

	return DisplayPayload{
		NotificationID: record.ID.String(),
		UserID:         record.UserID,
		Title:          deriveTitle(category, record.Message),
		Body:           record.Message,
		Icon:           icon,
		Color:          color,
		Category:       category,
		Priority:       string(record.Priority),
		CreatedAt:      record.CreatedAt.Format(time.RFC3339),
	}
}

// deriveTitle prefers the metadata category; otherwise it takes the
// message's first sentence or clause, truncated with an ellipsis. Both the
// capitalization and the cut happen on rune boundaries.
func deriveTitle(category, message string) string {
	if category != "" {
		r, size := utf8.DecodeRuneInString(category)
		return string(unicode.ToUpper(r)) + category[size:]
	}

	title := message
	if idx := strings.IndexAny(title, ".!?\n"); idx > 0 {
		title = title[:idx]
	} else if idx := strings.Index(title, ", "); idx > 0 {
		title = title[:idx]
	}
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = strings.TrimSpace(string(runes[:maxTitleLength-3])) + "..."
	}
	return title
}
