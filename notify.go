package macrolog

import (
	"fmt"

	"go.uber.org/zap"
)

// ============================================================================
// Notification Sink
// ============================================================================

// Notifier receives best-effort, non-blocking status from the offline layer.
// Implementations must not block; a misbehaving notifier cannot stall the
// interceptor or the sync engine (panics are recovered by the caller).
type Notifier interface {
	// OfflineChanged fires on each connectivity edge. offline=true should
	// surface a persistent indicator; offline=false dismisses it. pending is
	// the queued-request count at the time of the edge.
	OfflineChanged(offline bool, pending int)
	// SyncCompleted fires once per drain cycle with the aggregate result.
	SyncCompleted(result SyncResult)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OfflineChanged(bool, int) {}
func (NopNotifier) SyncCompleted(SyncResult) {}

// ============================================================================
// LogNotifier
// ============================================================================

// LogNotifier writes notifications to a structured logger. Useful for
// headless hosts and as the default sink in services.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) OfflineChanged(offline bool, pending int) {
	if offline {
		n.log.Info("offline mode entered", zap.Int("pending", pending))
		return
	}
	n.log.Info("back online", zap.Int("pending", pending))
}

func (n *LogNotifier) SyncCompleted(result SyncResult) {
	if result.Synced > 0 {
		n.log.Info(actionSummary("Synced", result.Synced))
	}
	if result.Failed > 0 {
		n.log.Warn(actionSummary("Failed to sync", result.Failed),
			zap.Int("abandoned", result.Abandoned))
	}
}

// actionSummary renders user-facing toast text like "Synced 3 actions".
func actionSummary(verb string, count int) string {
	if count == 1 {
		return fmt.Sprintf("%s 1 action", verb)
	}
	return fmt.Sprintf("%s %d actions", verb, count)
}

// ============================================================================
// ChannelNotifier
// ============================================================================

// NotificationKind distinguishes channel notifications.
type NotificationKind string

const (
	NotificationOffline NotificationKind = "offline"
	NotificationOnline  NotificationKind = "online"
	NotificationSync    NotificationKind = "sync"
)

// Notification is one UI-facing status message.
type Notification struct {
	Kind    NotificationKind
	Message string
	Pending int
	Result  *SyncResult
}

// ChannelNotifier delivers notifications on a buffered channel for a UI event
// loop to render as banners or toasts. Delivery is best effort: when the
// buffer is full the notification is dropped rather than blocking the
// offline layer.
type ChannelNotifier struct {
	ch chan Notification
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelNotifier{ch: make(chan Notification, buffer)}
}

// C returns the notification channel.
func (n *ChannelNotifier) C() <-chan Notification {
	return n.ch
}

func (n *ChannelNotifier) OfflineChanged(offline bool, pending int) {
	kind := NotificationOnline
	msg := "Back online"
	if offline {
		kind = NotificationOffline
		msg = "You are offline. Changes will sync when connection returns"
	}
	n.push(Notification{Kind: kind, Message: msg, Pending: pending})
}

func (n *ChannelNotifier) SyncCompleted(result SyncResult) {
	msg := ""
	if result.Synced > 0 {
		msg = actionSummary("Synced", result.Synced)
	}
	if result.Failed > 0 {
		if msg != "" {
			msg += "; "
		}
		msg += actionSummary("Failed to sync", result.Failed)
	}
	if msg == "" {
		msg = "Nothing to sync"
	}
	n.push(Notification{Kind: NotificationSync, Message: msg, Result: &result})
}

func (n *ChannelNotifier) push(note Notification) {
	select {
	case n.ch <- note:
	default:
	}
}
