/*
Package notify writes inbox notifications and forwards them to outbound sinks.

PURPOSE:
  Every side effect the HR engine emits towards people (absence reviewed,
  probation milestone reached) is a notification record in the recipient's
  inbox. Optional sinks (Kafka, Telegram) receive a copy after the record is
  written.

BEST EFFORT:
  Notifications never decide the outcome of the operation that triggered
  them. Callers log a failed Send and carry on; the primary state change is
  never rolled back or retried because of it.

DE-DUPLICATION:
  A notification may carry a Key. Keyed notifications are created through the
  store's create-if-absent primitive, so at most one record per key exists no
  matter how often or how concurrently the same Send is issued.

SEE ALSO:
  - absence/review.go: approval/rejection notifications
  - probation/scanner.go: milestone notifications (keyed)
  - kafka.go, telegram.go: sinks
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/generic"
)

type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
)

type Category string

const (
	CategoryAbsence   Category = "absence"
	CategoryProbation Category = "probation"
)

// Notification is one inbox entry for one user.
type Notification struct {
	ID        string   `json:"id"`
	Key       string   `json:"key,omitempty"`
	CompanyID string   `json:"companyId"`
	UserID    string   `json:"userId"`
	Category  Category `json:"category"`
	Type      Type     `json:"type"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Link      string   `json:"link,omitempty"`
	// Group ties together the copies of one fan-out. Not persisted.
	Group     string   `json:"-"`
	Read      bool     `json:"read"`
	CreatedAt int64    `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, n Notification) error
	// CreateNotificationIfAbsent inserts n unless a notification with n.Key
	// exists. Returns false when nothing was written.
	CreateNotificationIfAbsent(ctx context.Context, n Notification) (bool, error)
	ListNotifications(ctx context.Context, companyID, userID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, companyID, userID, id string) error
}

// Sink receives a copy of every notification written.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

// Notifier is the single entry point for emitting notifications.
type Notifier struct {
	Store    Store
	Sinks    []Sink
	Messages *Catalog
	Clock    generic.Clock
	IDs      generic.IDGenerator
	Logger   *zap.Logger
}

// NewNotifier wires a notifier with system clock, UUIDs and English messages.
func NewNotifier(store Store, logger *zap.Logger, sinks ...Sink) *Notifier {
	return &Notifier{
		Store:    store,
		Sinks:    sinks,
		Messages: NewCatalog(LangEN),
		Clock:    generic.SystemClock{},
		IDs:      generic.UUIDGenerator{},
		Logger:   logger.Named("notify"),
	}
}

// Send writes n and forwards it to the sinks. For a keyed notification the
// returned bool is false when the key already existed; sinks are then skipped.
func (nt *Notifier) Send(ctx context.Context, n Notification) (bool, error) {
	if n.ID == "" {
		n.ID = nt.IDs.New()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = generic.Millis(nt.Clock.Now())
	}
	n.Read = false

	if n.Key != "" {
		created, err := nt.Store.CreateNotificationIfAbsent(ctx, n)
		if err != nil {
			return false, fmt.Errorf("failed to create notification %s: %w", n.Key, err)
		}
		if !created {
			return false, nil
		}
	} else if err := nt.Store.CreateNotification(ctx, n); err != nil {
		return false, fmt.Errorf("failed to create notification: %w", err)
	}

	nt.publish(ctx, n)
	return true, nil
}

func (nt *Notifier) publish(ctx context.Context, n Notification) {
	for _, s := range nt.Sinks {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.Publish(ctx, n); err != nil {
			nt.Logger.Warn("sink publish failed",
				zap.String("notification_id", n.ID),
				zap.String("user_id", n.UserID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
