package activity

import (
	"context"
	"log/slog"
	"time"
)

// Auction-related action names recorded in the activity log.
const (
	ActionAuctionCreated         = "auction_created"
	ActionAuctionUpdated         = "auction_updated"
	ActionAuctionCancelled       = "auction_cancelled"
	ActionAuctionDeleted         = "auction_deleted"
	ActionAuctionResultsRecorded = "auction_results_recorded"
	ActionRegistrationCreated    = "auction_registration_created"
	ActionRegistrationApproved   = "auction_registration_approved"
	ActionRegistrationRejected   = "auction_registration_rejected"
	ActionInterestRegistered     = "auction_interest_registered"
)

// AuctionActions is the fixed filter used by the recent-activity feed.
var AuctionActions = []string{
	ActionAuctionCreated,
	ActionAuctionUpdated,
	ActionAuctionCancelled,
	ActionAuctionDeleted,
	ActionAuctionResultsRecorded,
	ActionRegistrationCreated,
	ActionRegistrationApproved,
	ActionRegistrationRejected,
	ActionInterestRegistered,
}

var descriptions = map[string]string{
	ActionAuctionCreated:         "New auction created",
	ActionAuctionUpdated:         "Auction details updated",
	ActionAuctionCancelled:       "Auction cancelled",
	ActionAuctionDeleted:         "Auction removed",
	ActionAuctionResultsRecorded: "Auction sale results recorded",
	ActionRegistrationCreated:    "New buyer registration received",
	ActionRegistrationApproved:   "Buyer registration approved",
	ActionRegistrationRejected:   "Buyer registration rejected",
	ActionInterestRegistered:     "Buyer registered interest",
}

// Describe maps an action name to its dashboard description.
func Describe(action string) string {
	if d, ok := descriptions[action]; ok {
		return d
	}
	return action
}

type Entry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actorId"`
	ActorName  string    `json:"actorName"`
	ActorRole  string    `json:"actorRole"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resourceId,omitempty"`
	Details    string    `json:"details,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Status     string    `json:"status"`
	Severity   string    `json:"severity"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recorder persists activity entries and serves the recent feed.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int, actions []string) ([]Entry, error)
}

// Logger wraps a Recorder with fire-and-forget semantics: a failed write
// is logged and swallowed so it never blocks or reverses the state change
// that triggered it.
type Logger struct {
	rec Recorder
	log *slog.Logger
}

func NewLogger(rec Recorder, log *slog.Logger) *Logger {
	return &Logger{rec: rec, log: log}
}

func (l *Logger) Log(ctx context.Context, e Entry) {
	if e.Status == "" {
		e.Status = "success"
	}
	if e.Severity == "" {
		e.Severity = "info"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	if err := l.rec.Record(ctx, e); err != nil {
		l.log.Warn("activity log write failed",
			"action", e.Action,
			"resource", e.Resource,
			"resource_id", e.ResourceID,
			"err", err,
		)
	}
}
