package jobs

import (
	"encoding/json"
	"time"
)

// RegistrationEmailPayload drives the confirmation, approval and rejection
// emails. Keep payloads small and ID-based; the worker does not reload the
// auction, so the fields the templates need travel with the job.
type RegistrationEmailPayload struct {
	RegistrationID string    `json:"registrationId"`
	AuctionID      string    `json:"auctionId"`
	AuctionTitle   string    `json:"auctionTitle"`
	AuctionDate    time.Time `json:"auctionDate"`
	Location       string    `json:"location"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	BidderNumber   string    `json:"bidderNumber,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RequestedAt    time.Time `json:"requestedAt"`
}

func (p RegistrationEmailPayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// AuctionCancelledPayload notifies every registered buyer of a cancelled
// auction. One job per buyer keeps retries independent.
type AuctionCancelledPayload struct {
	AuctionID    string    `json:"auctionId"`
	AuctionTitle string    `json:"auctionTitle"`
	AuctionDate  time.Time `json:"auctionDate"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	RequestedAt  time.Time `json:"requestedAt"`
}

func (p AuctionCancelledPayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
