package auction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 24h clock, optional leading zero on the hour ("9:30" is accepted).
var timePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

type CreateAuctionRequest struct {
	Title                string          `json:"title" binding:"required,min=3,max=200"`
	Description          string          `json:"description" binding:"required,max=5000"`
	Location             string          `json:"location" binding:"required,min=2,max=200"`
	Date                 time.Time       `json:"date" binding:"required"`
	StartTime            string          `json:"startTime" binding:"required"`
	EndTime              string          `json:"endTime" binding:"required"`
	Livestock            json.RawMessage `json:"livestock" binding:"required"`
	Auctioneer           json.RawMessage `json:"auctioneer" binding:"required"`
	RegistrationRequired *bool           `json:"registrationRequired"`
	RegistrationDeadline *time.Time      `json:"registrationDeadline"`
	RegistrationFee      float64         `json:"registrationFee" binding:"omitempty,min=0"`
	Terms                string          `json:"terms" binding:"omitempty,max=5000"`
	Published            *bool           `json:"published"`
	ImageRef             *string         `json:"image"`
}

// UpdateAuctionRequest is a patch: nil fields keep their previous values.
type UpdateAuctionRequest struct {
	Title                *string         `json:"title" binding:"omitempty,min=3,max=200"`
	Description          *string         `json:"description" binding:"omitempty,max=5000"`
	Location             *string         `json:"location" binding:"omitempty,min=2,max=200"`
	Date                 *time.Time      `json:"date"`
	StartTime            *string         `json:"startTime"`
	EndTime              *string         `json:"endTime"`
	Livestock            json.RawMessage `json:"livestock"`
	Auctioneer           json.RawMessage `json:"auctioneer"`
	RegistrationRequired *bool           `json:"registrationRequired"`
	RegistrationDeadline *time.Time      `json:"registrationDeadline"`
	RegistrationFee      *float64        `json:"registrationFee" binding:"omitempty,min=0"`
	Terms                *string         `json:"terms" binding:"omitempty,max=5000"`
	Published            *bool           `json:"published"`
	ImageRef             *string         `json:"image"`
}

// NewFromCreateRequest builds and validates a new auction aggregate.
// Livestock and auctioneer payloads may arrive either as structured JSON
// or as JSON-encoded strings (multipart form clients send the latter).
func NewFromCreateRequest(req CreateAuctionRequest, now time.Time) (Auction, error) {
	if !req.Date.After(now) {
		return Auction{}, fmt.Errorf("%w: auction date must be in the future", ErrValidation)
	}

	if !timePattern.MatchString(req.StartTime) {
		return Auction{}, fmt.Errorf("%w: startTime must be in HH:MM 24-hour format", ErrValidation)
	}

	if !timePattern.MatchString(req.EndTime) {
		return Auction{}, fmt.Errorf("%w: endTime must be in HH:MM 24-hour format", ErrValidation)
	}

	if req.RegistrationDeadline != nil && req.RegistrationDeadline.After(req.Date) {
		return Auction{}, fmt.Errorf("%w: registration deadline must be on or before the auction date", ErrValidation)
	}

	livestock, err := parseLivestock(req.Livestock)
	if err != nil {
		return Auction{}, err
	}

	auctioneer, err := parseAuctioneer(req.Auctioneer)
	if err != nil {
		return Auction{}, err
	}

	terms := strings.TrimSpace(req.Terms)
	if terms == "" {
		terms = DefaultTerms
	}

	a := Auction{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Description:          req.Description,
		Location:             req.Location,
		Date:                 req.Date,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		Livestock:            livestock,
		Auctioneer:           auctioneer,
		RegistrationRequired: true,
		RegistrationDeadline: req.RegistrationDeadline,
		RegistrationFee:      req.RegistrationFee,
		Terms:                terms,
		Status:               StatusUpcoming,
		ImageRef:             req.ImageRef,
		Published:            true,
		Views:                0,
		InterestedBuyers:     []InterestedBuyer{},
		Registrations:        []Registration{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if req.RegistrationRequired != nil {
		a.RegistrationRequired = *req.RegistrationRequired
	}

	if req.Published != nil {
		a.Published = *req.Published
	}

	return a, nil
}

// ApplyUpdate mutates only the supplied fields, re-running the same
// validation as create for anything that changed.
func (a *Auction) ApplyUpdate(req UpdateAuctionRequest, now time.Time) error {
	if req.StartTime != nil && !timePattern.MatchString(*req.StartTime) {
		return fmt.Errorf("%w: startTime must be in HH:MM 24-hour format", ErrValidation)
	}

	if req.EndTime != nil && !timePattern.MatchString(*req.EndTime) {
		return fmt.Errorf("%w: endTime must be in HH:MM 24-hour format", ErrValidation)
	}

	date := a.Date
	if req.Date != nil {
		date = *req.Date
	}

	deadline := a.RegistrationDeadline
	if req.RegistrationDeadline != nil {
		deadline = req.RegistrationDeadline
	}

	if deadline != nil && deadline.After(date) {
		return fmt.Errorf("%w: registration deadline must be on or before the auction date", ErrValidation)
	}

	if len(req.Livestock) > 0 {
		livestock, err := parseLivestock(req.Livestock)
		if err != nil {
			return err
		}
		a.Livestock = livestock
	}

	if len(req.Auctioneer) > 0 {
		auctioneer, err := parseAuctioneer(req.Auctioneer)
		if err != nil {
			return err
		}
		a.Auctioneer = auctioneer
	}

	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.Location != nil {
		a.Location = *req.Location
	}
	if req.Date != nil {
		a.Date = *req.Date
	}
	if req.StartTime != nil {
		a.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		a.EndTime = *req.EndTime
	}
	if req.RegistrationRequired != nil {
		a.RegistrationRequired = *req.RegistrationRequired
	}
	if req.RegistrationDeadline != nil {
		a.RegistrationDeadline = req.RegistrationDeadline
	}
	if req.RegistrationFee != nil {
		a.RegistrationFee = *req.RegistrationFee
	}
	if req.Terms != nil {
		a.Terms = *req.Terms
	}
	if req.Published != nil {
		a.Published = *req.Published
	}
	if req.ImageRef != nil {
		a.ImageRef = req.ImageRef
	}

	a.UpdatedAt = now

	return nil
}

func parseLivestock(raw json.RawMessage) ([]LivestockLot, error) {
	var lots []LivestockLot

	if err := decodeEmbedded(raw, &lots); err != nil {
		return nil, fmt.Errorf("%w: invalid livestock data format", ErrValidation)
	}

	if len(lots) == 0 {
		return nil, fmt.Errorf("%w: at least one livestock line is required", ErrValidation)
	}

	for i, lot := range lots {
		if !lot.Category.IsValid() {
			return nil, fmt.Errorf("%w: livestock[%d] has an unknown category", ErrValidation, i)
		}
		if lot.Quantity < 1 {
			return nil, fmt.Errorf("%w: livestock[%d] quantity must be at least 1", ErrValidation, i)
		}
		if lot.StartingPrice < 0 {
			return nil, fmt.Errorf("%w: livestock[%d] starting price must not be negative", ErrValidation, i)
		}
	}

	return lots, nil
}

func parseAuctioneer(raw json.RawMessage) (Auctioneer, error) {
	var auctioneer Auctioneer

	if err := decodeEmbedded(raw, &auctioneer); err != nil {
		return Auctioneer{}, fmt.Errorf("%w: invalid auctioneer data format", ErrValidation)
	}

	if strings.TrimSpace(auctioneer.Name) == "" {
		return Auctioneer{}, fmt.Errorf("%w: auctioneer name is required", ErrValidation)
	}

	return auctioneer, nil
}

// decodeEmbedded accepts either a JSON value or a JSON string wrapping one.
func decodeEmbedded(raw json.RawMessage, out any) error {
	trimmed := strings.TrimSpace(string(raw))

	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		return json.Unmarshal([]byte(inner), out)
	}

	return json.Unmarshal(raw, out)
}
