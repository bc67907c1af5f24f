package auction

import (
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

type Category string

const (
	CategoryCattle  Category = "cattle"
	CategoryDairy   Category = "dairy"
	CategoryBeef    Category = "beef"
	CategoryGoats   Category = "goats"
	CategorySheep   Category = "sheep"
	CategoryPigs    Category = "pigs"
	CategoryPoultry Category = "poultry"
	CategoryOther   Category = "other"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryCattle, CategoryDairy, CategoryBeef, CategoryGoats,
		CategorySheep, CategoryPigs, CategoryPoultry, CategoryOther:
		return true
	default:
		return false
	}
}

// DefaultTerms is attached to auctions created without explicit terms.
const DefaultTerms = "All sales are final. Payment is due on the day of the auction. " +
	"Livestock must be collected within 48 hours of purchase."

var (
	ErrNotFound             = errors.New("auction not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAlreadyRegistered    = errors.New("buyer is already registered for this auction")
	ErrInterestExists       = errors.New("contact has already registered interest for this auction")
	ErrRegistrationClosed   = errors.New("registration for this auction is closed")
	ErrRegistrationDecided  = errors.New("registration has already been approved or rejected")
	ErrNotCancellable       = errors.New("auction can no longer be cancelled")
	ErrResultsNotRecordable = errors.New("results can only be recorded for a completed auction")
	ErrValidation           = errors.New("validation failed")
)

type LivestockLot struct {
	Category      Category `json:"category"`
	Breed         string   `json:"breed,omitempty"`
	Quantity      int      `json:"quantity"`
	StartingPrice float64  `json:"startingPrice"`
	// FinalPrice is only populated via RecordResults after the auction completes.
	FinalPrice  float64 `json:"finalPrice,omitempty"`
	Description string  `json:"description,omitempty"`
}

type Auctioneer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	License string `json:"license,omitempty"`
}

type InterestedBuyer struct {
	Name         string    `json:"name"`
	Contact      string    `json:"contact"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type Auction struct {
	ID                   string            `json:"id"`
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	Location             string            `json:"location"`
	Date                 time.Time         `json:"date"`
	StartTime            string            `json:"startTime"`
	EndTime              string            `json:"endTime"`
	Livestock            []LivestockLot    `json:"livestock"`
	Auctioneer           Auctioneer        `json:"auctioneer"`
	RegistrationRequired bool              `json:"registrationRequired"`
	RegistrationDeadline *time.Time        `json:"registrationDeadline,omitempty"`
	RegistrationFee      float64           `json:"registrationFee"`
	Terms                string            `json:"terms"`
	Status               Status            `json:"status"`
	ImageRef             *string           `json:"image,omitempty"`
	Published            bool              `json:"published"`
	Views                int               `json:"views"`
	InterestedBuyers     []InterestedBuyer `json:"interestedBuyers"`
	Registrations        []Registration    `json:"registrations"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// ListFilter selects auctions for listing queries. Nil pointer fields are
// not applied.
type ListFilter struct {
	Category      *Category
	Location      *string
	Status        *Status
	IncludeHidden bool
	Limit         int
	Offset        int
}

// DeriveStatus applies the lazy lifecycle rule: an upcoming auction whose
// date has passed becomes completed. Ongoing and cancelled auctions are
// never touched, and the transition happens at most once. Reports whether
// the status changed.
func (a *Auction) DeriveStatus(now time.Time) bool {
	if a.Status == StatusUpcoming && a.Date.Before(now) {
		a.Status = StatusCompleted
		return true
	}
	return false
}

// Cancel moves the auction to cancelled. Completed and already-cancelled
// auctions stay as they are.
func (a *Auction) Cancel(now time.Time) error {
	if a.Status == StatusCompleted || a.Status == StatusCancelled {
		return ErrNotCancellable
	}

	a.Status = StatusCancelled
	a.UpdatedAt = now

	return nil
}

// RegisterInterest appends a lightweight interest entry. Uniqueness is by
// contact string and checked only against the interest list; the full
// registrations list is deliberately not consulted.
func (a *Auction) RegisterInterest(name, contact string, now time.Time) (InterestedBuyer, error) {
	name = strings.TrimSpace(name)
	contact = strings.TrimSpace(contact)

	if name == "" || contact == "" {
		return InterestedBuyer{}, ErrValidation
	}

	for _, b := range a.InterestedBuyers {
		if b.Contact == contact {
			return InterestedBuyer{}, ErrInterestExists
		}
	}

	buyer := InterestedBuyer{
		Name:         name,
		Contact:      contact,
		RegisteredAt: now,
	}

	a.InterestedBuyers = append(a.InterestedBuyers, buyer)
	a.UpdatedAt = now

	return buyer, nil
}

// LotResult is one recorded sale outcome, addressed by livestock line index.
type LotResult struct {
	Lot        int     `json:"lot" binding:"min=0"`
	FinalPrice float64 `json:"finalPrice" binding:"min=0"`
}

// RecordResults writes final sale prices onto livestock lines. Only valid
// once the auction is completed; this is the single writer of FinalPrice.
func (a *Auction) RecordResults(results []LotResult, now time.Time) error {
	if a.Status != StatusCompleted {
		return ErrResultsNotRecordable
	}

	for _, r := range results {
		if r.Lot < 0 || r.Lot >= len(a.Livestock) || r.FinalPrice < 0 {
			return ErrValidation
		}
	}

	for _, r := range results {
		a.Livestock[r.Lot].FinalPrice = r.FinalPrice
	}

	a.UpdatedAt = now

	return nil
}

// HasCategory reports whether any livestock line matches the category.
func (a *Auction) HasCategory(c Category) bool {
	for _, lot := range a.Livestock {
		if lot.Category == c {
			return true
		}
	}
	return false
}
