package auction

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

func (s RegistrationStatus) IsValid() bool {
	switch s {
	case RegistrationPending, RegistrationApproved, RegistrationRejected:
		return true
	default:
		return false
	}
}

// Registration is a buyer's formal application to bid, owned entirely by
// its parent auction. It has no query path of its own.
type Registration struct {
	ID                  string             `json:"id"`
	BuyerName           string             `json:"buyerName"`
	BuyerEmail          string             `json:"buyerEmail"`
	BuyerPhone          string             `json:"buyerPhone"`
	BuyerCompany        string             `json:"buyerCompany,omitempty"`
	SpecialRequirements string             `json:"specialRequirements,omitempty"`
	PaymentMethod       string             `json:"paymentMethod"`
	Status              RegistrationStatus `json:"status"`
	PaymentStatus       string             `json:"paymentStatus"`
	RegisteredAt        time.Time          `json:"registeredAt"`
	ApprovedAt          *time.Time         `json:"approvedAt,omitempty"`
	ApprovedBy          string             `json:"approvedBy,omitempty"`
	RejectedAt          *time.Time         `json:"rejectedAt,omitempty"`
	RejectedBy          string             `json:"rejectedBy,omitempty"`
	RejectionReason     string             `json:"rejectionReason,omitempty"`
}

type CreateRegistrationRequest struct {
	AuctionID           string `json:"-"`
	BuyerName           string `json:"buyerName" binding:"required,min=2,max=120"`
	BuyerEmail          string `json:"buyerEmail" binding:"required,email"`
	BuyerPhone          string `json:"buyerPhone" binding:"required,min=5,max=40"`
	BuyerCompany        string `json:"buyerCompany" binding:"omitempty,max=200"`
	SpecialRequirements string `json:"specialRequirements" binding:"omitempty,max=1000"`
	PaymentMethod       string `json:"paymentMethod" binding:"omitempty,max=40"`
}

// AddRegistration enforces the registration window (auction date is the
// hard cutoff even without an explicit deadline) and buyer-email
// uniqueness, then appends a pending registration.
func (a *Auction) AddRegistration(req CreateRegistrationRequest, now time.Time) (Registration, error) {
	if strings.TrimSpace(req.BuyerName) == "" ||
		strings.TrimSpace(req.BuyerEmail) == "" ||
		strings.TrimSpace(req.BuyerPhone) == "" {
		return Registration{}, ErrValidation
	}

	if !a.Date.After(now) {
		return Registration{}, ErrRegistrationClosed
	}

	if a.RegistrationDeadline != nil && a.RegistrationDeadline.Before(now) {
		return Registration{}, ErrRegistrationClosed
	}

	for _, r := range a.Registrations {
		if r.BuyerEmail == req.BuyerEmail {
			return Registration{}, ErrAlreadyRegistered
		}
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = "cash"
	}

	reg := Registration{
		ID:                  uuid.NewString(),
		BuyerName:           req.BuyerName,
		BuyerEmail:          req.BuyerEmail,
		BuyerPhone:          req.BuyerPhone,
		BuyerCompany:        req.BuyerCompany,
		SpecialRequirements: req.SpecialRequirements,
		PaymentMethod:       method,
		Status:              RegistrationPending,
		PaymentStatus:       "pending",
		RegisteredAt:        now,
	}

	a.Registrations = append(a.Registrations, reg)
	a.UpdatedAt = now

	return reg, nil
}

// FindRegistration returns a pointer into the registrations slice so
// transition methods can mutate in place.
func (a *Auction) FindRegistration(id string) (*Registration, bool) {
	for i := range a.Registrations {
		if a.Registrations[i].ID == id {
			return &a.Registrations[i], true
		}
	}
	return nil, false
}

// ApproveRegistration moves a pending registration to approved. Approved
// and rejected are terminal, so a decided registration is never touched
// again.
func (a *Auction) ApproveRegistration(id, actorID string, now time.Time) (*Registration, error) {
	reg, ok := a.FindRegistration(id)
	if !ok {
		return nil, ErrRegistrationNotFound
	}

	if reg.Status != RegistrationPending {
		return nil, ErrRegistrationDecided
	}

	reg.Status = RegistrationApproved
	reg.ApprovedAt = &now
	reg.ApprovedBy = actorID
	a.UpdatedAt = now

	return reg, nil
}

// RejectRegistration moves a pending registration to rejected with an
// optional reason.
func (a *Auction) RejectRegistration(id, actorID, reason string, now time.Time) (*Registration, error) {
	reg, ok := a.FindRegistration(id)
	if !ok {
		return nil, ErrRegistrationNotFound
	}

	if reg.Status != RegistrationPending {
		return nil, ErrRegistrationDecided
	}

	reg.Status = RegistrationRejected
	reg.RejectedAt = &now
	reg.RejectedBy = actorID
	reg.RejectionReason = reason
	a.UpdatedAt = now

	return reg, nil
}

// BidderNumber derives the human-readable bidder number handed to approved
// buyers: the last six characters of the registration id, uppercased.
func BidderNumber(registrationID string) string {
	id := registrationID
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return strings.ToUpper(id)
}
