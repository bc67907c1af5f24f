package auction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/auction"
)

func upcomingAuction(now time.Time) auction.Auction {
	return auction.Auction{
		ID:     "a1",
		Title:  "Dairy Sale",
		Date:   now.Add(48 * time.Hour),
		Status: auction.StatusUpcoming,
		Livestock: []auction.LivestockLot{
			{Category: auction.CategoryDairy, Quantity: 10, StartingPrice: 1000},
			{Category: auction.CategoryGoats, Quantity: 5, StartingPrice: 200},
		},
	}
}

func registrationRequest(email string) auction.CreateRegistrationRequest {
	return auction.CreateRegistrationRequest{
		BuyerName:  "Jane Farmer",
		BuyerEmail: email,
		BuyerPhone: "+254711000000",
	}
}

func TestDeriveStatus(t *testing.T) {
	now := time.Now().UTC()

	a := upcomingAuction(now)
	a.Date = now.Add(-time.Hour)

	if changed := a.DeriveStatus(now); !changed {
		t.Fatal("expected a status change")
	}
	if a.Status != auction.StatusCompleted {
		t.Fatalf("expected completed, got %s", a.Status)
	}

	// idempotent: a second derivation is a no-op
	if changed := a.DeriveStatus(now); changed {
		t.Fatal("second derivation must not report a change")
	}

	// cancelled auctions are never resurrected
	c := upcomingAuction(now)
	c.Status = auction.StatusCancelled
	c.Date = now.Add(-time.Hour)

	if changed := c.DeriveStatus(now); changed {
		t.Fatal("cancelled auction must not change status")
	}

	// ongoing is left alone even past its date
	o := upcomingAuction(now)
	o.Status = auction.StatusOngoing
	o.Date = now.Add(-time.Hour)

	if changed := o.DeriveStatus(now); changed {
		t.Fatal("ongoing auction must not change status")
	}
}

func TestAddRegistration(t *testing.T) {
	now := time.Now().UTC()

	t.Run("success_with_defaults", func(t *testing.T) {
		a := upcomingAuction(now)

		reg, err := a.AddRegistration(registrationRequest("jane@example.com"), now)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reg.Status != auction.RegistrationPending {
			t.Fatalf("expected pending, got %s", reg.Status)
		}
		if reg.PaymentMethod != "cash" {
			t.Fatalf("expected default payment method cash, got %q", reg.PaymentMethod)
		}
		if reg.PaymentStatus != "pending" {
			t.Fatalf("expected payment status pending, got %q", reg.PaymentStatus)
		}
		if len(a.Registrations) != 1 {
			t.Fatalf("registration not appended, len=%d", len(a.Registrations))
		}
	})

	t.Run("duplicate_email", func(t *testing.T) {
		a := upcomingAuction(now)

		if _, err := a.AddRegistration(registrationRequest("jane@example.com"), now); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		_, err := a.AddRegistration(registrationRequest("jane@example.com"), now)

		if !errors.Is(err, auction.ErrAlreadyRegistered) {
			t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
		}
		if len(a.Registrations) != 1 {
			t.Fatalf("duplicate must not be appended, len=%d", len(a.Registrations))
		}
	})

	t.Run("closed_after_auction_date", func(t *testing.T) {
		a := upcomingAuction(now)
		a.Date = now.Add(-time.Minute)

		_, err := a.AddRegistration(registrationRequest("late@example.com"), now)

		if !errors.Is(err, auction.ErrRegistrationClosed) {
			t.Fatalf("expected ErrRegistrationClosed, got %v", err)
		}
	})

	t.Run("closed_after_deadline", func(t *testing.T) {
		a := upcomingAuction(now)
		deadline := now.Add(-time.Hour)
		a.RegistrationDeadline = &deadline

		_, err := a.AddRegistration(registrationRequest("late@example.com"), now)

		if !errors.Is(err, auction.ErrRegistrationClosed) {
			t.Fatalf("expected ErrRegistrationClosed, got %v", err)
		}
	})

	t.Run("missing_buyer_fields", func(t *testing.T) {
		a := upcomingAuction(now)

		req := registrationRequest("jane@example.com")
		req.BuyerPhone = "   "

		_, err := a.AddRegistration(req, now)

		if !errors.Is(err, auction.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestApproveAndRejectRegistration(t *testing.T) {
	now := time.Now().UTC()

	a := upcomingAuction(now)

	reg, err := a.AddRegistration(registrationRequest("jane@example.com"), now)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	approved, err := a.ApproveRegistration(reg.ID, "admin-1", now)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Status != auction.RegistrationApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if approved.ApprovedBy != "admin-1" || approved.ApprovedAt == nil {
		t.Fatal("approval audit fields not set")
	}

	// terminal: a decided registration cannot flip
	if _, err := a.RejectRegistration(reg.ID, "admin-1", "too late", now); !errors.Is(err, auction.ErrRegistrationDecided) {
		t.Fatalf("expected ErrRegistrationDecided, got %v", err)
	}
	if _, err := a.ApproveRegistration(reg.ID, "admin-2", now); !errors.Is(err, auction.ErrRegistrationDecided) {
		t.Fatalf("expected ErrRegistrationDecided on re-approval, got %v", err)
	}

	reg2, err := a.AddRegistration(registrationRequest("john@example.com"), now)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	rejected, err := a.RejectRegistration(reg2.ID, "admin-1", "incomplete details", now)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Status != auction.RegistrationRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if rejected.RejectionReason != "incomplete details" {
		t.Fatalf("reason not stored: %q", rejected.RejectionReason)
	}

	if _, err := a.ApproveRegistration("missing", "admin-1", now); !errors.Is(err, auction.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestRegisterInterest(t *testing.T) {
	now := time.Now().UTC()

	a := upcomingAuction(now)

	// a formal registration with the same contact must not block interest:
	// the two lists are independent
	if _, err := a.AddRegistration(registrationRequest("jane@example.com"), now); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := a.RegisterInterest("Jane Farmer", "jane@example.com", now); err != nil {
		t.Fatalf("interest blocked by registrations list: %v", err)
	}

	_, err := a.RegisterInterest("Jane Again", "jane@example.com", now)

	if !errors.Is(err, auction.ErrInterestExists) {
		t.Fatalf("expected ErrInterestExists, got %v", err)
	}

	if _, err := a.RegisterInterest(" ", "x@example.com", now); !errors.Is(err, auction.ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	now := time.Now().UTC()

	a := upcomingAuction(now)

	if err := a.Cancel(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != auction.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", a.Status)
	}

	if err := a.Cancel(now); !errors.Is(err, auction.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable on double cancel, got %v", err)
	}

	done := upcomingAuction(now)
	done.Status = auction.StatusCompleted

	if err := done.Cancel(now); !errors.Is(err, auction.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable for completed, got %v", err)
	}
}

func TestRecordResults(t *testing.T) {
	now := time.Now().UTC()

	a := upcomingAuction(now)

	err := a.RecordResults([]auction.LotResult{{Lot: 0, FinalPrice: 60000}}, now)

	if !errors.Is(err, auction.ErrResultsNotRecordable) {
		t.Fatalf("expected ErrResultsNotRecordable for upcoming auction, got %v", err)
	}

	a.Status = auction.StatusCompleted

	if err := a.RecordResults([]auction.LotResult{{Lot: 1, FinalPrice: 350}}, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Livestock[1].FinalPrice != 350 {
		t.Fatalf("final price not recorded: %v", a.Livestock[1].FinalPrice)
	}
	if a.Livestock[0].FinalPrice != 0 {
		t.Fatal("untouched lot must keep zero final price")
	}

	if err := a.RecordResults([]auction.LotResult{{Lot: 7, FinalPrice: 10}}, now); !errors.Is(err, auction.ErrValidation) {
		t.Fatalf("expected ErrValidation for out-of-range lot, got %v", err)
	}
}

func TestBidderNumber(t *testing.T) {
	if got := auction.BidderNumber("7c5fa2a1-9d1e-4a3f-a2c7-0f34c1ab92de"); got != "AB92DE" {
		t.Fatalf("got %q", got)
	}
	if got := auction.BidderNumber("ab1"); got != "AB1" {
		t.Fatalf("short ids are used whole, got %q", got)
	}
}
