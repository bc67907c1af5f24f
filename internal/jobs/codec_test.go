package jobs

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/job"
)

func registrationPayload() RegistrationEmailPayload {
	return RegistrationEmailPayload{
		RegistrationID: "reg-1",
		AuctionID:      "auc-1",
		AuctionTitle:   "Spring Cattle Sale",
		AuctionDate:    time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		Location:       "Nakuru",
		Email:          "jane@example.com",
		Name:           "Jane Farmer",
		RequestedAt:    time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

func TestJobTypeIsValid(t *testing.T) {
	for _, typ := range []JobType{
		JobSendRegistrationConfirmation,
		JobSendRegistrationApproved,
		JobSendRegistrationRejected,
		JobSendAuctionCancelled,
	} {
		if !typ.IsValid() {
			t.Errorf("%s should be valid", typ)
		}
	}

	if JobType("registration.unknown").IsValid() {
		t.Error("unknown type must not be valid")
	}
}

func TestEncodePayloadTypeChecks(t *testing.T) {
	p := registrationPayload()

	b, err := EncodePayload(JobSendRegistrationConfirmation, p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !json.Valid(b) {
		t.Fatal("encoded payload is not valid JSON")
	}

	// pointer payloads are accepted too
	if _, err := EncodePayload(JobSendRegistrationApproved, &p); err != nil {
		t.Fatalf("encode pointer: %v", err)
	}

	// a cancellation payload may not ride a registration job type
	_, err = EncodePayload(JobSendRegistrationRejected, AuctionCancelledPayload{AuctionID: "auc-1"})
	if !errors.Is(err, ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}

	_, err = EncodePayload(JobType("nope"), p)
	if !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	p := registrationPayload()
	p.BidderNumber = "AB92DE"

	raw, err := EncodePayload(JobSendRegistrationApproved, p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodePayload(job.Job{Type: string(JobSendRegistrationApproved), Payload: raw})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, ok := decoded.(RegistrationEmailPayload)
	if !ok {
		t.Fatalf("decoded as %T", decoded)
	}
	if got.BidderNumber != "AB92DE" || got.Email != p.Email || !got.AuctionDate.Equal(p.AuctionDate) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	cp := AuctionCancelledPayload{
		AuctionID:    "auc-1",
		AuctionTitle: "Spring Cattle Sale",
		Email:        "jane@example.com",
		Name:         "Jane Farmer",
	}
	rawC, err := EncodePayload(JobSendAuctionCancelled, cp)
	if err != nil {
		t.Fatalf("encode cancelled: %v", err)
	}

	decodedC, err := DecodePayload(job.Job{Type: string(JobSendAuctionCancelled), Payload: rawC})
	if err != nil {
		t.Fatalf("decode cancelled: %v", err)
	}
	if _, ok := decodedC.(AuctionCancelledPayload); !ok {
		t.Fatalf("decoded as %T", decodedC)
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	if _, err := DecodePayload(job.Job{Type: "bogus", Payload: []byte(`{}`)}); !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}

	if _, err := DecodePayload(job.Job{Type: string(JobSendRegistrationConfirmation)}); !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload for empty payload, got %v", err)
	}

	_, err := DecodePayload(job.Job{Type: string(JobSendRegistrationConfirmation), Payload: []byte(`{not json`)})
	if !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload for malformed JSON, got %v", err)
	}
}

func TestValidatePayload(t *testing.T) {
	p := registrationPayload()

	if err := ValidatePayload(JobSendRegistrationConfirmation, p); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if err := ValidatePayload(JobSendRegistrationConfirmation, &p); err != nil {
		t.Fatalf("valid pointer payload rejected: %v", err)
	}

	missing := p
	missing.Email = "   "
	if err := ValidatePayload(JobSendRegistrationConfirmation, missing); !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload for blank email, got %v", err)
	}

	if err := ValidatePayload(JobSendAuctionCancelled, p); !errors.Is(err, ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}

	cp := AuctionCancelledPayload{AuctionID: "auc-1", Email: "jane@example.com"}
	if err := ValidatePayload(JobSendAuctionCancelled, cp); err != nil {
		t.Fatalf("valid cancellation payload rejected: %v", err)
	}
}
