package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/farmhub/auctionhub/internal/domain/job"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	switch t {
	case JobSendRegistrationConfirmation, JobSendRegistrationApproved, JobSendRegistrationRejected:
		_, ok := payload.(RegistrationEmailPayload)

		if !ok {
			_, ok2 := payload.(*RegistrationEmailPayload)

			if !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}

	case JobSendAuctionCancelled:
		_, ok := payload.(AuctionCancelledPayload)

		if !ok {
			_, ok2 := payload.(*AuctionCancelledPayload)

			if !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}
	}

	b, err := json.Marshal(payload)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals job.Payload into the correct typed payload struct.
func DecodePayload(j job.Job) (any, error) {
	t := JobType(j.Type)

	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	switch t {
	case JobSendRegistrationConfirmation, JobSendRegistrationApproved, JobSendRegistrationRejected:
		var p RegistrationEmailPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobSendAuctionCancelled:
		var p AuctionCancelledPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	default:
		return nil, ErrInvalidJobType
	}
}

// ValidatePayload performs minimal validation on decoded payloads before a
// job is enqueued.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobSendRegistrationConfirmation, JobSendRegistrationApproved, JobSendRegistrationRejected:
		var p RegistrationEmailPayload
		switch v := payload.(type) {
		case RegistrationEmailPayload:
			p = v
		case *RegistrationEmailPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.RegistrationID) == "" || trim(p.AuctionID) == "" || trim(p.Email) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobSendAuctionCancelled:
		var p AuctionCancelledPayload
		switch v := payload.(type) {
		case AuctionCancelledPayload:
			p = v
		case *AuctionCancelledPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.AuctionID) == "" || trim(p.Email) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
