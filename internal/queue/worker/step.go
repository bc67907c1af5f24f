package worker

import (
	"context"
	"errors"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/job"
	"github.com/farmhub/auctionhub/internal/jobs"
	"github.com/farmhub/auctionhub/internal/notifications"
)

// ProcessOne claims and executes a single job. The bool reports whether a
// job was claimed at all.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	w.prom.JobsInFlight.Inc()
	start := time.Now()

	err = w.execute(ctx, j)

	elapsed := time.Since(start).Seconds()
	w.prom.JobsInFlight.Dec()

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.prom.JobDuration.WithLabelValues(j.Type, result).Observe(elapsed)
		w.prom.JobResults.WithLabelValues(j.Type, result).Inc()
		return true, nil
	}

	w.prom.JobDuration.WithLabelValues(j.Type, "done").Observe(elapsed)
	w.prom.JobResults.WithLabelValues(j.Type, "done").Inc()

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	return true, nil
}

// handleFailure decides between retry and terminal failure. Returns the
// metric result label.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, execErr error) string {
	// Attempts was already bumped by the claim
	if j.Attempts >= j.MaxAttempts {
		w.log.Error("job failed permanently",
			"job_id", j.ID,
			"job_type", j.Type,
			"attempts", j.Attempts,
			"err", execErr,
		)

		_ = w.repo.MarkFailed(ctx, j.ID, execErr.Error())
		return "failed"
	}

	delay := ExponentialBackoff(j.Attempts)

	w.log.Warn("job failed, rescheduling",
		"job_id", j.ID,
		"job_type", j.Type,
		"attempts", j.Attempts,
		"retry_in", delay.String(),
		"err", execErr,
	)

	_ = w.repo.Reschedule(ctx, j.ID, time.Now().UTC().Add(delay), execErr.Error())
	return "retry"
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)

	if err != nil {
		return err
	}

	email, err := buildEmail(jobs.JobType(j.Type), payload)

	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err = w.mailer.Send(sendCtx, email)

	if err != nil {
		w.prom.EmailsTotal.WithLabelValues(email.Template, "error").Inc()
		return err
	}

	w.prom.EmailsTotal.WithLabelValues(email.Template, "sent").Inc()
	return nil
}

func buildEmail(t jobs.JobType, payload any) (notifications.Email, error) {
	switch t {
	case jobs.JobSendRegistrationConfirmation:
		p, ok := payload.(jobs.RegistrationEmailPayload)
		if !ok {
			return notifications.Email{}, jobs.ErrPayloadTypeMismatch
		}

		return notifications.Email{
			To:       p.Email,
			Subject:  "Registration received: " + p.AuctionTitle,
			Template: "registration_confirmation",
			Data: map[string]any{
				"name":        p.Name,
				"auction":     p.AuctionTitle,
				"auctionDate": p.AuctionDate,
				"location":    p.Location,
			},
		}, nil

	case jobs.JobSendRegistrationApproved:
		p, ok := payload.(jobs.RegistrationEmailPayload)
		if !ok {
			return notifications.Email{}, jobs.ErrPayloadTypeMismatch
		}

		return notifications.Email{
			To:       p.Email,
			Subject:  "Registration approved: " + p.AuctionTitle,
			Template: "registration_approved",
			Data: map[string]any{
				"name":         p.Name,
				"auction":      p.AuctionTitle,
				"auctionDate":  p.AuctionDate,
				"location":     p.Location,
				"bidderNumber": p.BidderNumber,
			},
		}, nil

	case jobs.JobSendRegistrationRejected:
		p, ok := payload.(jobs.RegistrationEmailPayload)
		if !ok {
			return notifications.Email{}, jobs.ErrPayloadTypeMismatch
		}

		return notifications.Email{
			To:       p.Email,
			Subject:  "Registration update: " + p.AuctionTitle,
			Template: "registration_rejected",
			Data: map[string]any{
				"name":    p.Name,
				"auction": p.AuctionTitle,
				"reason":  p.Reason,
			},
		}, nil

	case jobs.JobSendAuctionCancelled:
		p, ok := payload.(jobs.AuctionCancelledPayload)
		if !ok {
			return notifications.Email{}, jobs.ErrPayloadTypeMismatch
		}

		return notifications.Email{
			To:       p.Email,
			Subject:  "Auction cancelled: " + p.AuctionTitle,
			Template: "auction_cancelled",
			Data: map[string]any{
				"name":        p.Name,
				"auction":     p.AuctionTitle,
				"auctionDate": p.AuctionDate,
			},
		}, nil

	default:
		return notifications.Email{}, jobs.ErrInvalidJobType
	}
}
