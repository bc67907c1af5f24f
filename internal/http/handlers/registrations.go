package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"time"

	"github.com/farmhub/auctionhub/internal/activity"
	"github.com/farmhub/auctionhub/internal/config"
	"github.com/farmhub/auctionhub/internal/domain/auction"
	"github.com/farmhub/auctionhub/internal/domain/job"
	"github.com/farmhub/auctionhub/internal/http/middlewares"
	"github.com/farmhub/auctionhub/internal/jobs"
	"github.com/farmhub/auctionhub/internal/observability"
	"github.com/farmhub/auctionhub/internal/repo/postgres"
	"github.com/farmhub/auctionhub/internal/reporting"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

type RegistrationsStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	AddRegistrationTx(ctx context.Context, tx pgx.Tx, auctionID string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error)
	DecideRegistrationTx(ctx context.Context, tx pgx.Tx, registrationID string, d postgres.RegistrationDecision) (auction.Registration, auction.Auction, error)
	ListAll(ctx context.Context) ([]auction.Auction, error)
}

type JobsTxCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

// QueueNudger wakes the worker after an outbox row commits. Best effort;
// the worker's poll loop covers a lost nudge.
type QueueNudger interface {
	Nudge(ctx context.Context) error
}

type RegistrationsHandler struct {
	repo     RegistrationsStore
	jobsRepo JobsTxCreator
	nudge    QueueNudger
	audit    *activity.Logger
	prom     *observability.Prom
}

func NewRegistrationsHandler(repo RegistrationsStore, jobsRepo JobsTxCreator, nudge QueueNudger, audit *activity.Logger, prom *observability.Prom) *RegistrationsHandler {
	return &RegistrationsHandler{
		repo:     repo,
		jobsRepo: jobsRepo,
		nudge:    nudge,
		audit:    audit,
		prom:     prom,
	}
}

func (h *RegistrationsHandler) wakeWorker(ctx context.Context) {
	if h.nudge != nil {
		_ = h.nudge.Nudge(ctx)
	}
}

func (h *RegistrationsHandler) Register(ctx *gin.Context) {
	auctionID := ctx.Param("id")

	if !isUUID(auctionID) {
		RespondBadRequest(ctx, "auction id must be a valid UUID", nil)
		return
	}

	var req auction.CreateRegistrationRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// URL param is the source of truth
	req.AuctionID = auctionID

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.repo.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not register for auction")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	reg, a, err := h.repo.AddRegistrationTx(cctx, tx, auctionID, req)

	if err != nil {
		switch {
		case errors.Is(err, auction.ErrAlreadyRegistered):
			h.prom.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			RespondConflict(ctx, "already_registered", "This email is already registered for this auction.")
		case errors.Is(err, auction.ErrRegistrationClosed):
			h.prom.RegistrationsTotal.WithLabelValues("closed").Inc()
			RespondConflict(ctx, "registration_closed", "Registration for this auction has closed.")
		case errors.Is(err, auction.ErrNotFound):
			RespondNotFound(ctx, "Auction not found")
		case errors.Is(err, auction.ErrValidation):
			RespondBadRequest(ctx, err.Error(), nil)
		default:
			RespondInternal(ctx, "Could not register for auction")
		}
		return
	}

	payload := jobs.RegistrationEmailPayload{
		RegistrationID: reg.ID,
		AuctionID:      a.ID,
		AuctionTitle:   a.Title,
		AuctionDate:    a.Date,
		Location:       a.Location,
		Email:          reg.BuyerEmail,
		Name:           reg.BuyerName,
		RequestedAt:    time.Now().UTC(),
	}

	raw, err := payload.JSON()

	if err != nil {
		RespondInternal(ctx, "Could not register for auction")
		return
	}

	key := "registration:confirm:" + reg.ID

	_, err = h.jobsRepo.CreateTx(cctx, tx, job.CreateRequest{
		Type:           string(jobs.JobSendRegistrationConfirmation),
		Payload:        raw,
		RunAt:          time.Now().UTC(),
		MaxAttempts:    10,
		IdempotencyKey: &key,
	})

	if err != nil {
		// duplicate idempotency key inside the same tx is fine
		if !postgres.IsUniqueViolation(err) {
			RespondInternal(ctx, "Could not register for auction")
			return
		}
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not register for auction")
		return
	}

	h.prom.RegistrationsTotal.WithLabelValues("created").Inc()

	h.wakeWorker(ctx.Request.Context())

	h.logAction(ctx, activity.ActionRegistrationCreated, reg.ID, reg.BuyerName+" -> "+a.Title)

	ctx.JSON(http.StatusCreated, gin.H{
		"id":           reg.ID,
		"status":       reg.Status,
		"registeredAt": reg.RegisteredAt,
	})
}

func (h *RegistrationsHandler) Approve(ctx *gin.Context) {
	h.decide(ctx, true)
}

func (h *RegistrationsHandler) Reject(ctx *gin.Context) {
	h.decide(ctx, false)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

func (h *RegistrationsHandler) decide(ctx *gin.Context, approve bool) {
	regID := ctx.Param("registrationId")

	if !isUUID(regID) {
		RespondBadRequest(ctx, "registration id must be a valid UUID", nil)
		return
	}

	actor, ok := middlewares.ActorFromContext(ctx)

	if !ok || actor.ID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	reason := ""

	if !approve {
		var req rejectRequest

		// body is optional for rejections
		if ctx.Request.ContentLength > 0 {
			if !BindJSON(ctx, &req) {
				return
			}
		}

		reason = req.Reason

		if reason == "" {
			reason = "Your registration could not be approved."
		}
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.repo.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not update registration")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	reg, a, err := h.repo.DecideRegistrationTx(cctx, tx, regID, postgres.RegistrationDecision{
		Approve: approve,
		ActorID: actor.ID,
		Reason:  reason,
	})

	if err != nil {
		switch {
		case errors.Is(err, auction.ErrRegistrationNotFound):
			RespondNotFound(ctx, "Registration not found")
		case errors.Is(err, auction.ErrRegistrationDecided):
			RespondConflict(ctx, "registration_decided", "This registration has already been approved or rejected.")
		default:
			RespondInternal(ctx, "Could not update registration")
		}
		return
	}

	payload := jobs.RegistrationEmailPayload{
		RegistrationID: reg.ID,
		AuctionID:      a.ID,
		AuctionTitle:   a.Title,
		AuctionDate:    a.Date,
		Location:       a.Location,
		Email:          reg.BuyerEmail,
		Name:           reg.BuyerName,
		RequestedAt:    time.Now().UTC(),
	}

	jobType := jobs.JobSendRegistrationApproved
	action := activity.ActionRegistrationApproved
	outcome := "approved"

	if approve {
		payload.BidderNumber = auction.BidderNumber(reg.ID)
	} else {
		payload.Reason = reason
		jobType = jobs.JobSendRegistrationRejected
		action = activity.ActionRegistrationRejected
		outcome = "rejected"
	}

	raw, err := payload.JSON()

	if err != nil {
		RespondInternal(ctx, "Could not update registration")
		return
	}

	key := "registration:decision:" + reg.ID

	_, err = h.jobsRepo.CreateTx(cctx, tx, job.CreateRequest{
		Type:           string(jobType),
		Payload:        raw,
		RunAt:          time.Now().UTC(),
		MaxAttempts:    10,
		IdempotencyKey: &key,
		ActorID:        &actor.ID,
	})

	if err != nil {
		if !postgres.IsUniqueViolation(err) {
			RespondInternal(ctx, "Could not update registration")
			return
		}
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not update registration")
		return
	}

	h.prom.RegistrationsTotal.WithLabelValues(outcome).Inc()

	h.wakeWorker(ctx.Request.Context())

	h.logAction(ctx, action, reg.ID, reg.BuyerName+" -> "+a.Title)

	ctx.JSON(http.StatusOK, reg)
}

func (h *RegistrationsHandler) ListRegistrations(ctx *gin.Context) {
	f := reporting.RegistrationFilter{}

	if id := ctx.Query("auctionId"); id != "" {
		if !isUUID(id) {
			RespondBadRequest(ctx, "auctionId must be a valid UUID", nil)
			return
		}
		f.AuctionID = id
	}

	if s := ctx.Query("status"); s != "" {
		st := auction.RegistrationStatus(s)

		if !st.IsValid() {
			RespondBadRequest(ctx, "unknown registration status", gin.H{"status": s})
			return
		}

		f.Status = &st
	}

	limit := parsePositiveInt(ctx.Query("limit"), 20)
	page := parsePositiveInt(ctx.Query("page"), 1)
	offset := (page - 1) * limit

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	auctions, err := h.repo.ListAll(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list registrations")
		return
	}

	rows, counts := reporting.FlattenRegistrations(auctions, f)

	ctx.JSON(http.StatusOK, gin.H{
		"items":  reporting.Paginate(rows, offset, limit),
		"counts": counts,
		"total":  counts.Total,
		"page":   page,
	})
}

func (h *RegistrationsHandler) ExportRegistrations(ctx *gin.Context) {
	f := reporting.RegistrationFilter{}

	if id := ctx.Query("auctionId"); id != "" {
		if !isUUID(id) {
			RespondBadRequest(ctx, "auctionId must be a valid UUID", nil)
			return
		}
		f.AuctionID = id
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	auctions, err := h.repo.ListAll(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not export registrations")
		return
	}

	rows, _ := reporting.FlattenRegistrations(auctions, f)

	ctx.Header("Content-Type", "text/csv; charset=utf-8")
	ctx.Header("Content-Disposition", `attachment; filename="registrations.csv"`)
	ctx.Status(http.StatusOK)

	w := csv.NewWriter(ctx.Writer)

	_ = w.Write(reporting.CSVHeader)

	for _, row := range rows {
		_ = w.Write(reporting.CSVRecord(row))
	}

	w.Flush()
}

func (h *RegistrationsHandler) logAction(ctx *gin.Context, action, resourceID, details string) {
	actor, _ := middlewares.ActorFromContext(ctx)

	h.audit.Log(ctx.Request.Context(), activity.Entry{
		ActorID:    actor.ID,
		ActorName:  actor.Username,
		ActorRole:  actor.Role,
		Action:     action,
		Resource:   "registration",
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  ctx.ClientIP(),
		UserAgent:  ctx.Request.UserAgent(),
	})
}
