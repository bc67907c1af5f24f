package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/farmhub/auctionhub/internal/activity"
	"github.com/farmhub/auctionhub/internal/config"
	"github.com/farmhub/auctionhub/internal/domain/auction"
	"github.com/farmhub/auctionhub/internal/domain/job"
	"github.com/farmhub/auctionhub/internal/files"
	"github.com/farmhub/auctionhub/internal/http/middlewares"
	"github.com/farmhub/auctionhub/internal/jobs"
	"github.com/farmhub/auctionhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuctionsStore interface {
	Create(ctx context.Context, req auction.CreateAuctionRequest) (auction.Auction, error)
	GetByID(ctx context.Context, id string) (auction.Auction, error)
	Update(ctx context.Context, id string, req auction.UpdateAuctionRequest) (auction.Auction, *string, error)
	Cancel(ctx context.Context, id string) (auction.Auction, error)
	RecordResults(ctx context.Context, id string, results []auction.LotResult) (auction.Auction, error)
	RegisterInterest(ctx context.Context, id, name, contact string) (auction.InterestedBuyer, error)
	Delete(ctx context.Context, id string) (*string, error)
	List(ctx context.Context, f auction.ListFilter) ([]auction.Auction, int, error)
	Upcoming(ctx context.Context) ([]auction.Auction, error)
}

type JobsCreator interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

type AuctionsHandler struct {
	repo     AuctionsStore
	jobsRepo JobsCreator
	nudge    QueueNudger
	images   files.Store
	audit    *activity.Logger
	prom     *observability.Prom
}

func NewAuctionsHandler(repo AuctionsStore, jobsRepo JobsCreator, nudge QueueNudger, images files.Store, audit *activity.Logger, prom *observability.Prom) *AuctionsHandler {
	return &AuctionsHandler{
		repo:     repo,
		jobsRepo: jobsRepo,
		nudge:    nudge,
		images:   images,
		audit:    audit,
		prom:     prom,
	}
}

func isUUID(s string) bool {
	return uuid.Validate(s) == nil
}

func (h *AuctionsHandler) CreateAuction(ctx *gin.Context) {
	var req auction.CreateAuctionRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	a, err := h.repo.Create(cctx, req)

	if err != nil {
		if errors.Is(err, auction.ErrValidation) {
			RespondBadRequest(ctx, err.Error(), nil)
			return
		}

		RespondInternal(ctx, "Could not create auction")
		return
	}

	h.logAction(ctx, activity.ActionAuctionCreated, a.ID, a.Title)

	ctx.JSON(http.StatusCreated, a)
}

func (h *AuctionsHandler) ListAuctions(ctx *gin.Context) {
	f := auction.ListFilter{
		Limit:  parsePositiveInt(ctx.Query("limit"), 10),
		Offset: 0,
	}

	page := parsePositiveInt(ctx.Query("page"), 1)

	if page > 1 {
		f.Offset = (page - 1) * f.Limit
	}

	if c := ctx.Query("category"); c != "" {
		cat := auction.Category(c)

		if !cat.IsValid() {
			RespondBadRequest(ctx, "unknown livestock category", gin.H{"category": c})
			return
		}

		f.Category = &cat
	}

	if loc := ctx.Query("location"); loc != "" {
		f.Location = &loc
	}

	if s := ctx.Query("status"); s != "" {
		st := auction.Status(s)

		if !st.IsValid() {
			RespondBadRequest(ctx, "unknown auction status", gin.H{"status": s})
			return
		}

		f.Status = &st
	}

	// unpublished auctions are admin-only
	if role, _ := middlewares.RoleFromContext(ctx); role == "admin" {
		f.IncludeHidden = ctx.Query("includeHidden") == "true"
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, total, err := h.repo.List(cctx, f)

	if err != nil {
		RespondInternal(ctx, "Could not list auctions")
		return
	}

	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":      items,
		"count":      len(items),
		"total":      total,
		"page":       page,
		"totalPages": pages,
	})
}

func (h *AuctionsHandler) UpcomingAuctions(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, err := h.repo.Upcoming(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list upcoming auctions")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *AuctionsHandler) AuctionsByCategory(ctx *gin.Context) {
	cat := auction.Category(ctx.Param("category"))

	if !cat.IsValid() {
		RespondBadRequest(ctx, "unknown livestock category", gin.H{"category": string(cat)})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, total, err := h.repo.List(cctx, auction.ListFilter{Category: &cat, Limit: 50})

	if err != nil {
		RespondInternal(ctx, "Could not list auctions")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
		"total": total,
	})
}

func (h *AuctionsHandler) GetAuctionByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !isUUID(id) {
		RespondBadRequest(ctx, "auction id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	a, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, auction.ErrNotFound) {
			RespondNotFound(ctx, "Auction not found")
			return
		}

		RespondInternal(ctx, "Could not fetch auction")
		return
	}

	ctx.JSON(http.StatusOK, a)
}

func (h *AuctionsHandler) UpdateAuction(ctx *gin.Context) {
	id := ctx.Param("id")

	if !isUUID(id) {
		RespondBadRequest(ctx, "auction id must be a valid UUID", nil)
		return
	}

	var req auction.UpdateAuctionRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	a, replacedImage, err := h.repo.Update(cctx, id, req)

	if err != nil {
		switch {
		case errors.Is(err, auction.ErrNotFound):
			RespondNotFound(ctx, "Auction not found")
		case errors.Is(err, auction.ErrValidation):
			RespondBadRequest(ctx, err.Error(), nil)
		default:
			RespondInternal(ctx, "Could not update auction")
		}
		return
	}

	// replaced image is removed best-effort, after the write committed
	files.CleanupImage(ctx.Request.Context(), h.images, nil, replacedImage)

	h.logAction(ctx, activity.ActionAuctionUpdated, a.ID, a.Title)

	ctx.JSON(http.StatusOK, a)
}

func (h *AuctionsHandler) DeleteAuction(ctx *gin.Context) {
	id := ctx.Param("id")

	if !isUUID(id) {
		RespondBadRequest(ctx, "auction id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	imageRef, err := h.repo.Delete(cctx, id)

	if err != nil {
		if errors.Is(err, auction.ErrNotFound) {
			RespondNotFound(ctx, "Auction not found")
			return
		}

		RespondInternal(ctx, "Could not delete auction")
		return
	}

	files.CleanupImage(ctx.Request.Context(), h.images, nil, imageRef)

	h.logAction(ctx, activity.ActionAuctionDeleted, id, "")

	ctx.Status(http.StatusNoContent)
}

func (h *AuctionsHandler) CancelAuction(ctx *gin.Context) {
	id := ctx.Param("id")

	if !isUUID(id) {
		RespondBadRequest(ctx, "auction id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	a, err := h.repo.Cancel(cctx, id)

	if err != nil {
		switch {
		case errors.Is(err, auction.ErrNotFound):
			RespondNotFound(ctx, "Auction not found")
		case errors.Is(err, auction.ErrNotCancellable):
			RespondConflict(ctx, "not_cancellable", "Completed or cancelled auctions cannot be cancelled.")
		default:
			RespondInternal(ctx, "Could not cancel auction")
		}
		return
	}

	h.enqueueCancellationEmails(cctx, a)

	if h.nudge != nil {
		_ = h.nudge.Nudge(ctx.Request.Context())
	}

	h.logAction(ctx, activity.ActionAuctionCancelled, a.ID, a.Title)

	ctx.JSON(http.StatusOK, a)
}

// enqueueCancellationEmails notifies every buyer whose registration was not
// rejected. Enqueue failures are swallowed: cancellation already committed
// and the idempotency key lets a retry pick the email up later.
func (h *AuctionsHandler) enqueueCancellationEmails(ctx context.Context, a auction.Auction) {
	for _, reg := range a.Registrations {
		if reg.Status == auction.RegistrationRejected {
			continue
		}

		payload := jobs.AuctionCancelledPayload{
			AuctionID:    a.ID,
			AuctionTitle: a.Title,
			AuctionDate:  a.Date,
			Email:        reg.BuyerEmail,
			Name:         reg.BuyerName,
			RequestedAt:  time.Now().UTC(),
		}

		raw, err := payload.JSON()

		if err != nil {
			continue
		}

		key := "auction:cancelled:" + a.ID + ":" + reg.ID

		_, err = h.jobsRepo.Create(ctx, job.CreateRequest{
			Type:           string(jobs.JobSendAuctionCancelled),
			Payload:        raw,
			RunAt:          time.Now().UTC(),
			MaxAttempts:    10,
			IdempotencyKey: &key,
		})

		if err != nil {
			h.prom.EmailsTotal.WithLabelValues(string(jobs.JobSendAuctionCancelled), "enqueue_failed").Inc()
		}
	}
}

type resultsRequest struct {
	Results []auction.LotResult `json:"results" binding:"required,min=1,dive"`
}

func (h *AuctionsHandler) RecordResults(ctx *gin.Context) {
	id := ctx.Param("id")

	if !isUUID(id) {
		RespondBadRequest(ctx, "auction id must be a valid UUID", nil)
		return
	}

	var req resultsRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	a, err := h.repo.RecordResults(cctx, id, req.Results)

	if err != nil {
		switch {
		case errors.Is(err, auction.ErrNotFound):
			RespondNotFound(ctx, "Auction not found")
		case errors.Is(err, auction.ErrResultsNotRecordable):
			RespondConflict(ctx, "results_not_recordable", "Sale results can only be recorded on completed auctions.")
		case errors.Is(err, auction.ErrValidation):
			RespondBadRequest(ctx, err.Error(), nil)
		default:
			RespondInternal(ctx, "Could not record auction results")
		}
		return
	}

	h.logAction(ctx, activity.ActionAuctionResultsRecorded, a.ID, a.Title)

	ctx.JSON(http.StatusOK, a)
}

type interestRequest struct {
	Name    string `json:"name" binding:"required,min=2,max=120"`
	Contact string `json:"contact" binding:"required,min=3,max=200"`
}

func (h *AuctionsHandler) RegisterInterest(ctx *gin.Context) {
	id := ctx.Param("id")

	if !isUUID(id) {
		RespondBadRequest(ctx, "auction id must be a valid UUID", nil)
		return
	}

	var req interestRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	buyer, err := h.repo.RegisterInterest(cctx, id, req.Name, req.Contact)

	if err != nil {
		switch {
		case errors.Is(err, auction.ErrNotFound):
			RespondNotFound(ctx, "Auction not found")
		case errors.Is(err, auction.ErrInterestExists):
			RespondConflict(ctx, "interest_exists", "This contact has already registered interest.")
		default:
			RespondInternal(ctx, "Could not register interest")
		}
		return
	}

	h.logAction(ctx, activity.ActionInterestRegistered, id, buyer.Name)

	ctx.JSON(http.StatusCreated, buyer)
}

func (h *AuctionsHandler) logAction(ctx *gin.Context, action, resourceID, details string) {
	actor, _ := middlewares.ActorFromContext(ctx)

	h.audit.Log(ctx.Request.Context(), activity.Entry{
		ActorID:    actor.ID,
		ActorName:  actor.Username,
		ActorRole:  actor.Role,
		Action:     action,
		Resource:   "auction",
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  ctx.ClientIP(),
		UserAgent:  ctx.Request.UserAgent(),
	})
}

func parsePositiveInt(s string, def int) int {
	if s == "" {
		return def
	}

	n, err := strconv.Atoi(s)

	if err != nil || n <= 0 {
		return def
	}

	return n
}
