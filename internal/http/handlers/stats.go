package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/farmhub/auctionhub/internal/activity"
	"github.com/farmhub/auctionhub/internal/cache"
	"github.com/farmhub/auctionhub/internal/config"
	"github.com/farmhub/auctionhub/internal/domain/auction"
	"github.com/farmhub/auctionhub/internal/reporting"
	"github.com/gin-gonic/gin"
)

type AuctionsReader interface {
	ListAll(ctx context.Context) ([]auction.Auction, error)
}

type ActivityReader interface {
	Recent(ctx context.Context, limit int, actions []string) ([]activity.Entry, error)
}

type StatsHandler struct {
	repo     AuctionsReader
	activity ActivityReader
	cache    *cache.Cache
}

func NewStatsHandler(repo AuctionsReader, activityRepo ActivityReader, c *cache.Cache) *StatsHandler {
	return &StatsHandler{
		repo:     repo,
		activity: activityRepo,
		cache:    c,
	}
}

const (
	statsCacheKey       = "stats:overview"
	performanceCacheKey = "stats:performance"
)

func (h *StatsHandler) Stats(ctx *gin.Context) {
	v, err := h.cache.Fetch(statsCacheKey, func() (any, error) {
		cctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()

		auctions, err := h.repo.ListAll(cctx)

		if err != nil {
			return nil, err
		}

		return reporting.ComputeStats(auctions, time.Now().UTC()), nil
	})

	if err != nil {
		RespondInternal(ctx, "Could not compute stats")
		return
	}

	ctx.JSON(http.StatusOK, v)
}

func (h *StatsHandler) Performance(ctx *gin.Context) {
	v, err := h.cache.Fetch(performanceCacheKey, func() (any, error) {
		cctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()

		auctions, err := h.repo.ListAll(cctx)

		if err != nil {
			return nil, err
		}

		return reporting.ComputePerformance(auctions, time.Now().UTC()), nil
	})

	if err != nil {
		RespondInternal(ctx, "Could not compute performance")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"months": v})
}

func (h *StatsHandler) RecentActivity(ctx *gin.Context) {
	limit := parsePositiveInt(ctx.Query("limit"), 20)

	if limit > 100 {
		limit = 100
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	entries, err := h.activity.Recent(cctx, limit, activity.AuctionActions)

	if err != nil {
		RespondInternal(ctx, "Could not load recent activity")
		return
	}

	type feedItem struct {
		activity.Entry
		Description string `json:"description"`
	}

	items := make([]feedItem, 0, len(entries))

	for _, e := range entries {
		items = append(items, feedItem{Entry: e, Description: activity.Describe(e.Action)})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}
