package reporting

import (
	"sort"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/auction"
)

// Stats is the dashboard headline view, computed in memory over the full
// auction collection.
type Stats struct {
	TotalAuctions      int     `json:"totalAuctions"`
	ActiveAuctions     int     `json:"activeAuctions"`
	UpcomingAuctions   int     `json:"upcomingAuctions"`
	CompletedAuctions  int     `json:"completedAuctions"`
	CancelledAuctions  int     `json:"cancelledAuctions"`
	TotalRegistrations int     `json:"totalRegistrations"`
	TotalRevenue       float64 `json:"totalRevenue"`
}

func ComputeStats(auctions []auction.Auction, now time.Time) Stats {
	var s Stats

	s.TotalAuctions = len(auctions)

	for _, a := range auctions {
		future := a.Date.After(now)

		if future && a.Status == auction.StatusUpcoming {
			s.ActiveAuctions++
		}
		if future {
			s.UpcomingAuctions++
		}

		switch a.Status {
		case auction.StatusCompleted:
			s.CompletedAuctions++
		case auction.StatusCancelled:
			s.CancelledAuctions++
		}

		s.TotalRegistrations += len(a.Registrations)

		for _, lot := range a.Livestock {
			s.TotalRevenue += lot.FinalPrice
		}
	}

	return s
}

// MonthPerformance is one row of the six-month trend, keyed by creation
// month (YYYY-MM).
type MonthPerformance struct {
	Label         string  `json:"month"`
	Auctions      int     `json:"auctions"`
	Revenue       float64 `json:"revenue"`
	Registrations int     `json:"registrations"`
	Approved      int     `json:"approved"`
}

// ComputePerformance groups auctions created in the last six months by
// creation month, oldest first.
func ComputePerformance(auctions []auction.Auction, now time.Time) []MonthPerformance {
	cutoff := now.AddDate(0, -6, 0)

	byMonth := make(map[string]*MonthPerformance)

	for _, a := range auctions {
		if a.CreatedAt.Before(cutoff) {
			continue
		}

		label := a.CreatedAt.Format("2006-01")

		row, ok := byMonth[label]
		if !ok {
			row = &MonthPerformance{Label: label}
			byMonth[label] = row
		}

		row.Auctions++
		row.Registrations += len(a.Registrations)

		for _, reg := range a.Registrations {
			if reg.Status == auction.RegistrationApproved {
				row.Approved++
			}
		}

		for _, lot := range a.Livestock {
			row.Revenue += lot.FinalPrice
		}
	}

	out := make([]MonthPerformance, 0, len(byMonth))
	for _, row := range byMonth {
		out = append(out, *row)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })

	return out
}
