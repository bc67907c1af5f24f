package reporting

import (
	"sort"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/auction"
)

// RegistrationRow is one flattened registration annotated with its parent
// auction's summary fields.
type RegistrationRow struct {
	ID                  string                     `json:"id"`
	AuctionID           string                     `json:"auctionId"`
	AuctionTitle        string                     `json:"auctionTitle"`
	AuctionDate         time.Time                  `json:"auctionDate"`
	AuctionLocation     string                     `json:"auctionLocation"`
	RegistrationFee     float64                    `json:"registrationFee"`
	BuyerName           string                     `json:"buyerName"`
	BuyerEmail          string                     `json:"buyerEmail"`
	BuyerPhone          string                     `json:"buyerPhone"`
	BuyerCompany        string                     `json:"buyerCompany,omitempty"`
	SpecialRequirements string                     `json:"specialRequirements,omitempty"`
	PaymentMethod       string                     `json:"paymentMethod"`
	PaymentStatus       string                     `json:"paymentStatus"`
	Status              auction.RegistrationStatus `json:"status"`
	RegisteredAt        time.Time                  `json:"registeredAt"`
}

// RegistrationCounts aggregates outcomes over the full (unpaginated)
// flattened list.
type RegistrationCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

type RegistrationFilter struct {
	AuctionID string
	Status    *auction.RegistrationStatus
}

// FlattenRegistrations assembles the admin registration view in memory:
// registrations across all matching auctions, newest first.
func FlattenRegistrations(auctions []auction.Auction, f RegistrationFilter) ([]RegistrationRow, RegistrationCounts) {
	rows := make([]RegistrationRow, 0)
	var counts RegistrationCounts

	for _, a := range auctions {
		if f.AuctionID != "" && a.ID != f.AuctionID {
			continue
		}

		for _, reg := range a.Registrations {
			counts.Total++

			switch reg.Status {
			case auction.RegistrationPending:
				counts.Pending++
			case auction.RegistrationApproved:
				counts.Approved++
			case auction.RegistrationRejected:
				counts.Rejected++
			}

			if f.Status != nil && reg.Status != *f.Status {
				continue
			}

			rows = append(rows, RegistrationRow{
				ID:                  reg.ID,
				AuctionID:           a.ID,
				AuctionTitle:        a.Title,
				AuctionDate:         a.Date,
				AuctionLocation:     a.Location,
				RegistrationFee:     a.RegistrationFee,
				BuyerName:           reg.BuyerName,
				BuyerEmail:          reg.BuyerEmail,
				BuyerPhone:          reg.BuyerPhone,
				BuyerCompany:        reg.BuyerCompany,
				SpecialRequirements: reg.SpecialRequirements,
				PaymentMethod:       reg.PaymentMethod,
				PaymentStatus:       reg.PaymentStatus,
				Status:              reg.Status,
				RegisteredAt:        reg.RegisteredAt,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RegisteredAt.Equal(rows[j].RegisteredAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].RegisteredAt.After(rows[j].RegisteredAt)
	})

	return rows, counts
}

// Paginate slices the flattened list; offset past the end yields an empty
// page, never an error.
func Paginate(rows []RegistrationRow, offset, limit int) []RegistrationRow {
	if offset >= len(rows) {
		return []RegistrationRow{}
	}

	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}

	return rows[offset:end]
}

// CSVHeader is the fixed export column order.
var CSVHeader = []string{
	"Auction Title", "Auction Date", "Location",
	"Buyer Name", "Email", "Phone", "Company",
	"Status", "Registered Date", "Payment Method", "Payment Status",
	"Special Requirements",
}

// CSVRecord renders one export line. Actual quoting and escaping is left
// to encoding/csv, which handles embedded quotes and newlines per RFC 4180.
func CSVRecord(row RegistrationRow) []string {
	return []string{
		row.AuctionTitle,
		row.AuctionDate.Format("2006-01-02"),
		row.AuctionLocation,
		row.BuyerName,
		row.BuyerEmail,
		row.BuyerPhone,
		row.BuyerCompany,
		string(row.Status),
		row.RegisteredAt.Format("2006-01-02"),
		row.PaymentMethod,
		row.PaymentStatus,
		row.SpecialRequirements,
	}
}
