package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/auction"
	"github.com/farmhub/auctionhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuctionsRepo persists the auction aggregate as a single row. The
// embedded registrations and interested-buyers lists live in jsonb
// columns, so every sub-entity mutation is a read-modify-write of the
// whole aggregate under a row lock.
type AuctionsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAuctionsRepo(pool *pgxpool.Pool, prom *observability.Prom) *AuctionsRepo {
	return &AuctionsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *AuctionsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const auctionColumns = `id, title, description, location, date, start_time, end_time,
	livestock, auctioneer, registration_required, registration_deadline,
	registration_fee, terms, status, image_ref, published, views,
	interested_buyers, registrations, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (auction.Auction, error) {
	var a auction.Auction
	var livestock, auctioneer, interested, registrations []byte
	var status string

	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.Location, &a.Date, &a.StartTime, &a.EndTime,
		&livestock, &auctioneer, &a.RegistrationRequired, &a.RegistrationDeadline,
		&a.RegistrationFee, &a.Terms, &status, &a.ImageRef, &a.Published, &a.Views,
		&interested, &registrations, &a.CreatedAt, &a.UpdatedAt,
	)

	if err != nil {
		return auction.Auction{}, err
	}

	a.Status = auction.Status(status)

	if err := json.Unmarshal(livestock, &a.Livestock); err != nil {
		return auction.Auction{}, err
	}
	if err := json.Unmarshal(auctioneer, &a.Auctioneer); err != nil {
		return auction.Auction{}, err
	}
	if err := json.Unmarshal(interested, &a.InterestedBuyers); err != nil {
		return auction.Auction{}, err
	}
	if err := json.Unmarshal(registrations, &a.Registrations); err != nil {
		return auction.Auction{}, err
	}

	return a, nil
}

func marshalEmbedded(a auction.Auction) (livestock, auctioneer, interested, registrations []byte, err error) {
	if livestock, err = json.Marshal(a.Livestock); err != nil {
		return
	}
	if auctioneer, err = json.Marshal(a.Auctioneer); err != nil {
		return
	}
	if interested, err = json.Marshal(a.InterestedBuyers); err != nil {
		return
	}
	registrations, err = json.Marshal(a.Registrations)
	return
}

func (r *AuctionsRepo) Create(ctx context.Context, req auction.CreateAuctionRequest) (auction.Auction, error) {
	a, err := auction.NewFromCreateRequest(req, time.Now().UTC())

	if err != nil {
		return auction.Auction{}, err
	}

	livestock, auctioneer, interested, registrations, err := marshalEmbedded(a)
	if err != nil {
		return auction.Auction{}, err
	}

	err = r.observe("auctions.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO auctions (`+auctionColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
			a.ID, a.Title, a.Description, a.Location, a.Date, a.StartTime, a.EndTime,
			livestock, auctioneer, a.RegistrationRequired, a.RegistrationDeadline,
			a.RegistrationFee, a.Terms, string(a.Status), a.ImageRef, a.Published, a.Views,
			interested, registrations, a.CreatedAt, a.UpdatedAt,
		)
		return e
	})

	if err != nil {
		return auction.Auction{}, err
	}

	return a, nil
}

// save writes the whole aggregate back inside the caller's transaction.
func (r *AuctionsRepo) save(ctx context.Context, tx pgx.Tx, a auction.Auction) error {
	livestock, auctioneer, interested, registrations, err := marshalEmbedded(a)
	if err != nil {
		return err
	}

	return r.observe("auctions.save", func() error {
		tag, e := tx.Exec(ctx,
			`UPDATE auctions
			 SET title = $2,
			     description = $3,
			     location = $4,
			     date = $5,
			     start_time = $6,
			     end_time = $7,
			     livestock = $8,
			     auctioneer = $9,
			     registration_required = $10,
			     registration_deadline = $11,
			     registration_fee = $12,
			     terms = $13,
			     status = $14,
			     image_ref = $15,
			     published = $16,
			     views = $17,
			     interested_buyers = $18,
			     registrations = $19,
			     updated_at = $20
			 WHERE id = $1`,
			a.ID, a.Title, a.Description, a.Location, a.Date, a.StartTime, a.EndTime,
			livestock, auctioneer, a.RegistrationRequired, a.RegistrationDeadline,
			a.RegistrationFee, a.Terms, string(a.Status), a.ImageRef, a.Published, a.Views,
			interested, registrations, a.UpdatedAt,
		)
		if e != nil {
			return e
		}
		if tag.RowsAffected() == 0 {
			return auction.ErrNotFound
		}
		return nil
	})
}

func (r *AuctionsRepo) getForUpdate(ctx context.Context, tx pgx.Tx, id string) (auction.Auction, error) {
	var a auction.Auction
	var err error

	err = r.observe("auctions.get_for_update", func() error {
		row := tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id)
		a, err = scanAuction(row)
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auction.Auction{}, auction.ErrNotFound
		}
		return auction.Auction{}, err
	}

	return a, nil
}

func (r *AuctionsRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

// GetByID increments the view counter and applies the lazy status rule,
// writing both back so subsequent reads reflect reality.
func (r *AuctionsRepo) GetByID(ctx context.Context, id string) (a auction.Auction, err error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return
	}

	defer func() { _ = tx.Rollback(ctx) }()

	a, err = r.getForUpdate(ctx, tx, id)
	if err != nil {
		return
	}

	now := time.Now().UTC()

	a.Views++
	a.DeriveStatus(now)
	a.UpdatedAt = now

	if err = r.save(ctx, tx, a); err != nil {
		return
	}

	err = tx.Commit(ctx)
	return
}

// mutate runs fn against the locked aggregate and persists the result,
// applying the status derivation rule before the write.
func (r *AuctionsRepo) mutate(ctx context.Context, id string, fn func(a *auction.Auction, now time.Time) error) (auction.Auction, error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return auction.Auction{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	a, err := r.getForUpdate(ctx, tx, id)
	if err != nil {
		return auction.Auction{}, err
	}

	now := time.Now().UTC()
	a.DeriveStatus(now)

	if err := fn(&a, now); err != nil {
		return auction.Auction{}, err
	}

	a.DeriveStatus(now)

	if err := r.save(ctx, tx, a); err != nil {
		return auction.Auction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return auction.Auction{}, err
	}

	return a, nil
}

// Update applies a partial update. When the request swaps the image, the
// previous reference is returned so the caller can clean up the old file.
func (r *AuctionsRepo) Update(ctx context.Context, id string, req auction.UpdateAuctionRequest) (auction.Auction, *string, error) {
	var replaced *string

	a, err := r.mutate(ctx, id, func(a *auction.Auction, now time.Time) error {
		if req.ImageRef != nil && a.ImageRef != nil && *a.ImageRef != *req.ImageRef {
			old := *a.ImageRef
			replaced = &old
		}
		return a.ApplyUpdate(req, now)
	})

	if err != nil {
		return auction.Auction{}, nil, err
	}

	return a, replaced, nil
}

func (r *AuctionsRepo) Cancel(ctx context.Context, id string) (auction.Auction, error) {
	return r.mutate(ctx, id, func(a *auction.Auction, now time.Time) error {
		return a.Cancel(now)
	})
}

func (r *AuctionsRepo) RecordResults(ctx context.Context, id string, results []auction.LotResult) (auction.Auction, error) {
	return r.mutate(ctx, id, func(a *auction.Auction, now time.Time) error {
		return a.RecordResults(results, now)
	})
}

func (r *AuctionsRepo) RegisterInterest(ctx context.Context, id, name, contact string) (auction.InterestedBuyer, error) {
	var buyer auction.InterestedBuyer

	_, err := r.mutate(ctx, id, func(a *auction.Auction, now time.Time) (err error) {
		buyer, err = a.RegisterInterest(name, contact, now)
		return
	})

	if err != nil {
		return auction.InterestedBuyer{}, err
	}

	return buyer, nil
}

// Delete removes the auction and hands back the stored image reference
// for best-effort cleanup by the caller.
func (r *AuctionsRepo) Delete(ctx context.Context, id string) (*string, error) {
	var imageRef *string

	err := r.observe("auctions.delete", func() error {
		return r.pool.QueryRow(ctx,
			`DELETE FROM auctions WHERE id = $1 RETURNING image_ref`, id,
		).Scan(&imageRef)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auction.ErrNotFound
		}
		return nil, err
	}

	return imageRef, nil
}

func (r *AuctionsRepo) List(ctx context.Context, f auction.ListFilter) ([]auction.Auction, int, error) {
	var conds []string
	var args []interface{}

	argsPosition := 1

	if f.Category != nil {
		match, err := json.Marshal([]map[string]string{{"category": string(*f.Category)}})
		if err != nil {
			return nil, 0, err
		}
		conds = append(conds, fmt.Sprintf("livestock @> $%d", argsPosition))
		args = append(args, match)
		argsPosition++
	}

	if f.Location != nil {
		conds = append(conds, fmt.Sprintf("location ILIKE $%d", argsPosition))
		args = append(args, "%"+*f.Location+"%")
		argsPosition++
	}

	// public listings default to upcoming auctions
	status := auction.StatusUpcoming
	if f.Status != nil {
		status = *f.Status
	}

	conds = append(conds, fmt.Sprintf("status = $%d", argsPosition))
	args = append(args, string(status))
	argsPosition++

	if !f.IncludeHidden {
		conds = append(conds, "published = TRUE")
	}

	order := "date DESC, id ASC"
	if status == auction.StatusUpcoming {
		order = "date ASC, id ASC"
	}

	query := `SELECT ` + auctionColumns + `, COUNT(*) OVER() AS total FROM auctions` +
		" WHERE " + strings.Join(conds, " AND ") +
		fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", order, argsPosition, argsPosition+1)

	args = append(args, f.Limit, f.Offset)

	var rows pgx.Rows
	var err error

	err = r.observe("auctions.list", func() error {
		rows, err = r.pool.Query(ctx, query, args...)
		return err
	})

	if err != nil {
		return nil, 0, err
	}

	defer rows.Close()

	now := time.Now().UTC()
	output := make([]auction.Auction, 0, f.Limit)
	total := 0

	for rows.Next() {
		var a auction.Auction
		var livestock, auctioneer, interested, registrations []byte
		var statusCol string
		var t int

		err = rows.Scan(
			&a.ID, &a.Title, &a.Description, &a.Location, &a.Date, &a.StartTime, &a.EndTime,
			&livestock, &auctioneer, &a.RegistrationRequired, &a.RegistrationDeadline,
			&a.RegistrationFee, &a.Terms, &statusCol, &a.ImageRef, &a.Published, &a.Views,
			&interested, &registrations, &a.CreatedAt, &a.UpdatedAt, &t,
		)
		if err != nil {
			return nil, 0, err
		}

		a.Status = auction.Status(statusCol)

		if err = json.Unmarshal(livestock, &a.Livestock); err != nil {
			return nil, 0, err
		}
		if err = json.Unmarshal(auctioneer, &a.Auctioneer); err != nil {
			return nil, 0, err
		}
		if err = json.Unmarshal(interested, &a.InterestedBuyers); err != nil {
			return nil, 0, err
		}
		if err = json.Unmarshal(registrations, &a.Registrations); err != nil {
			return nil, 0, err
		}

		// read-side derivation only; GetByID persists the transition
		a.DeriveStatus(now)

		total = t
		output = append(output, a)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return output, total, nil
}

// Upcoming returns published upcoming auctions whose date has not passed,
// soonest first.
func (r *AuctionsRepo) Upcoming(ctx context.Context) ([]auction.Auction, error) {
	return r.queryMany(ctx, "auctions.upcoming",
		`SELECT `+auctionColumns+` FROM auctions
		 WHERE published = TRUE AND status = 'upcoming' AND date >= NOW()
		 ORDER BY date ASC, id ASC`)
}

// ListAll loads every auction; the stats and flattened-registration
// queries aggregate in memory on top of this.
func (r *AuctionsRepo) ListAll(ctx context.Context) ([]auction.Auction, error) {
	return r.queryMany(ctx, "auctions.list_all",
		`SELECT `+auctionColumns+` FROM auctions ORDER BY date ASC, id ASC`)
}

func (r *AuctionsRepo) queryMany(ctx context.Context, op, query string, args ...interface{}) ([]auction.Auction, error) {
	var rows pgx.Rows
	var err error

	err = r.observe(op, func() error {
		rows, err = r.pool.Query(ctx, query, args...)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	now := time.Now().UTC()
	out := make([]auction.Auction, 0)

	for rows.Next() {
		a, scanErr := scanAuction(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		a.DeriveStatus(now)
		out = append(out, a)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// AddRegistrationTx appends a buyer registration inside the caller's
// transaction. The row lock makes the duplicate-email check and the
// append atomic, so two concurrent registrations for the same buyer
// cannot both pass the check.
func (r *AuctionsRepo) AddRegistrationTx(ctx context.Context, tx pgx.Tx, auctionID string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error) {
	a, err := r.getForUpdate(ctx, tx, auctionID)
	if err != nil {
		return auction.Registration{}, auction.Auction{}, err
	}

	now := time.Now().UTC()
	a.DeriveStatus(now)

	reg, err := a.AddRegistration(req, now)
	if err != nil {
		return auction.Registration{}, auction.Auction{}, err
	}

	if err := r.save(ctx, tx, a); err != nil {
		return auction.Registration{}, auction.Auction{}, err
	}

	return reg, a, nil
}

// RegistrationDecision captures an approve/reject call's inputs.
type RegistrationDecision struct {
	Approve bool
	ActorID string
	Reason  string
}

// DecideRegistrationTx locates the auction owning the registration and
// applies the terminal transition inside the caller's transaction.
func (r *AuctionsRepo) DecideRegistrationTx(ctx context.Context, tx pgx.Tx, registrationID string, d RegistrationDecision) (auction.Registration, auction.Auction, error) {
	match, err := json.Marshal([]map[string]string{{"id": registrationID}})
	if err != nil {
		return auction.Registration{}, auction.Auction{}, err
	}

	var a auction.Auction

	err = r.observe("auctions.find_by_registration", func() error {
		row := tx.QueryRow(ctx,
			`SELECT `+auctionColumns+` FROM auctions WHERE registrations @> $1 FOR UPDATE`, match)
		var scanErr error
		a, scanErr = scanAuction(row)
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auction.Registration{}, auction.Auction{}, auction.ErrRegistrationNotFound
		}
		return auction.Registration{}, auction.Auction{}, err
	}

	now := time.Now().UTC()
	a.DeriveStatus(now)

	var reg *auction.Registration

	if d.Approve {
		reg, err = a.ApproveRegistration(registrationID, d.ActorID, now)
	} else {
		reg, err = a.RejectRegistration(registrationID, d.ActorID, d.Reason, now)
	}

	if err != nil {
		return auction.Registration{}, auction.Auction{}, err
	}

	if err := r.save(ctx, tx, a); err != nil {
		return auction.Registration{}, auction.Auction{}, err
	}

	return *reg, a, nil
}
