package memory

import (
	"context"
	"sync"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/auction"
)

// AuctionsRepo mirrors the postgres repository's behavior in memory,
// including the lazy status derivation and view-counter side effect. Used
// by tests and local experiments.
type AuctionsRepo struct {
	mu    sync.RWMutex
	items map[string]auction.Auction

	// Now is injectable so tests can control the clock.
	Now func() time.Time
}

func NewAuctionsRepo() *AuctionsRepo {
	return &AuctionsRepo{
		items: make(map[string]auction.Auction),
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *AuctionsRepo) Create(ctx context.Context, req auction.CreateAuctionRequest) (auction.Auction, error) {
	a, err := auction.NewFromCreateRequest(req, r.Now())
	if err != nil {
		return auction.Auction{}, err
	}

	r.mu.Lock()
	r.items[a.ID] = a
	r.mu.Unlock()

	return a, nil
}

func (r *AuctionsRepo) GetByID(ctx context.Context, id string) (auction.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return auction.Auction{}, auction.ErrNotFound
	}

	now := r.Now()
	a.Views++
	a.DeriveStatus(now)
	a.UpdatedAt = now

	r.items[id] = a

	return a, nil
}

func (r *AuctionsRepo) mutate(id string, fn func(a *auction.Auction, now time.Time) error) (auction.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return auction.Auction{}, auction.ErrNotFound
	}

	now := r.Now()
	a.DeriveStatus(now)

	if err := fn(&a, now); err != nil {
		return auction.Auction{}, err
	}

	a.DeriveStatus(now)
	r.items[id] = a

	return a, nil
}

func (r *AuctionsRepo) Update(ctx context.Context, id string, req auction.UpdateAuctionRequest) (auction.Auction, *string, error) {
	var replaced *string

	a, err := r.mutate(id, func(a *auction.Auction, now time.Time) error {
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
	return r.mutate(id, func(a *auction.Auction, now time.Time) error {
		return a.Cancel(now)
	})
}

func (r *AuctionsRepo) RecordResults(ctx context.Context, id string, results []auction.LotResult) (auction.Auction, error) {
	return r.mutate(id, func(a *auction.Auction, now time.Time) error {
		return a.RecordResults(results, now)
	})
}

func (r *AuctionsRepo) RegisterInterest(ctx context.Context, id, name, contact string) (auction.InterestedBuyer, error) {
	var buyer auction.InterestedBuyer

	_, err := r.mutate(id, func(a *auction.Auction, now time.Time) (err error) {
		buyer, err = a.RegisterInterest(name, contact, now)
		return
	})

	if err != nil {
		return auction.InterestedBuyer{}, err
	}

	return buyer, nil
}

func (r *AuctionsRepo) AddRegistration(ctx context.Context, auctionID string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error) {
	var reg auction.Registration

	a, err := r.mutate(auctionID, func(a *auction.Auction, now time.Time) (err error) {
		reg, err = a.AddRegistration(req, now)
		return
	})

	if err != nil {
		return auction.Registration{}, auction.Auction{}, err
	}

	return reg, a, nil
}

func (r *AuctionsRepo) DecideRegistration(ctx context.Context, registrationID string, approve bool, actorID, reason string) (auction.Registration, auction.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.items {
		if _, ok := a.FindRegistration(registrationID); !ok {
			continue
		}

		now := r.Now()
		a.DeriveStatus(now)

		var reg *auction.Registration
		var err error

		if approve {
			reg, err = a.ApproveRegistration(registrationID, actorID, now)
		} else {
			reg, err = a.RejectRegistration(registrationID, actorID, reason, now)
		}

		if err != nil {
			return auction.Registration{}, auction.Auction{}, err
		}

		r.items[id] = a

		return *reg, a, nil
	}

	return auction.Registration{}, auction.Auction{}, auction.ErrRegistrationNotFound
}

func (r *AuctionsRepo) Delete(ctx context.Context, id string) (*string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return nil, auction.ErrNotFound
	}

	delete(r.items, id)

	return a.ImageRef, nil
}

func (r *AuctionsRepo) ListAll(ctx context.Context) ([]auction.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.Now()
	out := make([]auction.Auction, 0, len(r.items))

	for _, a := range r.items {
		a.DeriveStatus(now)
		out = append(out, a)
	}

	return out, nil
}
