package handlers_test

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farmhub/auctionhub/internal/activity"
	"github.com/farmhub/auctionhub/internal/domain/auction"
	"github.com/farmhub/auctionhub/internal/domain/job"
	"github.com/farmhub/auctionhub/internal/http/handlers"
	"github.com/farmhub/auctionhub/internal/jobs"
	"github.com/farmhub/auctionhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// fakeTx satisfies pgx.Tx via embedding; only the methods the handler
// touches are overridden.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeRegistrationsRepo struct {
	tx       *fakeTx
	addFn    func(ctx context.Context, auctionID string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error)
	decideFn func(ctx context.Context, registrationID string, d postgres.RegistrationDecision) (auction.Registration, auction.Auction, error)
	listFn   func(ctx context.Context) ([]auction.Auction, error)
}

func (f *fakeRegistrationsRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	if f.tx == nil {
		f.tx = &fakeTx{}
	}
	return f.tx, nil
}

func (f *fakeRegistrationsRepo) AddRegistrationTx(ctx context.Context, tx pgx.Tx, auctionID string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error) {
	if f.addFn != nil {
		return f.addFn(ctx, auctionID, req)
	}
	return auction.Registration{}, auction.Auction{}, nil
}

func (f *fakeRegistrationsRepo) DecideRegistrationTx(ctx context.Context, tx pgx.Tx, registrationID string, d postgres.RegistrationDecision) (auction.Registration, auction.Auction, error) {
	if f.decideFn != nil {
		return f.decideFn(ctx, registrationID, d)
	}
	return auction.Registration{}, auction.Auction{}, nil
}

func (f *fakeRegistrationsRepo) ListAll(ctx context.Context) ([]auction.Auction, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

type fakeTxJobsRepo struct {
	created []job.CreateRequest
	err     error
}

func (f *fakeTxJobsRepo) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	if f.err != nil {
		return job.Job{}, f.err
	}
	f.created = append(f.created, req)
	return job.New(req), nil
}

func newRegistrationsHandler(repo *fakeRegistrationsRepo, jobsRepo *fakeTxJobsRepo) (*handlers.RegistrationsHandler, *fakeActivityRecorder) {
	rec := &fakeActivityRecorder{}
	audit := activity.NewLogger(rec, testLogger())

	if jobsRepo == nil {
		jobsRepo = &fakeTxJobsRepo{}
	}

	return handlers.NewRegistrationsHandler(repo, jobsRepo, nil, audit, testProm()), rec
}

const registerBody = `{
	"buyerName": "Jane Farmer",
	"buyerEmail": "jane@example.com",
	"buyerPhone": "+254700111222"
}`

func TestRegisterHandler(t *testing.T) {
	auctionID := newUUID()
	now := time.Now().UTC()

	t.Run("success_commits_registration_and_email_job", func(t *testing.T) {
		regID := newUUID()

		repo := &fakeRegistrationsRepo{
			addFn: func(ctx context.Context, gotAuctionID string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error) {
				if gotAuctionID != auctionID {
					return auction.Registration{}, auction.Auction{}, errors.New("wrong auction id")
				}
				if req.AuctionID != auctionID {
					return auction.Registration{}, auction.Auction{}, errors.New("url param must override body auction id")
				}

				reg := auction.Registration{
					ID:           regID,
					BuyerName:    req.BuyerName,
					BuyerEmail:   req.BuyerEmail,
					Status:       auction.RegistrationPending,
					RegisteredAt: now,
				}
				return reg, auction.Auction{ID: auctionID, Title: "Big Sale", Date: now.Add(48 * time.Hour)}, nil
			},
		}

		jobsRepo := &fakeTxJobsRepo{}
		h, rec := newRegistrationsHandler(repo, jobsRepo)
		r := setupRouter(http.MethodPost, "/auctions/:id/registrations", h.Register)

		w := doJSON(t, r, http.MethodPost, "/auctions/"+auctionID+"/registrations", registerBody)

		if w.Code != http.StatusCreated {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}

		if !repo.tx.committed {
			t.Fatal("transaction was not committed")
		}

		if len(jobsRepo.created) != 1 {
			t.Fatalf("expected 1 confirmation job, got %d", len(jobsRepo.created))
		}

		created := jobsRepo.created[0]

		if created.Type != string(jobs.JobSendRegistrationConfirmation) {
			t.Fatalf("wrong job type: %s", created.Type)
		}
		if created.IdempotencyKey == nil || *created.IdempotencyKey != "registration:confirm:"+regID {
			t.Fatalf("wrong idempotency key: %v", created.IdempotencyKey)
		}

		if len(rec.entries) != 1 || rec.entries[0].Action != activity.ActionRegistrationCreated {
			t.Fatalf("expected a registration activity entry, got %+v", rec.entries)
		}
	})

	t.Run("duplicate_email_conflict_rolls_back", func(t *testing.T) {
		repo := &fakeRegistrationsRepo{
			addFn: func(ctx context.Context, id string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error) {
				return auction.Registration{}, auction.Auction{}, auction.ErrAlreadyRegistered
			},
		}

		jobsRepo := &fakeTxJobsRepo{}
		h, _ := newRegistrationsHandler(repo, jobsRepo)
		r := setupRouter(http.MethodPost, "/auctions/:id/registrations", h.Register)

		w := doJSON(t, r, http.MethodPost, "/auctions/"+auctionID+"/registrations", registerBody)

		if w.Code != http.StatusConflict {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
		if repo.tx.committed {
			t.Fatal("transaction must not commit on conflict")
		}
		if !repo.tx.rolledBack {
			t.Fatal("transaction was not rolled back")
		}
		if len(jobsRepo.created) != 0 {
			t.Fatal("no email job may be enqueued on conflict")
		}
	})

	t.Run("window_closed_conflict", func(t *testing.T) {
		repo := &fakeRegistrationsRepo{
			addFn: func(ctx context.Context, id string, req auction.CreateRegistrationRequest) (auction.Registration, auction.Auction, error) {
				return auction.Registration{}, auction.Auction{}, auction.ErrRegistrationClosed
			},
		}

		h, _ := newRegistrationsHandler(repo, nil)
		r := setupRouter(http.MethodPost, "/auctions/:id/registrations", h.Register)

		w := doJSON(t, r, http.MethodPost, "/auctions/"+auctionID+"/registrations", registerBody)

		if w.Code != http.StatusConflict {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("missing_buyer_email_rejected_at_binding", func(t *testing.T) {
		repo := &fakeRegistrationsRepo{}
		h, _ := newRegistrationsHandler(repo, nil)
		r := setupRouter(http.MethodPost, "/auctions/:id/registrations", h.Register)

		w := doJSON(t, r, http.MethodPost, "/auctions/"+auctionID+"/registrations",
			`{"buyerName":"Jane Farmer","buyerPhone":"+254700111222"}`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
	})
}

func withActor(handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("auth.userID", "admin-1")
		c.Set("auth.username", "admin")
		c.Set("auth.role", "admin")
		handler(c)
	}
}

func TestDecideHandlers(t *testing.T) {
	regID := newUUID()
	now := time.Now().UTC()

	newDecideRepo := func(capture *postgres.RegistrationDecision) *fakeRegistrationsRepo {
		return &fakeRegistrationsRepo{
			decideFn: func(ctx context.Context, gotRegID string, d postgres.RegistrationDecision) (auction.Registration, auction.Auction, error) {
				*capture = d

				status := auction.RegistrationApproved
				if !d.Approve {
					status = auction.RegistrationRejected
				}

				reg := auction.Registration{ID: gotRegID, BuyerName: "Jane", BuyerEmail: "jane@example.com", Status: status}
				return reg, auction.Auction{ID: newUUID(), Title: "Big Sale", Date: now.Add(24 * time.Hour)}, nil
			},
		}
	}

	t.Run("approve_enqueues_bidder_number_email", func(t *testing.T) {
		var captured postgres.RegistrationDecision
		repo := newDecideRepo(&captured)
		jobsRepo := &fakeTxJobsRepo{}

		h, _ := newRegistrationsHandler(repo, jobsRepo)
		r := setupRouter(http.MethodPost, "/registrations/:registrationId/approve", withActor(h.Approve))

		w := doJSON(t, r, http.MethodPost, "/registrations/"+regID+"/approve", "")

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}

		if !captured.Approve || captured.ActorID != "admin-1" {
			t.Fatalf("decision not passed through: %+v", captured)
		}

		if len(jobsRepo.created) != 1 {
			t.Fatalf("expected 1 approval job, got %d", len(jobsRepo.created))
		}
		if jobsRepo.created[0].Type != string(jobs.JobSendRegistrationApproved) {
			t.Fatalf("wrong job type: %s", jobsRepo.created[0].Type)
		}

		if !strings.Contains(string(jobsRepo.created[0].Payload), auction.BidderNumber(regID)) {
			t.Fatalf("payload missing bidder number: %s", jobsRepo.created[0].Payload)
		}
	})

	t.Run("reject_uses_default_reason", func(t *testing.T) {
		var captured postgres.RegistrationDecision
		repo := newDecideRepo(&captured)

		h, _ := newRegistrationsHandler(repo, nil)
		r := setupRouter(http.MethodPost, "/registrations/:registrationId/reject", withActor(h.Reject))

		w := doJSON(t, r, http.MethodPost, "/registrations/"+regID+"/reject", "")

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}

		if captured.Approve {
			t.Fatal("expected a rejection")
		}
		if captured.Reason == "" {
			t.Fatal("expected a default rejection reason")
		}
	})

	t.Run("already_decided_conflict", func(t *testing.T) {
		repo := &fakeRegistrationsRepo{
			decideFn: func(ctx context.Context, id string, d postgres.RegistrationDecision) (auction.Registration, auction.Auction, error) {
				return auction.Registration{}, auction.Auction{}, auction.ErrRegistrationDecided
			},
		}

		h, _ := newRegistrationsHandler(repo, nil)
		r := setupRouter(http.MethodPost, "/registrations/:registrationId/approve", withActor(h.Approve))

		w := doJSON(t, r, http.MethodPost, "/registrations/"+regID+"/approve", "")

		if w.Code != http.StatusConflict {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown_registration_not_found", func(t *testing.T) {
		repo := &fakeRegistrationsRepo{
			decideFn: func(ctx context.Context, id string, d postgres.RegistrationDecision) (auction.Registration, auction.Auction, error) {
				return auction.Registration{}, auction.Auction{}, auction.ErrRegistrationNotFound
			},
		}

		h, _ := newRegistrationsHandler(repo, nil)
		r := setupRouter(http.MethodPost, "/registrations/:registrationId/reject", withActor(h.Reject))

		w := doJSON(t, r, http.MethodPost, "/registrations/"+regID+"/reject", "")

		if w.Code != http.StatusNotFound {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("missing_identity_unauthorized", func(t *testing.T) {
		repo := &fakeRegistrationsRepo{}
		h, _ := newRegistrationsHandler(repo, nil)
		r := setupRouter(http.MethodPost, "/registrations/:registrationId/approve", h.Approve)

		w := doJSON(t, r, http.MethodPost, "/registrations/"+regID+"/approve", "")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
	})
}

func TestExportRegistrationsHandler(t *testing.T) {
	now := time.Now().UTC()

	repo := &fakeRegistrationsRepo{
		listFn: func(ctx context.Context) ([]auction.Auction, error) {
			return []auction.Auction{
				{
					ID:       newUUID(),
					Title:    `Sale, with "quotes"`,
					Location: "Kitale",
					Date:     now,
					Registrations: []auction.Registration{
						{
							ID:            newUUID(),
							BuyerName:     "Farm & Co, Ltd",
							BuyerEmail:    "buyer@example.com",
							Status:        auction.RegistrationApproved,
							PaymentMethod: "cash",
							PaymentStatus: "pending",
							RegisteredAt:  now,
						},
					},
				},
			}, nil
		},
	}

	h, _ := newRegistrationsHandler(repo, nil)
	r := setupRouter(http.MethodGet, "/registrations/export", h.ExportRegistrations)

	req := httptest.NewRequest(http.MethodGet, "/registrations/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("wrong content type: %s", ct)
	}

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected header + 1 record, got %d", len(records))
	}

	if records[1][0] != `Sale, with "quotes"` {
		t.Fatalf("title not round-tripped: %q", records[1][0])
	}
	if records[1][3] != "Farm & Co, Ltd" {
		t.Fatalf("buyer not round-tripped: %q", records[1][3])
	}
}

func TestListRegistrationsHandler(t *testing.T) {
	now := time.Now().UTC()

	repo := &fakeRegistrationsRepo{
		listFn: func(ctx context.Context) ([]auction.Auction, error) {
			return []auction.Auction{
				{
					ID: newUUID(),
					Registrations: []auction.Registration{
						{ID: newUUID(), Status: auction.RegistrationPending, RegisteredAt: now},
						{ID: newUUID(), Status: auction.RegistrationApproved, RegisteredAt: now.Add(-time.Hour)},
					},
				},
			}, nil
		},
	}

	h, _ := newRegistrationsHandler(repo, nil)
	r := setupRouter(http.MethodGet, "/registrations", h.ListRegistrations)

	req := httptest.NewRequest(http.MethodGet, "/registrations?status=pending", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	body := w.Body.String()

	// aggregate counts ignore the status filter
	if !strings.Contains(body, `"total":2`) {
		t.Fatalf("expected aggregate total of 2: %s", body)
	}

	// unknown status is rejected
	req = httptest.NewRequest(http.MethodGet, "/registrations?status=bogus", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d for bad status filter", w.Code)
	}
}
