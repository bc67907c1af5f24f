package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/job"
	"github.com/farmhub/auctionhub/internal/jobs"
	"github.com/farmhub/auctionhub/internal/notifications"
	"github.com/farmhub/auctionhub/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// fakeJobsRepo holds a single job and mirrors the SQL semantics of the
// postgres repo: a claim only matches pending rows with attempts <
// max_attempts and counts the attempt; a reschedule does not.
type fakeJobsRepo struct {
	job *job.Job

	claims      int
	rescheduled []time.Time
	failedMsg   string
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	j := f.job

	if j == nil || j.Status != job.StatusPending || j.Attempts >= j.MaxAttempts {
		return job.Job{}, job.ErrJobNotFound
	}

	j.Status = job.StatusProcessing
	j.Attempts++
	j.LockedBy = &workerID

	f.claims++
	return *j, nil
}

func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	f.job.Status = job.StatusDone
	return nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	f.job.Status = job.StatusFailed
	f.failedMsg = errMsg
	return nil
}

func (f *fakeJobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	f.job.Status = job.StatusPending
	f.rescheduled = append(f.rescheduled, runAt)
	return nil
}

func (f *fakeJobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	return 0, nil
}

type fakeMailer struct {
	sent []notifications.Email
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg notifications.Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestWorker(repo *fakeJobsRepo, mailer *fakeMailer) *Worker {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	prom := observability.NewProm(prometheus.NewRegistry())

	return New(Config{WorkerID: "test-worker"}, repo, mailer, nil, prom, log)
}

func confirmationJob(t *testing.T, maxAttempts int) *job.Job {
	t.Helper()

	p := jobs.RegistrationEmailPayload{
		RegistrationID: "reg-1",
		AuctionID:      "auc-1",
		AuctionTitle:   "Spring Cattle Sale",
		AuctionDate:    time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		Email:          "jane@example.com",
		Name:           "Jane Farmer",
	}

	raw, err := p.JSON()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}

	return &job.Job{
		ID:          "job-1",
		Type:        string(jobs.JobSendRegistrationConfirmation),
		Payload:     raw,
		Status:      job.StatusPending,
		MaxAttempts: maxAttempts,
	}
}

func TestProcessOneSendsAndMarksDone(t *testing.T) {
	repo := &fakeJobsRepo{job: confirmationJob(t, 10)}
	mailer := &fakeMailer{}

	w := newTestWorker(repo, mailer)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !processed {
		t.Fatal("expected a claimed job")
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}

	sent := mailer.sent[0]
	if sent.To != "jane@example.com" || sent.Template != "registration_confirmation" {
		t.Fatalf("wrong email: %+v", sent)
	}
	if sent.Subject != "Registration received: Spring Cattle Sale" {
		t.Fatalf("wrong subject: %q", sent.Subject)
	}

	if repo.job.Status != job.StatusDone {
		t.Fatalf("job status %s, want done", repo.job.Status)
	}
	if repo.job.Attempts != 1 {
		t.Fatalf("attempts %d, want 1", repo.job.Attempts)
	}
	if repo.job.LockedBy == nil || *repo.job.LockedBy != "test-worker" {
		t.Fatalf("claimed by %v", repo.job.LockedBy)
	}
	if len(repo.rescheduled) != 0 {
		t.Fatal("successful job must not be rescheduled")
	}
}

func TestProcessOneReschedulesOnSendFailure(t *testing.T) {
	repo := &fakeJobsRepo{job: confirmationJob(t, 10)}
	mailer := &fakeMailer{err: errors.New("smtp unavailable")}

	w := newTestWorker(repo, mailer)

	before := time.Now().UTC()

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !processed {
		t.Fatal("expected a claimed job")
	}

	if len(repo.rescheduled) != 1 {
		t.Fatalf("expected 1 reschedule, got %d", len(repo.rescheduled))
	}

	// first attempt backs off at least 2s
	if repo.rescheduled[0].Before(before.Add(2 * time.Second)) {
		t.Fatalf("reschedule too soon: %v", repo.rescheduled[0].Sub(before))
	}

	if repo.job.Status != job.StatusPending || repo.job.Attempts != 1 {
		t.Fatalf("job should be pending with 1 attempt, got %s/%d", repo.job.Status, repo.job.Attempts)
	}
}

func TestProcessOneExhaustsRetriesAndMarksFailed(t *testing.T) {
	repo := &fakeJobsRepo{job: confirmationJob(t, 3)}
	mailer := &fakeMailer{err: errors.New("smtp unavailable")}

	w := newTestWorker(repo, mailer)

	// drain exactly like the worker loop would
	for {
		processed, err := w.ProcessOne(context.Background())
		if err != nil {
			t.Fatalf("ProcessOne: %v", err)
		}
		if !processed {
			break
		}
	}

	if repo.job.Status != job.StatusFailed {
		t.Fatalf("exhausted job is stuck %s with attempts=%d of %d",
			repo.job.Status, repo.job.Attempts, repo.job.MaxAttempts)
	}
	if repo.job.Attempts != 3 {
		t.Fatalf("attempts %d, want 3", repo.job.Attempts)
	}
	if len(repo.rescheduled) != 2 {
		t.Fatalf("expected 2 reschedules before the terminal failure, got %d", len(repo.rescheduled))
	}
	if repo.failedMsg == "" {
		t.Fatal("terminal failure must record the error")
	}
	if repo.claims != 3 {
		t.Fatalf("claims %d, want 3", repo.claims)
	}
}

func TestProcessOneFailsUndecodableJob(t *testing.T) {
	bad := &job.Job{
		ID:          "job-bad",
		Type:        string(jobs.JobSendRegistrationConfirmation),
		Payload:     []byte(`{broken`),
		Status:      job.StatusPending,
		MaxAttempts: 1,
	}

	repo := &fakeJobsRepo{job: bad}
	mailer := &fakeMailer{}

	w := newTestWorker(repo, mailer)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if repo.job.Status != job.StatusFailed {
		t.Fatalf("undecodable payload must fail the job, got %s", repo.job.Status)
	}
	if len(mailer.sent) != 0 {
		t.Fatal("no email may be sent for an undecodable payload")
	}
}

func TestProcessOneNoJobAvailable(t *testing.T) {
	repo := &fakeJobsRepo{}
	w := newTestWorker(repo, &fakeMailer{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if processed {
		t.Fatal("no job should have been claimed")
	}
}

func TestBuildEmailTemplates(t *testing.T) {
	reg := jobs.RegistrationEmailPayload{
		Email:        "jane@example.com",
		Name:         "Jane Farmer",
		AuctionTitle: "Spring Cattle Sale",
		BidderNumber: "AB92DE",
		Reason:       "Incomplete details",
	}

	approved, err := buildEmail(jobs.JobSendRegistrationApproved, reg)
	if err != nil {
		t.Fatalf("approved: %v", err)
	}
	if approved.Data["bidderNumber"] != "AB92DE" {
		t.Fatalf("approval email missing bidder number: %+v", approved.Data)
	}

	rejected, err := buildEmail(jobs.JobSendRegistrationRejected, reg)
	if err != nil {
		t.Fatalf("rejected: %v", err)
	}
	if rejected.Data["reason"] != "Incomplete details" {
		t.Fatalf("rejection email missing reason: %+v", rejected.Data)
	}

	cancelled, err := buildEmail(jobs.JobSendAuctionCancelled, jobs.AuctionCancelledPayload{
		Email:        "jane@example.com",
		AuctionTitle: "Spring Cattle Sale",
	})
	if err != nil {
		t.Fatalf("cancelled: %v", err)
	}
	if cancelled.Subject != "Auction cancelled: Spring Cattle Sale" {
		t.Fatalf("wrong cancellation subject: %q", cancelled.Subject)
	}

	if _, err := buildEmail(jobs.JobSendAuctionCancelled, reg); !errors.Is(err, jobs.ErrPayloadTypeMismatch) {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}
