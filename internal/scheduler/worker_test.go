package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/mail"
)

// ---- fakes ----

type fakeJobRepo struct {
	toClaim  []*domain.Job
	claimErr error

	created     []*domain.Job
	createErr   error
	sent        map[string]string // job id -> message id
	failed      map[string]string // job id -> last error
	failedAtt   map[string]int
	rescheduled map[string]time.Time
	reschedAtt  map[string]int
	reschedErr  map[string]string
}

func newFakeJobRepo(jobs ...*domain.Job) *fakeJobRepo {
	return &fakeJobRepo{
		toClaim:     jobs,
		sent:        map[string]string{},
		failed:      map[string]string{},
		failedAtt:   map[string]int{},
		rescheduled: map[string]time.Time{},
		reschedAtt:  map[string]int{},
		reschedErr:  map[string]string{},
	}
}

func (f *fakeJobRepo) Create(_ context.Context, job *domain.Job) (*domain.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	j := *job
	j.ID = fmt.Sprintf("job-%d", len(f.created)+1)
	j.Status = domain.JobScheduled
	f.created = append(f.created, &j)
	return &j, nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}

func (f *fakeJobRepo) Claim(_ context.Context, limit int) ([]*domain.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.toClaim) > limit {
		return f.toClaim[:limit], nil
	}
	return f.toClaim, nil
}

func (f *fakeJobRepo) MarkSent(_ context.Context, jobID, messageID string) error {
	f.sent[jobID] = messageID
	return nil
}

func (f *fakeJobRepo) Fail(_ context.Context, jobID string, attempts int, lastError string) error {
	f.failed[jobID] = lastError
	f.failedAtt[jobID] = attempts
	return nil
}

func (f *fakeJobRepo) Reschedule(_ context.Context, jobID string, attempts int, lastError string, retryAt time.Time) error {
	f.rescheduled[jobID] = retryAt
	f.reschedAtt[jobID] = attempts
	f.reschedErr[jobID] = lastError
	return nil
}

func (f *fakeJobRepo) ReclaimStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

type fakeCredRepo struct {
	creds  map[string]*domain.Credential
	getErr error
}

func (f *fakeCredRepo) Upsert(_ context.Context, ownerID, email, refreshToken string) error {
	return nil
}

func (f *fakeCredRepo) GetByOwner(_ context.Context, ownerID string) (*domain.Credential, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.creds[ownerID]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return c, nil
}

func (f *fakeCredRepo) TouchLastUsed(_ context.Context, _ string) error { return nil }

type fakeSeqRepo struct {
	runs     map[string]*domain.Run
	steps    map[string]*domain.Step // step id -> step
	statuses map[string]domain.RunStatus

	getRunCalls int
	onGetRun    func(calls int, run *domain.Run)
}

func newFakeSeqRepo() *fakeSeqRepo {
	return &fakeSeqRepo{
		runs:     map[string]*domain.Run{},
		steps:    map[string]*domain.Step{},
		statuses: map[string]domain.RunStatus{},
	}
}

func (f *fakeSeqRepo) GetSequence(_ context.Context, id string) (*domain.Sequence, error) {
	return nil, domain.ErrSequenceNotFound
}

func (f *fakeSeqRepo) ListSteps(_ context.Context, sequenceID string) ([]*domain.Step, error) {
	var out []*domain.Step
	for _, s := range f.steps {
		if s.SequenceID == sequenceID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSeqRepo) GetStep(_ context.Context, stepID string) (*domain.Step, error) {
	s, ok := f.steps[stepID]
	if !ok {
		return nil, domain.ErrStepNotFound
	}
	return s, nil
}

func (f *fakeSeqRepo) NextStep(_ context.Context, sequenceID string, afterOrder int) (*domain.Step, error) {
	var next *domain.Step
	for _, s := range f.steps {
		if s.SequenceID != sequenceID || s.StepOrder <= afterOrder {
			continue
		}
		if next == nil || s.StepOrder < next.StepOrder {
			next = s
		}
	}
	if next == nil {
		return nil, domain.ErrStepNotFound
	}
	return next, nil
}

func (f *fakeSeqRepo) InsertSteps(_ context.Context, _ []*domain.Step) ([]*domain.Step, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSeqRepo) UpsertStep(_ context.Context, _ *domain.Step) (*domain.Step, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSeqRepo) ListRecipients(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakeSeqRepo) CreateRun(_ context.Context, run *domain.Run) (*domain.Run, error) {
	r := *run
	r.ID = fmt.Sprintf("run-%d", len(f.runs)+1)
	r.Status = domain.RunActive
	f.runs[r.ID] = &r
	return &r, nil
}

func (f *fakeSeqRepo) GetRun(_ context.Context, id string) (*domain.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	f.getRunCalls++
	if f.onGetRun != nil {
		f.onGetRun(f.getRunCalls, r)
	}
	copied := *r
	return &copied, nil
}

func (f *fakeSeqRepo) AdvanceRun(_ context.Context, runID string, stepOrder int, sentAt time.Time, threadID *string) (*domain.Run, error) {
	r, ok := f.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	r.CurrentStep = stepOrder
	r.LastSentAt = &sentAt
	if r.ThreadID == nil && threadID != nil {
		r.ThreadID = threadID
	}
	copied := *r
	return &copied, nil
}

func (f *fakeSeqRepo) SetRunStatus(_ context.Context, runID string, status domain.RunStatus) error {
	if r, ok := f.runs[runID]; ok {
		r.Status = status
	}
	f.statuses[runID] = status
	return nil
}

type fakeEventRepo struct {
	events []*domain.EmailEvent
}

func (f *fakeEventRepo) Insert(_ context.Context, e *domain.EmailEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventRepo) ListByRun(_ context.Context, _ string) ([]*domain.EmailEvent, error) {
	return f.events, nil
}

type fakeSender struct {
	result mail.SendResult
	err    error
	sent   []mail.Message
}

func (f *fakeSender) Send(_ context.Context, _ string, m mail.Message) (mail.SendResult, error) {
	if f.err != nil {
		return mail.SendResult{}, f.err
	}
	f.sent = append(f.sent, m)
	return f.result, nil
}

type fakeReplies struct {
	replied bool
	err     error
	threads []string
	sinces  []time.Time
}

func (f *fakeReplies) HasReply(_ context.Context, _, threadID, _ string, since time.Time) (bool, error) {
	f.threads = append(f.threads, threadID)
	f.sinces = append(f.sinces, since)
	return f.replied, f.err
}

// ---- helpers ----

var testTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

type fixture struct {
	jobs    *fakeJobRepo
	creds   *fakeCredRepo
	seqs    *fakeSeqRepo
	events  *fakeEventRepo
	sender  *fakeSender
	replies *fakeReplies
	worker  *Worker
}

func newFixture(claimable ...*domain.Job) *fixture {
	f := &fixture{
		jobs: newFakeJobRepo(claimable...),
		creds: &fakeCredRepo{creds: map[string]*domain.Credential{
			"owner-1": {
				OwnerID:      "owner-1",
				Email:        strPtr("sender@kaptiv.io"),
				RefreshToken: strPtr("refresh-token"),
			},
		}},
		seqs:    newFakeSeqRepo(),
		events:  &fakeEventRepo{},
		sender:  &fakeSender{result: mail.SendResult{MessageID: "msg-1", ThreadID: "thread-1"}},
		replies: &fakeReplies{},
	}
	f.worker = NewWorker(f.jobs, f.creds, f.seqs, f.events, f.sender, f.replies,
		discardLogger(), 20, 5, "fallback@kaptiv.io")
	f.worker.now = func() time.Time { return testTime }
	return f
}

func oneOffJob(id string) *domain.Job {
	return &domain.Job{
		ID:       id,
		OwnerID:  "owner-1",
		ToEmail:  "a@x.com",
		Subject:  "hello",
		BodyText: "hi there",
		Status:   domain.JobClaimed,
	}
}

// ---- worker loop ----

func TestRun_EmptyClaim_NoopSummary(t *testing.T) {
	f := newFixture()

	summary, err := f.worker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Claimed != 0 || summary.Sent != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want zeroes", summary)
	}
}

func TestRun_ClaimError_Propagates(t *testing.T) {
	f := newFixture()
	f.jobs.claimErr = errors.New("db down")

	if _, err := f.worker.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_OneOffJob_Sent(t *testing.T) {
	f := newFixture(oneOffJob("job-a"))

	summary, err := f.worker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Claimed != 1 || summary.Sent != 1 {
		t.Errorf("summary = %+v, want 1 claimed 1 sent", summary)
	}
	if f.jobs.sent["job-a"] != "msg-1" {
		t.Errorf("message id = %q, want msg-1", f.jobs.sent["job-a"])
	}
	if got := f.sender.sent[0].From; got != "sender@kaptiv.io" {
		t.Errorf("from = %q, want connected address", got)
	}
}

func TestRun_NoCredential_FailsWithoutRetry(t *testing.T) {
	job := oneOffJob("job-a")
	job.OwnerID = "owner-unknown"
	f := newFixture(job)

	summary, err := f.worker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if f.jobs.failed["job-a"] != "no_refresh_token" {
		t.Errorf("last_error = %q, want no_refresh_token", f.jobs.failed["job-a"])
	}
	if len(f.jobs.rescheduled) != 0 {
		t.Error("job must not be retried when the tenant has no credential")
	}
	if f.jobs.failedAtt["job-a"] != 0 {
		t.Errorf("attempts = %d, want 0 (no retry consumed)", f.jobs.failedAtt["job-a"])
	}
}

func TestRun_NilRefreshToken_FailsWithoutRetry(t *testing.T) {
	f := newFixture(oneOffJob("job-a"))
	f.creds.creds["owner-1"].RefreshToken = nil

	summary, _ := f.worker.Run(context.Background())
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if f.jobs.failed["job-a"] != "no_refresh_token" {
		t.Errorf("last_error = %q, want no_refresh_token", f.jobs.failed["job-a"])
	}
}

func TestRun_TransientFailure_ReschedulesWithBackoff(t *testing.T) {
	job := oneOffJob("job-a")
	job.Attempts = 1
	f := newFixture(job)
	f.sender.err = errors.New("rate limited")

	summary, _ := f.worker.Run(context.Background())
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	// attempts=1 pre-increment means the retry backs off 2^2 = 4 minutes
	wantAt := testTime.Add(4 * time.Minute)
	if got := f.jobs.rescheduled["job-a"]; !got.Equal(wantAt) {
		t.Errorf("retry at %v, want %v", got, wantAt)
	}
	if f.jobs.reschedAtt["job-a"] != 2 {
		t.Errorf("attempts = %d, want 2", f.jobs.reschedAtt["job-a"])
	}
	if len(summary.Failures) != 1 || summary.Failures[0].JobID != "job-a" {
		t.Errorf("failures = %+v, want job-a enumerated", summary.Failures)
	}
}

func TestRun_MaxAttemptsExhausted_TerminalFailure(t *testing.T) {
	job := oneOffJob("job-a")
	job.Attempts = 4 // n+1 == maxAttempts
	f := newFixture(job)
	f.sender.err = errors.New("mailbox gone")

	f.worker.Run(context.Background())

	if _, ok := f.jobs.rescheduled["job-a"]; ok {
		t.Error("job must not be rescheduled past max attempts")
	}
	if f.jobs.failed["job-a"] != "mailbox gone" {
		t.Errorf("last_error = %q, want mailbox gone", f.jobs.failed["job-a"])
	}
	if f.jobs.failedAtt["job-a"] != 5 {
		t.Errorf("attempts = %d, want 5", f.jobs.failedAtt["job-a"])
	}
}

func TestRun_LongError_TruncatedTo1000(t *testing.T) {
	f := newFixture(oneOffJob("job-a"))
	f.sender.err = errors.New(strings.Repeat("x", 2000))

	f.worker.Run(context.Background())

	if got := len(f.jobs.reschedErr["job-a"]); got != 1000 {
		t.Errorf("stored error length = %d, want 1000", got)
	}
}

func TestRun_CredentialStoreError_Retries(t *testing.T) {
	f := newFixture(oneOffJob("job-a"))
	f.creds.getErr = errors.New("connection refused")

	summary, _ := f.worker.Run(context.Background())
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if _, ok := f.jobs.failed["job-a"]; ok {
		t.Error("a store outage must not terminally fail the job")
	}
	if _, ok := f.jobs.rescheduled["job-a"]; !ok {
		t.Fatal("job must be rescheduled when the credential load fails transiently")
	}
	if got := f.jobs.reschedErr["job-a"]; !strings.Contains(got, "connection refused") {
		t.Errorf("last_error = %q, want the store error text", got)
	}
	if got := f.jobs.reschedErr["job-a"]; strings.Contains(got, "no_refresh_token") {
		t.Errorf("last_error = %q, must not claim a missing grant", got)
	}
}

func TestRun_InactiveRun_SkipsSend(t *testing.T) {
	f := newFixture()
	run, _ := f.seqs.CreateRun(context.Background(), &domain.Run{
		SequenceID: "seq-1", OwnerID: "owner-1", RecipientEmail: "a@x.com",
	})
	f.seqs.runs[run.ID].Status = domain.RunStopped

	job := oneOffJob("job-a")
	job.SequenceRunID = &run.ID
	f.jobs.toClaim = []*domain.Job{job}

	summary, _ := f.worker.Run(context.Background())
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if len(f.sender.sent) != 0 {
		t.Error("no send may happen for a stopped run")
	}
}
