package dispatcher

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/aweilerffp/marketing-machine-sub001/internal/lifecycle"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

type fakeStore struct {
	job      *models.PublishJob
	claimErr error

	recorded []lifecycle.Outcome
}

func (f *fakeStore) ClaimForPublishing(ctx context.Context, postID string) (*models.PublishJob, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.job, nil
}

func (f *fakeStore) RecordResult(ctx context.Context, postID, companyID string, outcome lifecycle.Outcome) error {
	f.recorded = append(f.recorded, outcome)
	return nil
}

type fakeAdapter struct {
	tokenValid  bool
	tokenErr    error
	publishErr  error
	result      *models.PublishResult
	textCalls   int
	imageCalls  int
	lastContent string
	lastImage   string
}

func (f *fakeAdapter) ValidateToken(ctx context.Context) (bool, error) {
	return f.tokenValid, f.tokenErr
}

func (f *fakeAdapter) PublishTextPost(ctx context.Context, formattedContent, visibility string) (*models.PublishResult, error) {
	f.textCalls++
	f.lastContent = formattedContent
	return f.result, f.publishErr
}

func (f *fakeAdapter) PublishImagePost(ctx context.Context, caption, imageURL, visibility string) (*models.PublishResult, error) {
	f.imageCalls++
	f.lastContent = caption
	f.lastImage = imageURL
	return f.result, f.publishErr
}

func newTestDispatcher(store ClaimStore, adapter PlatformAdapter) *Dispatcher {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	factory := func(accessToken, companyID string) PlatformAdapter { return adapter }
	return New(nil, store, factory, DefaultConfig(), Metrics{}, logger)
}

func textJob() *models.PublishJob {
	return &models.PublishJob{
		PostID:      "post-1",
		CompanyID:   "co-1",
		Content:     "Launch day!",
		Hashtags:    []string{"#launch", "#golang"},
		AccessToken: "token-abc",
	}
}

func TestProcessDiscardsLostClaim(t *testing.T) {
	store := &fakeStore{claimErr: models.ErrNotFound("claimable post", "post-1")}
	adapter := &fakeAdapter{tokenValid: true}
	d := newTestDispatcher(store, adapter)

	d.process(context.Background(), "post-1")

	if len(store.recorded) != 0 {
		t.Errorf("lost claim must not record an outcome, got %d", len(store.recorded))
	}
	if adapter.textCalls+adapter.imageCalls != 0 {
		t.Error("lost claim must not reach the adapter")
	}
}

func TestProcessInvalidTokenFailsBeforePublish(t *testing.T) {
	store := &fakeStore{job: textJob()}
	adapter := &fakeAdapter{tokenValid: false}
	d := newTestDispatcher(store, adapter)

	d.process(context.Background(), "post-1")

	if len(store.recorded) != 1 {
		t.Fatalf("expected one recorded outcome, got %d", len(store.recorded))
	}
	outcome := store.recorded[0]
	if outcome.Success {
		t.Error("invalid token must produce a failed outcome")
	}
	var authErr *models.AuthError
	if !errors.As(outcome.Err, &authErr) {
		t.Errorf("expected AuthError, got %v", outcome.Err)
	}
	if adapter.textCalls+adapter.imageCalls != 0 {
		t.Error("no publish call may happen after a failed token check")
	}
}

func TestProcessPublishesTextPost(t *testing.T) {
	store := &fakeStore{job: textJob()}
	adapter := &fakeAdapter{
		tokenValid: true,
		result:     &models.PublishResult{PlatformID: "urn:li:share:42"},
	}
	d := newTestDispatcher(store, adapter)

	d.process(context.Background(), "post-1")

	if adapter.textCalls != 1 || adapter.imageCalls != 0 {
		t.Fatalf("expected one text publish, got text=%d image=%d", adapter.textCalls, adapter.imageCalls)
	}
	if adapter.lastContent != "Launch day!\n\n#launch #golang" {
		t.Errorf("unexpected formatted content %q", adapter.lastContent)
	}

	if len(store.recorded) != 1 || !store.recorded[0].Success {
		t.Fatalf("expected one successful outcome, got %+v", store.recorded)
	}
	if store.recorded[0].Result.PlatformID != "urn:li:share:42" {
		t.Errorf("unexpected platform id %q", store.recorded[0].Result.PlatformID)
	}
}

func TestProcessPublishesImagePost(t *testing.T) {
	job := textJob()
	job.ImageURL = "https://cdn.example.com/a.png"
	store := &fakeStore{job: job}
	adapter := &fakeAdapter{
		tokenValid: true,
		result:     &models.PublishResult{PlatformID: "urn:li:share:43"},
	}
	d := newTestDispatcher(store, adapter)

	d.process(context.Background(), "post-1")

	if adapter.imageCalls != 1 || adapter.textCalls != 0 {
		t.Fatalf("expected one image publish, got text=%d image=%d", adapter.textCalls, adapter.imageCalls)
	}
	if adapter.lastImage != job.ImageURL {
		t.Errorf("unexpected image url %q", adapter.lastImage)
	}
}

func TestProcessRecordsAdapterFailure(t *testing.T) {
	store := &fakeStore{job: textJob()}
	adapter := &fakeAdapter{
		tokenValid: true,
		publishErr: &models.PublishError{Message: "content too long"},
	}
	d := newTestDispatcher(store, adapter)

	d.process(context.Background(), "post-1")

	if len(store.recorded) != 1 {
		t.Fatalf("expected one recorded outcome, got %d", len(store.recorded))
	}
	outcome := store.recorded[0]
	if outcome.Success {
		t.Error("adapter failure must produce a failed outcome")
	}
	var publishErr *models.PublishError
	if !errors.As(outcome.Err, &publishErr) {
		t.Fatalf("expected PublishError, got %v", outcome.Err)
	}
	if publishErr.Message != "content too long" {
		t.Errorf("platform message must survive verbatim, got %q", publishErr.Message)
	}
}

type panickingAdapter struct{}

func (panickingAdapter) ValidateToken(ctx context.Context) (bool, error) { return true, nil }

func (panickingAdapter) PublishTextPost(ctx context.Context, formattedContent, visibility string) (*models.PublishResult, error) {
	panic("adapter bug")
}

func (panickingAdapter) PublishImagePost(ctx context.Context, caption, imageURL, visibility string) (*models.PublishResult, error) {
	panic("adapter bug")
}

func TestProcessSurvivesAdapterPanic(t *testing.T) {
	store := &fakeStore{job: textJob()}
	d := newTestDispatcher(store, panickingAdapter{})

	d.process(context.Background(), "post-1")

	if len(store.recorded) != 1 {
		t.Fatalf("expected one recorded outcome, got %d", len(store.recorded))
	}
	var publishErr *models.PublishError
	if !errors.As(store.recorded[0].Err, &publishErr) {
		t.Fatalf("expected PublishError from recovered panic, got %v", store.recorded[0].Err)
	}
}

func TestWakeNeverBlocks(t *testing.T) {
	d := newTestDispatcher(&fakeStore{}, &fakeAdapter{})

	// Second wake hits a full channel and must drop, not block.
	d.Wake()
	d.Wake()
}
