package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/database"
	"lmsinquiry/internal/domain"
	apperrors "lmsinquiry/pkg/errors"
	"lmsinquiry/pkg/inquiry"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{URL: "sqlite:///:memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fakeNotifier struct {
	mu   sync.Mutex
	got  []domain.FacultyInquiry
	fail error
}

func (n *fakeNotifier) NotifyInquiry(_ context.Context, inq *domain.FacultyInquiry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, *inq)
	return n.fail
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

var testInquiryConfig = config.InquiryConfig{RateLimitMax: 100, RateLimitWindow: time.Minute}

func validInquiry() inquiry.Payload {
	return inquiry.Payload{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Phone: "+44 20 7946 0958",
		Query: "Are there openings in the mathematics department?",
	}
}

func TestSubmitStoresInquiryAndNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewInquiryService(newTestDB(t), notifier, &testInquiryConfig)

	p := validInquiry()
	p.Email = "  Ada@Example.COM "
	p.Name = " Ada Lovelace "

	ack, err := svc.Submit(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, ack)
	assert.NotZero(t, ack.ID)
	assert.NotEmpty(t, ack.Message)

	svc.Wait()
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "ada@example.com", notifier.got[0].Email)
	assert.Equal(t, "Ada Lovelace", notifier.got[0].Name)

	stored, err := svc.Get(context.Background(), uint(ack.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.InquiryStatusNew, stored.Status)
	assert.Equal(t, "ada@example.com", stored.Email)
}

func TestSubmitNotificationFailureDoesNotFailSubmission(t *testing.T) {
	notifier := &fakeNotifier{fail: errors.New("smtp down")}
	svc := NewInquiryService(newTestDB(t), notifier, &testInquiryConfig)

	ack, err := svc.Submit(context.Background(), validInquiry())
	require.NoError(t, err)
	assert.NotZero(t, ack.ID)

	svc.Wait()
	assert.Equal(t, 1, notifier.count())
}

func TestSubmitValidation(t *testing.T) {
	long := make([]byte, maxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name    string
		mutate  func(p *inquiry.Payload)
		message string
	}{
		{"blank name", func(p *inquiry.Payload) { p.Name = "   " }, "name is required"},
		{"missing query", func(p *inquiry.Payload) { p.Query = "" }, "query is required"},
		{"bad email", func(p *inquiry.Payload) { p.Email = "not-an-email" }, "invalid email address"},
		{"letters in phone", func(p *inquiry.Payload) { p.Phone = "call me maybe" }, "invalid phone number format"},
		{"short phone", func(p *inquiry.Payload) { p.Phone = "12345" }, "invalid phone number format"},
		{"long name", func(p *inquiry.Payload) { p.Name = string(long) }, "name must not exceed 100 characters"},
		{"line break in name", func(p *inquiry.Payload) { p.Name = "Eve\r\nBcc: victim@example.com" }, "name must not contain control characters"},
		{"tab in name", func(p *inquiry.Payload) { p.Name = "Eve\tAdams" }, "name must not contain control characters"},
		{"line break in phone", func(p *inquiry.Payload) { p.Phone = "+1 555\r\n0100" }, "phone must not contain control characters"},
	}

	svc := NewInquiryService(newTestDB(t), nil, &testInquiryConfig)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validInquiry()
			tt.mutate(&p)

			_, err := svc.Submit(context.Background(), p)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}

	list, err := svc.List(context.Background(), &ListInquiriesPayload{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitRejectsDuplicateOpenInquiry(t *testing.T) {
	svc := NewInquiryService(newTestDB(t), nil, &testInquiryConfig)
	ctx := context.Background()

	ack, err := svc.Submit(ctx, validInquiry())
	require.NoError(t, err)

	again := validInquiry()
	again.Email = "ADA@example.com"
	_, err = svc.Submit(ctx, again)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, DuplicateInquiryMessage, appErr.Message)

	// Once staff have replied the sender may ask again.
	_, err = svc.UpdateStatus(ctx, uint(ack.ID), domain.InquiryStatusReplied)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, again)
	assert.NoError(t, err)
}

func TestSubmitRateLimited(t *testing.T) {
	cfg := config.InquiryConfig{RateLimitMax: 1, RateLimitWindow: time.Hour}
	svc := NewInquiryService(newTestDB(t), nil, &cfg)
	ctx := context.Background()

	ack, err := svc.Submit(ctx, validInquiry())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, uint(ack.ID), domain.InquiryStatusReplied)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, validInquiry())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRateLimited, apperrors.CodeOf(err))

	other := validInquiry()
	other.Email = "grace@example.com"
	_, err = svc.Submit(ctx, other)
	assert.NoError(t, err)
}

func TestSubmitDuplicateDoesNotUseRateLimit(t *testing.T) {
	cfg := config.InquiryConfig{RateLimitMax: 2, RateLimitWindow: time.Hour}
	svc := NewInquiryService(newTestDB(t), nil, &cfg)
	ctx := context.Background()

	ack, err := svc.Submit(ctx, validInquiry())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Submit(ctx, validInquiry())
		assert.True(t, apperrors.IsConflict(err), "attempt %d: %v", i, err)
	}

	_, err = svc.UpdateStatus(ctx, uint(ack.ID), domain.InquiryStatusReplied)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, validInquiry())
	assert.NoError(t, err)
}

func TestSubmitRejectsHeaderInjectionInName(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewInquiryService(newTestDB(t), notifier, &testInquiryConfig)

	p := validInquiry()
	p.Name = "Eve\r\nBcc: victim@example.com\r\nX-Injected: 1"
	ack, err := svc.Submit(context.Background(), p)
	svc.Wait()

	assert.Nil(t, ack)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
	assert.Zero(t, notifier.count())

	list, err := svc.List(context.Background(), &ListInquiriesPayload{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListFiltersAndPages(t *testing.T) {
	svc := NewInquiryService(newTestDB(t), nil, &testInquiryConfig)
	ctx := context.Background()

	var ids []int
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		p := validInquiry()
		p.Email = email
		ack, err := svc.Submit(ctx, p)
		require.NoError(t, err)
		ids = append(ids, ack.ID)
	}
	_, err := svc.UpdateStatus(ctx, uint(ids[0]), domain.InquiryStatusRead)
	require.NoError(t, err)

	all, err := svc.List(ctx, &ListInquiriesPayload{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	page, err := svc.List(ctx, &ListInquiriesPayload{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	read, err := svc.List(ctx, &ListInquiriesPayload{Status: domain.InquiryStatusRead})
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, ids[0], read[0].ID)
	assert.NotNil(t, read[0].UpdatedAt)

	_, err = svc.List(ctx, &ListInquiriesPayload{Status: "archived"})
	assert.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))
}

func TestGetAndUpdateStatusErrors(t *testing.T) {
	svc := NewInquiryService(newTestDB(t), nil, &testInquiryConfig)
	ctx := context.Background()

	_, err := svc.Get(ctx, 42)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.UpdateStatus(ctx, 42, domain.InquiryStatusRead)
	assert.True(t, apperrors.IsNotFound(err))

	ack, err := svc.Submit(ctx, validInquiry())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, uint(ack.ID), "archived")
	assert.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))

	res, err := svc.UpdateStatus(ctx, uint(ack.ID), " READ ")
	require.NoError(t, err)
	assert.Equal(t, domain.InquiryStatusRead, res.Status)
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)
	res, err := NewHealthService("Faculty Inquiry API", db).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", res.Status)
	assert.Equal(t, "ok", res.Database)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res, err = NewHealthService("Faculty Inquiry API", db).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", res.Status)
	assert.Equal(t, "unreachable", res.Database)
}
