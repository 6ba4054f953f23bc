package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/domain"
	"lmsinquiry/internal/logging"
	"lmsinquiry/internal/metrics"
	"lmsinquiry/internal/util"
	apperrors "lmsinquiry/pkg/errors"
	"lmsinquiry/pkg/inquiry"
)

const (
	maxNameLength  = 100
	maxQueryLength = 5000
	minPhoneLength = 7
	maxPhoneLength = 20

	// DuplicateInquiryMessage is returned when an open inquiry already exists for an email.
	DuplicateInquiryMessage = "An inquiry from this email is already awaiting review"
	acceptedMessage         = "Thank you for your interest! Our faculty team will be in touch soon."
)

var phonePattern = regexp.MustCompile(`^[\d\s\+\-\(\)\.]+$`)

// noControlChars rejects C0 control characters and DEL in single-line fields.
var noControlChars = func() string {
	var b strings.Builder
	for r := rune(0); r < 0x20; r++ {
		b.WriteRune(r)
	}
	b.WriteRune(0x7f)
	return "excludesall=" + b.String()
}()

// Notifier tells staff about a newly accepted inquiry
type Notifier interface {
	NotifyInquiry(ctx context.Context, inq *domain.FacultyInquiry) error
}

// InquiryService implements faculty inquiry intake and review
type InquiryService struct {
	db       *gorm.DB
	notifier Notifier
	limiter  *util.RateLimiter
	log      *logrus.Entry

	notifyTimeout time.Duration
	pending       sync.WaitGroup
}

// NewInquiryService creates a new inquiry service
func NewInquiryService(db *gorm.DB, notifier Notifier, cfg *config.InquiryConfig) *InquiryService {
	return &InquiryService{
		db:            db,
		notifier:      notifier,
		limiter:       util.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		log:           logging.For("inquiry"),
		notifyTimeout: 30 * time.Second,
	}
}

// Submit validates, stores and acknowledges a faculty inquiry
func (s *InquiryService) Submit(ctx context.Context, p inquiry.Payload) (*inquiry.Ack, error) {
	in := normalizeInquiry(p)
	s.log.Infof("Submit request: name=%s, email=%s", in.Name, in.Email)

	if err := validateInquiry(in); err != nil {
		s.log.Warnf("Submit failed: validation error: %v", err)
		metrics.RecordInquirySubmission("invalid")
		return nil, err
	}

	record := &domain.FacultyInquiry{
		Name:   in.Name,
		Email:  in.Email,
		Phone:  in.Phone,
		Query:  in.Query,
		Status: domain.InquiryStatusNew,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		start := time.Now()
		err := tx.Model(&domain.FacultyInquiry{}).
			Where("email = ? AND status = ?", in.Email, domain.InquiryStatusNew).
			Count(&open).Error
		metrics.RecordDBQuery("count_open_inquiries", time.Since(start), err)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to check existing inquiries", err)
		}
		if open > 0 {
			return apperrors.New(apperrors.ErrCodeConflict, DuplicateInquiryMessage)
		}

		// Only submissions that could be stored count against the sender.
		if err := s.limiter.Allow(in.Email); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeRateLimited, err.Error(), err)
		}

		start = time.Now()
		err = tx.Create(record).Error
		metrics.RecordDBQuery("insert_inquiry", time.Since(start), err)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.New(apperrors.ErrCodeConflict, DuplicateInquiryMessage)
		}
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to save inquiry", err)
		}
		return nil
	})
	if err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.ErrCodeConflict:
			s.log.Infof("Submit rejected: open inquiry already exists for email=%s", in.Email)
			metrics.RecordInquirySubmission("duplicate")
		case apperrors.ErrCodeRateLimited:
			s.log.Warnf("Submit failed: %v", err)
			metrics.RecordInquirySubmission("rate_limited")
		default:
			s.log.WithError(err).Error("Submit failed: database error")
			metrics.RecordInquirySubmission("error")
		}
		return nil, err
	}

	s.log.Infof("Submit successful: id=%d, email=%s", record.ID, record.Email)
	metrics.RecordInquirySubmission("accepted")

	// Notify staff asynchronously; delivery failures never fail the submission.
	if s.notifier != nil {
		s.pending.Add(1)
		go func(inq domain.FacultyInquiry) {
			defer s.pending.Done()
			nctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
			defer cancel()
			if err := s.notifier.NotifyInquiry(nctx, &inq); err != nil {
				s.log.WithError(err).Warnf("Failed to send notification for inquiry id=%d", inq.ID)
				return
			}
			s.log.Debugf("Notification sent for inquiry id=%d", inq.ID)
		}(*record)
	}

	return &inquiry.Ack{
		ID:      int(record.ID),
		Message: acceptedMessage,
	}, nil
}

// Wait blocks until in-flight notifications have finished.
func (s *InquiryService) Wait() {
	s.pending.Wait()
}

// CleanupLoop prunes idle rate-limit entries every interval until ctx is done.
func (s *InquiryService) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup()
			s.log.Debugf("Rate limiter cleanup: %d identifiers tracked", s.limiter.Len())
		}
	}
}

// List returns inquiries newest first
func (s *InquiryService) List(ctx context.Context, p *ListInquiriesPayload) ([]*InquiryResult, error) {
	skip, limit := p.Skip, p.Limit
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	s.log.Infof("List request: skip=%d, limit=%d, status=%q", skip, limit, p.Status)

	query := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if p.Status != "" {
		if !domain.ValidInquiryStatus(p.Status) {
			return nil, apperrors.New(apperrors.ErrCodeBadRequest, fmt.Sprintf("unknown status %q", p.Status))
		}
		query = query.Where("status = ?", p.Status)
	}

	var inquiries []domain.FacultyInquiry
	start := time.Now()
	err := query.Offset(skip).Limit(limit).Find(&inquiries).Error
	metrics.RecordDBQuery("list_inquiries", time.Since(start), err)
	if err != nil {
		s.log.WithError(err).Error("List failed: database error")
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to fetch inquiries", err)
	}

	results := make([]*InquiryResult, len(inquiries))
	for i := range inquiries {
		results[i] = convertInquiryToResult(&inquiries[i])
	}

	s.log.Infof("List successful: returned %d inquiries", len(results))
	return results, nil
}

// Get returns a single inquiry
func (s *InquiryService) Get(ctx context.Context, id uint) (*InquiryResult, error) {
	inq, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertInquiryToResult(inq), nil
}

// UpdateStatus moves an inquiry to new, read or replied
func (s *InquiryService) UpdateStatus(ctx context.Context, id uint, status string) (*InquiryResult, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !domain.ValidInquiryStatus(status) {
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, fmt.Sprintf("unknown status %q", status))
	}

	inq, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	inq.Status = status
	start := time.Now()
	err = s.db.WithContext(ctx).Save(inq).Error
	metrics.RecordDBQuery("update_inquiry", time.Since(start), err)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.New(apperrors.ErrCodeConflict, DuplicateInquiryMessage)
	}
	if err != nil {
		s.log.WithError(err).Errorf("UpdateStatus failed: id=%d", id)
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to update inquiry", err)
	}

	s.log.Infof("UpdateStatus successful: id=%d, status=%s", id, status)
	metrics.RecordInquiryStatusChange(status)
	return convertInquiryToResult(inq), nil
}

func (s *InquiryService) find(ctx context.Context, id uint) (*domain.FacultyInquiry, error) {
	var inq domain.FacultyInquiry
	start := time.Now()
	err := s.db.WithContext(ctx).First(&inq, id).Error
	metrics.RecordDBQuery("get_inquiry", time.Since(start), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeNotFound, "inquiry not found")
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to fetch inquiry", err)
	}
	return &inq, nil
}

func normalizeInquiry(p inquiry.Payload) inquiry.Payload {
	return inquiry.Payload{
		Name:  strings.TrimSpace(p.Name),
		Email: strings.ToLower(strings.TrimSpace(p.Email)),
		Phone: strings.TrimSpace(p.Phone),
		Query: strings.TrimSpace(p.Query),
	}
}

// validateInquiry applies the collaborator's rules on top of the payload's
// own required-field checks.
func validateInquiry(p inquiry.Payload) error {
	if err := p.Validate(); err != nil {
		var verr *inquiry.ValidationError
		if errors.As(err, &verr) && len(verr.Fields) > 0 {
			fe := verr.Fields[0]
			if fe.Rule == "email" {
				return apperrors.New(apperrors.ErrCodeValidation, "invalid email address")
			}
			return apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("%s is required", fe.Field))
		}
		return apperrors.Wrap(apperrors.ErrCodeValidation, "invalid inquiry", err)
	}
	for _, f := range []struct{ name, value string }{
		{"name", p.Name},
		{"email", p.Email},
		{"phone", p.Phone},
	} {
		if err := validate.Var(f.value, noControlChars); err != nil {
			return apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("%s must not contain control characters", f.name))
		}
	}
	if utf8.RuneCountInString(p.Name) > maxNameLength {
		return apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("name must not exceed %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(p.Query) > maxQueryLength {
		return apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("query must not exceed %d characters", maxQueryLength))
	}
	if !phonePattern.MatchString(p.Phone) || len(p.Phone) < minPhoneLength || len(p.Phone) > maxPhoneLength {
		return apperrors.New(apperrors.ErrCodeValidation, "invalid phone number format")
	}
	return nil
}
