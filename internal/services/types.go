package services

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"lmsinquiry/internal/domain"
)

var validate = validator.New()

// timestampLayout is used for every timestamp in API results
const timestampLayout = time.RFC3339

// HealthResult is returned by the health check
type HealthResult struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}

// LoginPayload carries login credentials
type LoginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the issued access token
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// CreateUserPayload describes a new staff or admin account
type CreateUserPayload struct {
	Username string  `json:"username" validate:"required,min=3,max=64"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6"`
	FullName *string `json:"full_name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	IsAdmin  bool    `json:"is_admin"`
	IsStaff  bool    `json:"is_staff"`
}

// UserResult is the public view of a user
type UserResult struct {
	ID        int     `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FullName  *string `json:"full_name,omitempty"`
	IsActive  bool    `json:"is_active"`
	IsAdmin   bool    `json:"is_admin"`
	IsStaff   bool    `json:"is_staff"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt *string `json:"updated_at,omitempty"`
	LastLogin *string `json:"last_login,omitempty"`
}

// ListInquiriesPayload pages through inquiries
type ListInquiriesPayload struct {
	Skip   int
	Limit  int
	Status string
}

// InquiryResult is the staff view of a faculty inquiry
type InquiryResult struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Query     string  `json:"query"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt *string `json:"updated_at,omitempty"`
}

func convertInquiryToResult(inq *domain.FacultyInquiry) *InquiryResult {
	result := &InquiryResult{
		ID:        int(inq.ID),
		Name:      inq.Name,
		Email:     inq.Email,
		Phone:     inq.Phone,
		Query:     inq.Query,
		Status:    inq.Status,
		CreatedAt: inq.CreatedAt.UTC().Format(timestampLayout),
	}
	if inq.UpdatedAt != nil {
		ua := inq.UpdatedAt.UTC().Format(timestampLayout)
		result.UpdatedAt = &ua
	}
	return result
}

func convertUserToResult(user *domain.User) *UserResult {
	result := &UserResult{
		ID:        int(user.ID),
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		IsActive:  user.IsActive,
		IsAdmin:   user.IsAdmin,
		IsStaff:   user.IsStaff,
		CreatedAt: user.CreatedAt.UTC().Format(timestampLayout),
	}
	if user.UpdatedAt.After(user.CreatedAt) {
		ua := user.UpdatedAt.UTC().Format(timestampLayout)
		result.UpdatedAt = &ua
	}
	if user.LastLogin != nil {
		ll := user.LastLogin.UTC().Format(timestampLayout)
		result.LastLogin = &ll
	}
	return result
}

type ctxKey int

const userCtxKey ctxKey = iota

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext returns the authenticated user, if any
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userCtxKey).(*domain.User)
	return user, ok && user != nil
}
