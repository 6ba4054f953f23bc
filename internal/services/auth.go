package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"goa.design/goa/v3/security"
	"gorm.io/gorm"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/domain"
	"lmsinquiry/internal/logging"
	"lmsinquiry/internal/metrics"
	"lmsinquiry/internal/util"
	apperrors "lmsinquiry/pkg/errors"
)

// AuthService implements login and user administration
type AuthService struct {
	db  *gorm.DB
	cfg *config.AuthConfig
	log *logrus.Entry
}

// NewAuthService creates a new auth service
func NewAuthService(db *gorm.DB, cfg *config.AuthConfig) *AuthService {
	return &AuthService{db: db, cfg: cfg, log: logging.For("auth")}
}

// JWTAuth implements the authorization logic for the JWT security scheme.
// On success the returned context carries the user.
func (s *AuthService) JWTAuth(ctx context.Context, token string, schema *security.JWTScheme) (context.Context, error) {
	claims, err := util.ValidateToken(s.cfg, token)
	if err != nil {
		if errors.Is(err, util.ErrExpiredToken) {
			return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "token expired")
		}
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid or expired token")
	}

	var user domain.User
	if err := s.db.WithContext(ctx).Where("username = ?", claims.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user not found")
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to get user", err)
	}

	if !user.IsActive {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user account is inactive")
	}

	if schema != nil && len(schema.RequiredScopes) > 0 {
		hasScope := false
		for _, requiredScope := range schema.RequiredScopes {
			if user.HasScope(requiredScope) {
				hasScope = true
				break
			}
		}
		if !hasScope {
			return nil, apperrors.New(apperrors.ErrCodeForbidden, "insufficient permissions")
		}
	}

	return WithUser(ctx, &user), nil
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, p *LoginPayload) (*LoginResult, error) {
	username := strings.TrimSpace(p.Username)
	password := strings.TrimSpace(p.Password)
	if err := validate.Struct(&LoginPayload{Username: username, Password: password}); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "username and password are required")
	}

	s.log.Infof("Login attempt for user: %s", username)

	db := s.db.WithContext(ctx)
	var user domain.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		metrics.RecordAuthAttempt(false)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Infof("Login failed: user '%s' not found", username)
			return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "incorrect username or password")
		}
		s.log.WithError(err).Errorf("Login failed: database error for user '%s'", username)
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to get user", err)
	}

	if !util.CheckPasswordHash(password, user.HashedPassword) {
		s.log.Infof("Login failed: invalid password for user '%s'", username)
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "incorrect username or password")
	}

	if !user.IsActive {
		s.log.Infof("Login failed: user '%s' is inactive", username)
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user account is inactive")
	}

	now := time.Now().UTC()
	if err := db.Model(&user).Update("last_login", now).Error; err != nil {
		s.log.WithError(err).Warnf("Failed to record last login for user '%s'", username)
	}

	token, err := util.GenerateToken(s.cfg, &user)
	if err != nil {
		s.log.WithError(err).Errorf("Login failed: token generation error for user '%s'", username)
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to generate token", err)
	}

	s.log.Infof("Login successful for user '%s' (id=%d, admin=%v, staff=%v)", username, user.ID, user.IsAdmin, user.IsStaff)
	metrics.RecordAuthAttempt(true)

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.cfg.TokenExpiryMinutes * 60,
	}, nil
}

// Me returns the authenticated user
func (s *AuthService) Me(ctx context.Context) (*UserResult, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "not authenticated")
	}
	s.log.Debugf("Me request for user: %s (id=%d)", user.Username, user.ID)
	return convertUserToResult(user), nil
}

// CreateUser creates a staff or admin account
func (s *AuthService) CreateUser(ctx context.Context, p *CreateUserPayload) (*UserResult, error) {
	in := *p
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Password = strings.TrimSpace(in.Password)

	s.log.Infof("CreateUser request: username=%s, email=%s", in.Username, in.Email)

	if err := validate.Struct(&in); err != nil {
		s.log.Infof("CreateUser failed: validation error: %v", err)
		return nil, apperrors.Wrap(apperrors.ErrCodeValidation, "username, a valid email and a password of at least 6 characters are required", err)
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&domain.User{}).Where("username = ?", in.Username).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to check username", err)
	}
	if count > 0 {
		s.log.Infof("CreateUser failed: username '%s' already exists", in.Username)
		return nil, apperrors.New(apperrors.ErrCodeConflict, "username already registered")
	}
	if err := db.Model(&domain.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to check email", err)
	}
	if count > 0 {
		s.log.Infof("CreateUser failed: email '%s' already exists", in.Email)
		return nil, apperrors.New(apperrors.ErrCodeConflict, "email already registered")
	}

	hashedPassword, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to hash password", err)
	}

	user := domain.User{
		Username:       in.Username,
		Email:          in.Email,
		HashedPassword: hashedPassword,
		IsActive:       in.IsActive == nil || *in.IsActive,
		IsAdmin:        in.IsAdmin,
		IsStaff:        in.IsStaff,
	}
	if in.FullName != nil {
		fullName := strings.TrimSpace(*in.FullName)
		user.FullName = &fullName
	}

	if err := db.Create(&user).Error; err != nil {
		s.log.WithError(err).Error("CreateUser failed: database error")
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalError, "failed to create user", err)
	}

	s.log.Infof("CreateUser successful: username=%s, id=%d", user.Username, user.ID)
	return convertUserToResult(&user), nil
}

// EnsureAdmin creates the configured admin account unless the username is
// already taken. It reports whether a user was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, admin *config.AdminConfig) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Where("username = ?", admin.Username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check for admin user: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	fullName := admin.FullName
	_, err := s.CreateUser(ctx, &CreateUserPayload{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
		FullName: &fullName,
		IsAdmin:  true,
		IsStaff:  true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
