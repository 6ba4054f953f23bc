package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"lmsinquiry/internal/services"
	"lmsinquiry/internal/util"
	apperrors "lmsinquiry/pkg/errors"
	"lmsinquiry/pkg/inquiry"
)

// submitInquiryRequestBody is the body of POST /inquiries
type submitInquiryRequestBody struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Query *string `json:"query,omitempty"`
}

func (body *submitInquiryRequestBody) validate() (err error) {
	if body.Name == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("name", "body"))
	}
	if body.Email == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("email", "body"))
	}
	if body.Phone == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("phone", "body"))
	}
	if body.Query == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("query", "body"))
	}
	return
}

// loginRequestBody is the body of POST /api/auth/login
type loginRequestBody struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (body *loginRequestBody) validate() (err error) {
	if body.Username == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("username", "body"))
	}
	if body.Password == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("password", "body"))
	}
	return
}

// createUserRequestBody is the body of POST /api/auth/users
type createUserRequestBody struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
	IsStaff  *bool   `json:"is_staff,omitempty"`
}

func (body *createUserRequestBody) validate() (err error) {
	if body.Username == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("username", "body"))
	}
	if body.Email == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("email", "body"))
	}
	if body.Password == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("password", "body"))
	}
	if body.Email != nil {
		err = goa.MergeErrors(err, goa.ValidateFormat("body.email", *body.Email, goa.FormatEmail))
	}
	return
}

// updateStatusRequestBody is the body of PATCH /api/inquiries/{id}/status
type updateStatusRequestBody struct {
	Status *string `json:"status,omitempty"`
}

func (body *updateStatusRequestBody) validate() (err error) {
	if body.Status == nil {
		err = goa.MergeErrors(err, goa.MissingFieldError("status", "body"))
	}
	return
}

type validator interface {
	validate() error
}

// decodeBody decodes and validates the request body into body.
func decodeBody(r *http.Request, body validator) error {
	if err := goahttp.RequestDecoder(r).Decode(body); err != nil {
		if err == io.EOF {
			return goa.MissingPayloadError()
		}
		return goa.DecodePayloadError(err.Error())
	}
	return body.validate()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	res, err := s.health.Check(ctx)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, res)
}

func (s *Server) handleSubmitInquiry(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	var body submitInquiryRequestBody
	if err := decodeBody(r, &body); err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	ack, err := s.inquiries.Submit(ctx, inquiry.Payload{
		Name:  *body.Name,
		Email: *body.Email,
		Phone: *body.Phone,
		Query: *body.Query,
	})
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusCreated, ack)
}

func (s *Server) handleListInquiries(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	q := r.URL.Query()
	p := &services.ListInquiriesPayload{Status: q.Get("status")}

	var err error
	if p.Skip, err = queryInt(q.Get("skip"), 0); err != nil {
		s.encodeError(ctx, w, apperrors.Wrap(apperrors.ErrCodeBadRequest, "skip must be an integer", err))
		return
	}
	if p.Limit, err = queryInt(q.Get("limit"), 100); err != nil {
		s.encodeError(ctx, w, apperrors.Wrap(apperrors.ErrCodeBadRequest, "limit must be an integer", err))
		return
	}

	res, err := s.inquiries.List(ctx, p)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, res)
}

func (s *Server) handleGetInquiry(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	id, err := s.pathID(r)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	res, err := s.inquiries.Get(ctx, id)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, res)
}

func (s *Server) handleUpdateInquiryStatus(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	id, err := s.pathID(r)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	var body updateStatusRequestBody
	if err := decodeBody(r, &body); err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	res, err := s.inquiries.UpdateStatus(ctx, id, *body.Status)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	var body loginRequestBody
	if err := decodeBody(r, &body); err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	res, err := s.auth.Login(ctx, &services.LoginPayload{Username: *body.Username, Password: *body.Password})
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, res)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	res, err := s.auth.Me(ctx)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, res)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	var body createUserRequestBody
	if err := decodeBody(r, &body); err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	p := &services.CreateUserPayload{
		Username: *body.Username,
		Email:    *body.Email,
		Password: *body.Password,
		FullName: body.FullName,
		IsActive: body.IsActive,
	}
	if body.IsAdmin != nil {
		p.IsAdmin = *body.IsAdmin
	}
	if body.IsStaff != nil {
		p.IsStaff = *body.IsStaff
	}
	res, err := s.auth.CreateUser(ctx, p)
	if err != nil {
		s.encodeError(ctx, w, err)
		return
	}
	s.encode(ctx, w, http.StatusCreated, res)
}

func (s *Server) pathID(r *http.Request) (uint, error) {
	raw := s.mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, apperrors.New(apperrors.ErrCodeBadRequest, "invalid inquiry id")
	}
	return uint(id), nil
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func retryAfterSeconds(e *util.RateLimitError) string {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
