package inquiry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsinquiry/pkg/inquiry"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

type collaborator struct {
	server *httptest.Server
	calls  atomic.Int32
	bodies chan inquiry.Payload
}

func newCollaborator(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *collaborator {
	t.Helper()
	c := &collaborator{bodies: make(chan inquiry.Payload, 8)}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls.Add(1)
		var p inquiry.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		c.bodies <- p
		handler(w, r)
	}))
	t.Cleanup(c.server.Close)
	return c
}

func respondJSON(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) inquiry.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: fn}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// fire runs every timer that has not been stopped, even stopped ones when
// includeStopped is set, to simulate a callback racing with Stop.
func (c *fakeClock) fire(includeStopped bool) {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		if t.stopped && !includeStopped {
			continue
		}
		t.fn()
	}
}

func validPayload() inquiry.Payload {
	return inquiry.Payload{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Phone: "+44 20 7946 0958",
		Query: "I'd like to teach an analytical engines course.",
	}
}

func fill(f *inquiry.Form, p inquiry.Payload) {
	f.Set(inquiry.FieldName, p.Name)
	f.Set(inquiry.FieldEmail, p.Email)
	f.Set(inquiry.FieldPhone, p.Phone)
	f.Set(inquiry.FieldQuery, p.Query)
}

type recorder struct {
	mu      sync.Mutex
	notices []inquiry.Notice
	closes  int
}

func (r *recorder) notify(n inquiry.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

func (r *recorder) last() inquiry.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return inquiry.Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func newForm(c *collaborator, clock *fakeClock, rec *recorder) *inquiry.Form {
	return inquiry.NewForm(
		inquiry.NewClient(c.server.URL, c.server.Client()),
		inquiry.WithAfterFunc(clock.AfterFunc),
		inquiry.WithNotifier(rec.notify),
		inquiry.WithCloseHandler(rec.close),
	)
}

// -----------------------------------------------------------------------------
// Validation guard
// -----------------------------------------------------------------------------

func TestFormRejectsMissingFieldsWithoutNetworkCall(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusCreated, `{"id":1}`))

	for _, field := range inquiry.Fields {
		t.Run(field.String(), func(t *testing.T) {
			rec := &recorder{}
			f := newForm(c, &fakeClock{}, rec)
			fill(f, validPayload())
			f.Set(field, "")

			err := f.Submit(context.Background())

			var verr *inquiry.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.Has(field), "expected %s to be reported", field)
			assert.Equal(t, inquiry.StateIdle, f.State())
			assert.Empty(t, rec.notices)
		})
	}
	assert.Zero(t, c.calls.Load())
}

func TestFormRejectsMalformedEmailWithoutNetworkCall(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusCreated, `{"id":1}`))

	for _, email := range []string{"plainaddress", "@nouser.com", "user@", "user name@example.com"} {
		t.Run(email, func(t *testing.T) {
			f := newForm(c, &fakeClock{}, &recorder{})
			p := validPayload()
			p.Email = email
			fill(f, p)

			err := f.Submit(context.Background())

			var verr *inquiry.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.Has(inquiry.FieldEmail))
			assert.Equal(t, inquiry.StateIdle, f.State())
		})
	}
	assert.Zero(t, c.calls.Load())
}

// -----------------------------------------------------------------------------
// Success path
// -----------------------------------------------------------------------------

func TestFormSuccessResetsAfterDelayAndClosesOnce(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusCreated, `{"id":7,"message":"ok"}`))
	clock := &fakeClock{}
	rec := &recorder{}
	f := newForm(c, clock, rec)
	fill(f, validPayload())

	require.NoError(t, f.Submit(context.Background()))

	assert.Equal(t, inquiry.StateSubmitted, f.State())
	assert.False(t, f.CanSubmit())
	assert.Equal(t, inquiry.Notice{Kind: inquiry.NoticeSuccess, Message: inquiry.SuccessMessage}, rec.last())
	assert.Equal(t, validPayload(), <-c.bodies)
	require.Len(t, clock.delays, 1)
	assert.Equal(t, inquiry.DefaultResetDelay, clock.delays[0])
	assert.Zero(t, rec.closes)

	clock.fire(false)
	clock.fire(true)

	assert.Equal(t, inquiry.StateIdle, f.State())
	assert.Equal(t, inquiry.Payload{}, f.Values())
	assert.Equal(t, 1, rec.closes)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestFormCloseCancelsPendingReset(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusOK, ``))
	clock := &fakeClock{}
	rec := &recorder{}
	f := newForm(c, clock, rec)
	fill(f, validPayload())

	require.NoError(t, f.Submit(context.Background()))
	f.Close()

	require.Len(t, clock.timers, 1)
	assert.True(t, clock.timers[0].stopped)

	clock.fire(true)

	assert.Zero(t, rec.closes)
	assert.ErrorIs(t, f.Submit(context.Background()), inquiry.ErrFormClosed)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestFormWithRealTimer(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusCreated, `{}`))
	closed := make(chan struct{}, 1)
	f := inquiry.NewForm(
		inquiry.NewClient(c.server.URL, c.server.Client()),
		inquiry.WithResetDelay(10*time.Millisecond),
		inquiry.WithCloseHandler(func() { closed <- struct{}{} }),
	)
	fill(f, validPayload())

	require.NoError(t, f.Submit(context.Background()))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close handler was not called")
	}
	assert.Equal(t, inquiry.StateIdle, f.State())
	assert.Equal(t, inquiry.Payload{}, f.Values())
}

func TestFormAcceptsPlainTextSuccessBody(t *testing.T) {
	c := newCollaborator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("Created"))
	})
	clock := &fakeClock{}
	rec := &recorder{}
	f := newForm(c, clock, rec)
	fill(f, validPayload())

	require.NoError(t, f.Submit(context.Background()))

	assert.Equal(t, inquiry.StateSubmitted, f.State())
	assert.Equal(t, inquiry.Notice{Kind: inquiry.NoticeSuccess, Message: inquiry.SuccessMessage}, rec.last())
	require.Len(t, clock.timers, 1)
}

// -----------------------------------------------------------------------------
// Failure paths
// -----------------------------------------------------------------------------

func TestFormUndecodableJSONSuccessIsMalformed(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusCreated, `{not json`))
	clock := &fakeClock{}
	rec := &recorder{}
	f := newForm(c, clock, rec)
	fill(f, validPayload())

	err := f.Submit(context.Background())

	var serr *inquiry.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, inquiry.KindMalformed, serr.Kind)
	assert.Equal(t, http.StatusCreated, serr.Status)
	assert.Equal(t, inquiry.Notice{Kind: inquiry.NoticeError, Message: inquiry.FallbackMessage}, rec.last())
	assert.Equal(t, inquiry.StateIdle, f.State())
	assert.Equal(t, validPayload(), f.Values())
	assert.Empty(t, clock.timers)
}

func TestFormCollaboratorMessageIsSurfacedVerbatim(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusConflict, `{"code":"CONFLICT","message":"Duplicate email"}`))
	rec := &recorder{}
	f := newForm(c, &fakeClock{}, rec)
	fill(f, validPayload())

	err := f.Submit(context.Background())

	var serr *inquiry.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, inquiry.KindCollaborator, serr.Kind)
	assert.Equal(t, http.StatusConflict, serr.Status)
	assert.Equal(t, inquiry.Notice{Kind: inquiry.NoticeError, Message: "Duplicate email"}, rec.last())
	assert.Equal(t, validPayload(), f.Values())
	assert.Equal(t, inquiry.StateIdle, f.State())
	assert.Zero(t, rec.closes)
}

func TestFormUnstructuredFailureUsesFallback(t *testing.T) {
	c := newCollaborator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	rec := &recorder{}
	f := newForm(c, &fakeClock{}, rec)
	fill(f, validPayload())

	require.Error(t, f.Submit(context.Background()))

	assert.Equal(t, inquiry.FallbackMessage, rec.last().Message)
	assert.Equal(t, validPayload(), f.Values())
}

func TestFormTransportFailureUsesFallback(t *testing.T) {
	c := newCollaborator(t, respondJSON(http.StatusCreated, `{}`))
	url := c.server.URL
	c.server.Close()

	rec := &recorder{}
	f := inquiry.NewForm(
		inquiry.NewClient(url, nil),
		inquiry.WithNotifier(rec.notify),
		inquiry.WithAfterFunc((&fakeClock{}).AfterFunc),
	)
	fill(f, validPayload())

	err := f.Submit(context.Background())

	var serr *inquiry.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, inquiry.KindTransport, serr.Kind)
	assert.Equal(t, inquiry.Notice{Kind: inquiry.NoticeError, Message: inquiry.FallbackMessage}, rec.last())
	assert.Equal(t, inquiry.StateIdle, f.State())
	assert.True(t, f.CanSubmit())
}

func TestFormResubmitAfterFailureSendsFreshRequest(t *testing.T) {
	var attempt atomic.Int32
	c := newCollaborator(t, func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) == 1 {
			respondJSON(http.StatusInternalServerError, `{}`)(w, r)
			return
		}
		respondJSON(http.StatusCreated, `{"id":2}`)(w, r)
	})
	f := newForm(c, &fakeClock{}, &recorder{})
	fill(f, validPayload())

	require.Error(t, f.Submit(context.Background()))
	require.NoError(t, f.Submit(context.Background()))

	assert.EqualValues(t, 2, c.calls.Load())
	assert.Equal(t, inquiry.StateSubmitted, f.State())
}

// -----------------------------------------------------------------------------
// Single in-flight submission
// -----------------------------------------------------------------------------

func TestFormSecondSubmitWhileSubmittingIsRejected(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 1)
	c := newCollaborator(t, func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		respondJSON(http.StatusCreated, `{"id":3}`)(w, r)
	})
	f := newForm(c, &fakeClock{}, &recorder{})
	fill(f, validPayload())

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the collaborator")
	}
	assert.Equal(t, inquiry.StateSubmitting, f.State())
	assert.False(t, f.CanSubmit())

	assert.ErrorIs(t, f.Submit(context.Background()), inquiry.ErrSubmitDisabled)

	close(release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, c.calls.Load())
}
