package inquiry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultResetDelay is how long the confirmation stays up after a successful submission.
const DefaultResetDelay = 3 * time.Second

var (
	// ErrSubmitDisabled is returned when Submit is called outside the Idle state.
	ErrSubmitDisabled = errors.New("inquiry: submit is disabled while a submission is in progress")
	// ErrFormClosed is returned when Submit is called after Close.
	ErrFormClosed = errors.New("inquiry: form is closed")
)

// State is the lifecycle position of a Form.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Field names one of the inquiry inputs.
type Field int

const (
	FieldName Field = iota
	FieldEmail
	FieldPhone
	FieldQuery
)

// Fields lists every inquiry input in display order.
var Fields = []Field{FieldName, FieldEmail, FieldPhone, FieldQuery}

var fieldByStructName = map[string]Field{
	"Name":  FieldName,
	"Email": FieldEmail,
	"Phone": FieldPhone,
	"Query": FieldQuery,
}

func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldEmail:
		return "email"
	case FieldPhone:
		return "phone"
	case FieldQuery:
		return "query"
	default:
		return "unknown"
	}
}

// NoticeKind distinguishes confirmation notices from error notices.
type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota
	NoticeError
)

// Notice is a transient, user-visible message emitted by a Form.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// SuccessMessage is the confirmation text shown after a submission is accepted.
const SuccessMessage = "Thank you! Your inquiry has been submitted."

// Submitter sends a payload to the collaborator. *Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, p Payload) (*Ack, error)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

// FormOption configures a Form.
type FormOption func(*Form)

// WithNotifier registers the side channel receiving success and error notices.
func WithNotifier(fn func(Notice)) FormOption {
	return func(f *Form) { f.notify = fn }
}

// WithCloseHandler registers the callback asking the host to close the containing view.
func WithCloseHandler(fn func()) FormOption {
	return func(f *Form) { f.onClose = fn }
}

// WithResetDelay overrides DefaultResetDelay.
func WithResetDelay(d time.Duration) FormOption {
	return func(f *Form) { f.resetDelay = d }
}

// WithAfterFunc replaces the scheduler used for the post-success reset.
func WithAfterFunc(fn AfterFunc) FormOption {
	return func(f *Form) { f.afterFunc = fn }
}

// Form holds the state of one inquiry form instance.
type Form struct {
	submitter  Submitter
	notify     func(Notice)
	onClose    func()
	resetDelay time.Duration
	afterFunc  AfterFunc

	mu     sync.Mutex
	state  State
	values Payload
	timer  Timer
	gen    uint64
	closed bool
}

// NewForm returns an empty form in the Idle state.
func NewForm(s Submitter, opts ...FormOption) *Form {
	f := &Form{
		submitter:  s,
		notify:     func(Notice) {},
		onClose:    func() {},
		resetDelay: DefaultResetDelay,
		afterFunc: func(d time.Duration, fn func()) Timer {
			return time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current lifecycle state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Values returns a copy of the entered values.
func (f *Form) Values() Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

// Set updates a single field. Edits are accepted in every state.
func (f *Form) Set(field Field, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch field {
	case FieldName:
		f.values.Name = value
	case FieldEmail:
		f.values.Email = value
	case FieldPhone:
		f.values.Phone = value
	case FieldQuery:
		f.values.Query = value
	}
}

// CanSubmit reports whether the submit control should be enabled.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && f.state == StateIdle
}

// Submit validates the entered values and, if they pass, sends them.
// It blocks for the duration of the outbound call.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFormClosed
	}
	if f.state != StateIdle {
		f.mu.Unlock()
		return ErrSubmitDisabled
	}
	payload := f.values
	if err := payload.Validate(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = StateSubmitting
	f.mu.Unlock()

	_, err := f.submitter.Submit(ctx, payload)

	f.mu.Lock()
	if f.closed {
		f.state = StateIdle
		f.mu.Unlock()
		return err
	}
	if err != nil {
		f.state = StateIdle
		f.mu.Unlock()
		f.notify(Notice{Kind: NoticeError, Message: userMessage(err)})
		return err
	}
	f.state = StateSubmitted
	f.gen++
	gen := f.gen
	f.timer = f.afterFunc(f.resetDelay, func() { f.reset(gen) })
	f.mu.Unlock()

	f.notify(Notice{Kind: NoticeSuccess, Message: SuccessMessage})
	return nil
}

// reset runs when the confirmation delay elapses. A callback from a stopped or
// superseded timer must not change the form.
func (f *Form) reset(gen uint64) {
	f.mu.Lock()
	if f.closed || f.state != StateSubmitted || f.gen != gen {
		f.mu.Unlock()
		return
	}
	f.values = Payload{}
	f.state = StateIdle
	f.timer = nil
	f.mu.Unlock()

	f.onClose()
}

// Close detaches the form from its view. A pending reset is cancelled and
// further submissions are refused.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if f.state == StateSubmitted {
		f.values = Payload{}
		f.state = StateIdle
	}
}

func userMessage(err error) string {
	var serr *SubmissionError
	if errors.As(err, &serr) && serr.Message != "" {
		return serr.Message
	}
	return FallbackMessage
}
