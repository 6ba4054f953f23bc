package inquiry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	goahttp "goa.design/goa/v3/http"
)

// SubmitPath is the collaborator route accepting inquiries.
const SubmitPath = "/inquiries"

// ErrorKind classifies a failed submission.
type ErrorKind int

const (
	// KindTransport means the request never produced a response.
	KindTransport ErrorKind = iota
	// KindCollaborator means the collaborator answered with a non-2xx status.
	KindCollaborator
	// KindMalformed means a 2xx response carried a body that could not be decoded.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindCollaborator:
		return "collaborator"
	case KindMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// SubmissionError is returned by Client.Submit. Message is safe to show to the user.
type SubmissionError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inquiry submission failed (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("inquiry submission failed (%s): %s", e.Kind, e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Client posts inquiries to the collaborator.
type Client struct {
	baseURL string
	doer    goahttp.Doer
}

// NewClient returns a client for the collaborator rooted at baseURL.
// A nil doer falls back to http.DefaultClient.
func NewClient(baseURL string, doer goahttp.Doer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
	}
}

// Submit sends p in a single request. There is no retry.
func (c *Client) Submit(ctx context.Context, p Payload) (*Ack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SubmitPath, nil)
	if err != nil {
		return nil, &SubmissionError{Kind: KindTransport, Message: FallbackMessage, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := goahttp.RequestEncoder(req).Encode(&p); err != nil {
		return nil, &SubmissionError{Kind: KindTransport, Message: FallbackMessage, Err: err}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &SubmissionError{Kind: KindTransport, Message: FallbackMessage, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeFailure(resp)
	}

	// Only a body declared as JSON is parsed; any other 2xx resolves the call.
	var ack Ack
	if !isJSON(resp.Header.Get("Content-Type")) {
		return &ack, nil
	}
	if err := goahttp.ResponseDecoder(resp).Decode(&ack); err != nil && !errors.Is(err, io.EOF) {
		return nil, &SubmissionError{
			Kind:    KindMalformed,
			Status:  resp.StatusCode,
			Message: FallbackMessage,
			Err:     err,
		}
	}
	return &ack, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func decodeFailure(resp *http.Response) *SubmissionError {
	serr := &SubmissionError{
		Kind:    KindCollaborator,
		Status:  resp.StatusCode,
		Message: FallbackMessage,
	}
	var body ErrorResponse
	if err := goahttp.ResponseDecoder(resp).Decode(&body); err != nil {
		serr.Err = fmt.Errorf("status %d: %w", resp.StatusCode, err)
		return serr
	}
	if body.Message != nil && *body.Message != "" {
		serr.Message = *body.Message
	}
	serr.Err = fmt.Errorf("status %d", resp.StatusCode)
	return serr
}
