package interference

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FetchMode selects what a blocked request yields.
type FetchMode string

const (
	// FetchReject fails the request with ErrRequestBlocked.
	FetchReject FetchMode = "reject"
	// FetchNoop answers with an empty 204 response.
	FetchNoop FetchMode = "noop"
)

// DefaultSweepInterval is how often Sweeper.Run scans the document.
const DefaultSweepInterval = 5 * time.Second

// ErrRequestBlocked is returned for requests to extension URLs in FetchReject mode.
var ErrRequestBlocked = errors.New("extension request blocked")

// ParseFetchMode validates a fetch mode name.
func ParseFetchMode(s string) (FetchMode, error) {
	switch m := FetchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case FetchReject, FetchNoop:
		return m, nil
	}
	return "", fmt.Errorf("unknown fetch mode %q", s)
}

// Transport is an http.RoundTripper that never sends requests whose URL
// matches the denylist.
type Transport struct {
	// Base performs real requests. Nil means http.DefaultTransport.
	Base   http.RoundTripper
	Filter *Filter
	Mode   FetchMode
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	target := req.URL.String()
	if !t.Filter.BlocksRequest(target) {
		base := t.Base
		if base == nil {
			base = http.DefaultTransport
		}
		return base.RoundTrip(req)
	}

	if req.Body != nil {
		_ = req.Body.Close()
	}
	if t.Mode == FetchNoop {
		return &http.Response{
			Status:        "204 No Content",
			StatusCode:    http.StatusNoContent,
			Proto:         "HTTP/1.1",
			ProtoMajor:    1,
			ProtoMinor:    1,
			Header:        make(http.Header),
			Body:          http.NoBody,
			ContentLength: 0,
			Request:       req,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRequestBlocked, target)
}

// Client returns an *http.Client whose transport filters extension URLs.
func (f *Filter) Client(base http.RoundTripper, mode FetchMode, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Base: base, Filter: f, Mode: mode},
	}
}

// Opener is the XHR open surface.
type Opener interface {
	Open(method, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(method, url string) error

func (fn OpenerFunc) Open(method, url string) error { return fn(method, url) }

type filteredOpener struct {
	next   Opener
	filter *Filter
}

// Opener wraps next so that opening an extension URL is a silent no-op.
func (f *Filter) Opener(next Opener) Opener {
	return &filteredOpener{next: next, filter: f}
}

func (o *filteredOpener) Open(method, url string) error {
	if o.filter.BlocksRequest(url) {
		return nil
	}
	return o.next.Open(method, url)
}
