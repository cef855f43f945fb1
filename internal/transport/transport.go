// Package transport performs the network half of a live fetch.
package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/payload/internal/errors"
)

// Response data types understood by Decode.
const (
	DataTypeJSON = "json"
	DataTypeHTML = "html"
	DataTypeText = "text"
)

// DefaultMaxBodyBytes caps a response body when no limit is configured.
const DefaultMaxBodyBytes int64 = 8 << 20

// Request is one outgoing call. Query is used for GET, Body for the other
// methods.
type Request struct {
	URL      string
	Method   string
	DataType string
	Query    url.Values
	Body     []byte
	Header   http.Header
	// Timeout of zero means no deadline beyond the caller's context.
	Timeout time.Duration
	// CacheRequest false adds a cache-busting parameter to GET requests.
	CacheRequest bool
}

// Response is a received reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport sends requests. A non-2xx reply is returned together with a
// *errors.TransportError.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Send calls f.
func (f Func) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Options configures HTTP.
type Options struct {
	// BaseURL resolves relative request URLs.
	BaseURL      string
	UserAgent    string
	MaxBodyBytes int64
	Client       *http.Client
	// Now stamps cache-busting parameters.
	Now func() time.Time
}

// HTTP is the net/http transport.
type HTTP struct {
	client    *http.Client
	base      *url.URL
	userAgent string
	maxBody   int64
	now       func() time.Time
}

// NewHTTP creates an HTTP transport.
func NewHTTP(opts Options) (*HTTP, error) {
	t := &HTTP{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		now:       opts.Now,
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	if t.maxBody <= 0 {
		t.maxBody = DefaultMaxBodyBytes
	}
	if t.now == nil {
		t.now = time.Now
	}
	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid base url %q", opts.BaseURL))
		}
		t.base = base
	}

	return t, nil
}

// Send performs req.
func (t *HTTP) Send(ctx context.Context, req *Request) (*Response, error) {
	target, err := t.resolve(req)
	if err != nil {
		return nil, errors.NewTransportError(0, errors.KindError, err)
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if method != http.MethodGet && req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, target.String(), body)
	if err != nil {
		return nil, errors.NewTransportError(0, errors.KindError, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", accept(req.DataType))
	}
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}
	if !req.CacheRequest && method == http.MethodGet {
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewTransportError(0, classify(reqCtx, err), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, errors.NewTransportError(resp.StatusCode, classify(reqCtx, err), err)
	}
	if int64(len(data)) > t.maxBody {
		return nil, errors.NewTransportError(resp.StatusCode, errors.KindError,
			fmt.Errorf("response body exceeds %d bytes", t.maxBody))
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, errors.NewTransportError(resp.StatusCode, errors.KindError,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	return out, nil
}

func (t *HTTP) resolve(req *Request) (*url.URL, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if t.base != nil {
		u = t.base.ResolveReference(u)
	}

	if !strings.EqualFold(req.Method, http.MethodGet) && req.Method != "" {
		return u, nil
	}
	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if !req.CacheRequest {
		q.Set("_", strconv.FormatInt(t.now().UnixMilli(), 10))
	}
	u.RawQuery = q.Encode()

	return u, nil
}

func accept(dataType string) string {
	switch dataType {
	case DataTypeHTML:
		return "text/html, */*; q=0.01"
	case DataTypeText:
		return "text/plain, */*; q=0.01"
	default:
		return "application/json, text/javascript, */*; q=0.01"
	}
}

func classify(ctx context.Context, err error) errors.TransportKind {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.KindTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.KindTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.KindAbort
	}

	return errors.KindError
}
