package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// HeaderFileName carries the path-escaped file name alongside the raw body.
const HeaderFileName = "X-File-Name"

// Events receives the lifecycle notifications of one transport operation.
// The Manager implements it.
type Events interface {
	OnProgress(id string, loaded, total int64)
	OnComplete(id string, statusCode int)
	OnError(id string, err error)
	OnAbort(id string)
}

// Transport performs exactly one upload request per call. It emits zero or
// more progress notifications with non-decreasing loaded counts followed by
// exactly one terminal notification. OnAbort is the terminal notification if
// and only if ctx was cancelled before the request completed.
// Upload blocks until the terminal notification has been delivered.
type Transport interface {
	Upload(ctx context.Context, id string, file File, events Events)
}

// HTTPTransport uploads a file as the raw body of a single POST request.
type HTTPTransport struct {
	client           *http.Client
	endpoint         string
	progressInterval time.Duration
	logger           *slog.Logger
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithProgressInterval sets the minimum time between progress notifications.
// Zero reports every read.
func WithProgressInterval(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.progressInterval = d
	}
}

// WithTransportLogger configures logging. A nil logger disables logging.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *HTTPTransport) {
		t.logger = orDiscard(logger)
	}
}

// NewHTTPTransport creates a transport posting to endpoint.
func NewHTTPTransport(endpoint string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:           http.DefaultClient,
		endpoint:         endpoint,
		progressInterval: 100 * time.Millisecond,
		logger:           orDiscard(nil),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Endpoint returns the upload URL.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// Upload implements Transport.
func (t *HTTPTransport) Upload(ctx context.Context, id string, file File, events Events) {
	if ctx.Err() != nil {
		events.OnAbort(id)
		return
	}

	src, err := file.Open()
	if err != nil {
		events.OnError(id, fmt.Errorf("opening %s: %w", file.Name(), err))
		return
	}
	defer src.Close()

	total := file.Size()
	pr := newProgressReader(src, total, t.progressInterval, func(loaded int64) {
		events.OnProgress(id, loaded, total)
	})

	var body io.Reader = pr
	if total == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		events.OnError(id, fmt.Errorf("building request: %w", err))
		return
	}
	req.ContentLength = total
	if ct := file.ContentType(); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	req.Header.Set(HeaderFileName, url.PathEscape(file.Name()))

	t.logger.Debug("upload started", "id", id, "file", file.Name(), "size", total)
	resp, err := t.client.Do(req)
	// The client may still be reading the body from its write loop; no
	// progress may be reported after the terminal notification.
	pr.close()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			t.logger.Debug("upload aborted", "id", id)
			events.OnAbort(id)
			return
		}
		t.logger.Warn("upload failed", "id", id, "error", err)
		events.OnError(id, err)
		return
	}
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	// The exchange is only done once the response body is read; a cancel
	// that lands before then still aborts.
	if ctx.Err() != nil {
		t.logger.Debug("upload aborted while reading response", "id", id)
		events.OnAbort(id)
		return
	}
	if err != nil {
		t.logger.Warn("reading upload response failed", "id", id, "error", err)
		events.OnError(id, fmt.Errorf("reading response: %w", err))
		return
	}

	t.logger.Debug("upload finished", "id", id, "status", resp.StatusCode)
	events.OnComplete(id, resp.StatusCode)
}

// progressReader counts bytes read and reports them, throttled by interval.
// The final count is always reported.
type progressReader struct {
	mu       sync.Mutex
	r        io.Reader
	total    int64
	loaded   int64
	reported int64
	interval time.Duration
	last     time.Time
	report   func(int64)
	closed   bool
}

func newProgressReader(r io.Reader, total int64, interval time.Duration, report func(int64)) *progressReader {
	return &progressReader{r: r, total: total, interval: interval, report: report, reported: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return n, err
	}
	p.loaded += int64(n)
	done := err == io.EOF || (p.total > 0 && p.loaded >= p.total)
	if n > 0 || done {
		if done || p.interval <= 0 || time.Since(p.last) >= p.interval {
			p.emitLocked()
		}
	}
	return n, err
}

func (p *progressReader) emitLocked() {
	if p.loaded == p.reported {
		return
	}
	p.reported = p.loaded
	p.last = time.Now()
	p.report(p.loaded)
}

func (p *progressReader) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
