package pixiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"pixivcrawl/pkg/config"
	errs "pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/ratelimit"
)

// Options configures a Client. Every value is explicit; the client keeps no
// package-level session state.
type Options struct {
	Cookie    string
	UserAgent string
	Referer   string
	BaseURL   string
	Timeout   time.Duration
	Proxy     string

	// Limiter paces ajax API calls. Image downloads are not paced.
	Limiter ratelimit.Limiter
	Logger  logger.Logger

	// HTTPClient overrides the transport built from Timeout and Proxy
	HTTPClient *http.Client
}

// Client talks to the pixiv ajax API and the image CDN with one session
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	logger     logger.Logger

	mu       sync.Mutex
	listings map[AuthorID][]ArtworkID
}

// NewClient creates a new pixiv client
func NewClient(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		proxyURL, err := config.ProxyURL(opts.Proxy)
		if err != nil {
			return nil, err
		}
		if proxyURL != nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		}
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	referer := opts.Referer
	if referer == "" {
		referer = DefaultReferer
	}

	headers := map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
		"Referer":         referer,
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if cookies := config.ParseCookie(opts.Cookie); len(cookies) > 0 {
		headers["Cookie"] = config.CookieHeader(cookies)
	}

	return &Client{
		httpClient: httpClient,
		headers:    headers,
		baseURL:    normalizeBaseURL(opts.BaseURL),
		limiter:    limiter,
		logger:     log,
		listings:   make(map[AuthorID][]ArtworkID),
	}, nil
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, 0, "failed to create request", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// do sends the request and turns transport failures and non-2xx statuses
// into typed errors. The caller owns the body on success.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"url": req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, "request failed", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if envErr := rejection(resp.StatusCode, body); envErr != nil {
			return nil, envErr
		}
		apiErr := errs.FromStatus(resp.StatusCode)
		apiErr.Message = fmt.Sprintf("%s: %s", apiErr.Message, req.URL.Path)
		return nil, apiErr
	}

	return resp, nil
}

// rejection reads a pixiv {"error": true, "message": ...} envelope sent with
// a 4xx status. The request itself was refused, so retrying cannot help and
// the lookup is reported as not_found with the server's message. Auth,
// timeout and rate limit statuses keep their own meaning.
func rejection(status int, body []byte) *errs.Error {
	switch {
	case status < 400 || status > 499:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return nil
	}
	if !gjson.ValidBytes(body) {
		return nil
	}
	env := gjson.ParseBytes(body)
	if !env.Get("error").Bool() {
		return nil
	}
	msg := env.Get("message").String()
	if msg == "" {
		msg = "request rejected"
	}
	return errs.New(errs.ErrorTypeNotFound, status, msg)
}

// GetJSON fetches an ajax endpoint and returns the parsed envelope. A
// payload with "error": true is reported as not_found carrying the server
// message; callers remap it where that is not the right meaning.
func (c *Client) GetJSON(ctx context.Context, rawURL string) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return gjson.Result{}, err
	}

	resp, err := c.do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gjson.Result{}, ctxErr
		}
		return gjson.Result{}, errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body", err)
	}

	if !gjson.ValidBytes(body) {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"body_preview": preview,
		})
		return gjson.Result{}, errs.New(errs.ErrorTypeParsing, resp.StatusCode, "response is not valid JSON")
	}

	result := gjson.ParseBytes(body)
	if result.Get("error").Bool() {
		msg := result.Get("message").String()
		if msg == "" {
			msg = "request rejected"
		}
		return gjson.Result{}, errs.New(errs.ErrorTypeNotFound, resp.StatusCode, msg)
	}

	return result, nil
}

// Download streams the resource at rawURL into w and returns the number of
// bytes written. A body cut short by the server is a network error.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	sink := &writeRecorder{w: w}
	n, err := io.Copy(sink, resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		if sink.err != nil {
			return n, errs.Wrap(errs.ErrorTypeStorage, 0, "failed to write image data", sink.err)
		}
		return n, errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, "download interrupted", err)
	}

	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode,
			fmt.Sprintf("short body: got %d of %d bytes", n, resp.ContentLength), io.ErrUnexpectedEOF)
	}

	return n, nil
}

// writeRecorder remembers write errors so they are not mistaken for
// network failures.
type writeRecorder struct {
	w   io.Writer
	err error
}

func (r *writeRecorder) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil {
		r.err = err
	}
	return n, err
}
