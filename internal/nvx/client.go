package nvx

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const loginPath = "/userlogin.html"

// Options configures a Client.
type Options struct {
	Host               string
	Port               int
	Login              string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	RateLimitRPS       float64 // 0 disables rate limiting

	// BaseURL overrides the https://host:port root, mainly for tests.
	BaseURL string
}

// Client talks to the REST API of one NVX endpoint and owns its login session.
type Client struct {
	baseURL    string
	host       string
	port       int
	httpClient *http.Client
	limiter    *rate.Limiter

	loginMu  sync.Mutex // serializes login exchanges and credential changes
	login    string
	password string
	session  atomic.Pointer[session]
}

// NewClient creates a new NVX client. No network traffic happens until the
// first request.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = 443
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	host, port := opts.Host, opts.Port
	if u, err := url.Parse(baseURL); err == nil && opts.BaseURL != "" {
		host = u.Hostname()
		if p, err := strconv.Atoi(u.Port()); err == nil {
			port = p
		}
	}

	// NVX endpoints ship with self-signed certificates
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	return &Client{
		baseURL: baseURL,
		host:    host,
		port:    port,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			// An expired session is reported as a redirect to the login page
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter:  limiter,
		login:    opts.Login,
		password: opts.Password,
	}
}

// BaseURL returns the device root URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Host returns the device host name or address
func (c *Client) Host() string {
	return c.host
}

// Port returns the device HTTPS port
func (c *Client) Port() int {
	return c.port
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// SetCredentials replaces the login credentials. The current session is
// dropped if the credentials changed.
func (c *Client) SetCredentials(login, password string) {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.login == login && c.password == password {
		return
	}
	c.login, c.password = login, password
	c.session.Store(nil)
}

// Authenticated reports whether a session is currently held
func (c *Client) Authenticated() bool {
	return c.session.Load() != nil
}

// Invalidate drops the current session
func (c *Client) Invalidate() {
	c.session.Store(nil)
}

// EnsureSession logs in unless a session for the current credentials exists.
func (c *Client) EnsureSession(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if s := c.session.Load(); s != nil && s.credentials == credentialsHash(c.login, c.password) {
		return nil
	}
	return c.loginLocked(ctx)
}

// Login performs a fresh login exchange, replacing any current session.
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	c.session.Store(nil)

	if c.login == "" || c.password == "" {
		return fmt.Errorf("%w: missing credentials", ErrAuthFailed)
	}

	form := "login=" + url.QueryEscape(c.login) + "&passwd=" + url.QueryEscape(c.password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, strings.NewReader(form))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setOrigin(req)

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	s := sessionFromResponse(resp.Header, credentialsHash(c.login, c.password))
	if s == nil {
		return fmt.Errorf("%w: no session cookie returned", ErrAuthFailed)
	}
	c.session.Store(s)

	log.Debug().Str("device", c.baseURL).Bool("xsrf", s.token != "").Msg("Logged in to NVX device")
	return nil
}

func (c *Client) setOrigin(req *http.Request) {
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
}

// do sends an authenticated request and classifies the response status.
// The caller closes the body on success.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	s := c.session.Load()
	if s == nil {
		return nil, ErrSessionExpired
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(path, "/"), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setOrigin(req)
	s.apply(req)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrSessionExpired, resp.StatusCode)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		resp.Body.Close()
		if strings.Contains(resp.Header.Get("Location"), "login") {
			return nil, fmt.Errorf("%w: redirected to login", ErrSessionExpired)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp, nil
}

// GetPath fetches path and returns the whole decoded body.
func (c *Client) GetPath(ctx context.Context, path string) (Document, error) {
	return withReauth(ctx, c, isSessionError, func(ctx context.Context) (Document, error) {
		resp, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return Decode(resp.Body)
	})
}

// Fetch retrieves the document of one API group. A group the firmware does
// not implement yields a document for which IsUnsupported is true.
func (c *Client) Fetch(ctx context.Context, spec GroupSpec) (Document, error) {
	body, err := c.GetPath(ctx, spec.Path)
	if err != nil {
		return nil, err
	}
	if doc, ok := Lookup(body, spec.Segments()...); ok {
		return doc, nil
	}
	if raw, err := json.Marshal(body); err == nil && strings.Contains(strings.ToLower(string(raw)), UnsupportedMarker) {
		return UnsupportedMarker, nil
	}
	return nil, fmt.Errorf("%w: %s missing from response", ErrMalformedResponse, spec.Path)
}

// Send posts a command and checks every action result. A negative status
// on the first attempt triggers one re-login and retry.
func (c *Client) Send(ctx context.Context, cmd Command) (ActionResults, error) {
	body, err := json.Marshal(cmd.Body)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return withReauth(ctx, c, isCommandRetryable, func(ctx context.Context) (ActionResults, error) {
		resp, err := c.do(ctx, http.MethodPost, cmd.Path, body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		results, err := decodeResults(resp.Body)
		if err != nil {
			return nil, err
		}
		return results, results.Err()
	})
}
