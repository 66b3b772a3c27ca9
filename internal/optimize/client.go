package optimize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	maxResponse    = 8 << 20
)

// ErrLoginFailed is returned when the server rejects the credentials.
var ErrLoginFailed = errors.New("optimize: login failed")

// ServerError is an error reported by the optimize endpoint.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Client calls a remote optimize endpoint, keeping the session in a cookie jar.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// ClientOption customises Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying client. A nil jar gets a public suffix aware one.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient constructs a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("optimize: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("optimize: base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: 2 * time.Minute},
		userAgent: "routectl",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Login signs in through the login form so later calls carry the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	loginURL := c.resolve("/login")

	// The GET seeds the session and CSRF cookies.
	req, err := c.newRequest(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("optimize: fetch login page: %w", err)
	}
	drain(resp)

	form := url.Values{
		"username":   {username},
		"password":   {password},
		"csrf_token": {c.csrfToken()},
	}
	req, err = c.newRequest(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	noFollow := *c.http
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err = noFollow.Do(req)
	if err != nil {
		return fmt.Errorf("optimize: submit login: %w", err)
	}
	drain(resp)

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return ErrLoginFailed
	}
	if loc, err := resp.Location(); err == nil && loc.Path == "/login" {
		return ErrLoginFailed
	}
	return nil
}

// Optimize posts the addresses and returns the decoded success response.
func (c *Client) Optimize(ctx context.Context, addresses []string) (Response, error) {
	body, err := json.Marshal(Request{Addresses: addresses})
	if err != nil {
		return Response{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.resolve("/optimize"), bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.csrfToken(); token != "" {
		req.Header.Set(csrfHeaderName, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponse)).Decode(&out); err != nil {
		if resp.StatusCode >= 400 {
			return Response{}, &ServerError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return Response{}, fmt.Errorf("optimize: decode response: %w", err)
	}
	if out.Error != "" || resp.StatusCode >= 400 {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Response{}, &ServerError{Status: resp.StatusCode, Message: msg}
	}
	if out.Summary == nil {
		return Response{}, errors.New("optimize: response has no summary")
	}
	return out, nil
}

func (c *Client) resolve(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) csrfToken() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	return ""
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponse))
	resp.Body.Close()
}
