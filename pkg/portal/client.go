// Package portal implements the authenticated session client for the CFMMC
// investor-service portal: the CAPTCHA-gated login handshake, the per-request
// token-continuity protocol, and the report parameter/export calls.
package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	errs "cfmmcdl/pkg/errors"
	"cfmmcdl/pkg/logger"
)

// Challenge is one CAPTCHA round: the image to solve plus the anti-forgery
// token the answering login POST must echo. It is valid until the attempt
// resolves; a failed attempt needs a fresh BeginLogin.
type Challenge struct {
	Token string
	Image []byte
}

// Client owns one authenticated portal session for one account. All calls
// serialize on an internal mutex: the portal rotates the anti-forgery token
// on every response, so two in-flight requests would silently corrupt the
// session. Construct one Client per account and discard it after logout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	accountNo  string
	password   string
	log        logger.Logger

	mu            sync.Mutex
	token         string
	authenticated bool
}

// Option customizes a Client.
type Option func(*Client)

// WithUserAgent overrides the browser identification header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a session client for one account. The session starts
// unauthenticated; call BeginLogin/AttemptLogin to establish it.
func NewClient(baseURL, accountNo, password string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if accountNo == "" {
		return nil, fmt.Errorf("account number is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "Mozilla/5.0 (Windows NT 6.1; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/72.0.3626.121 Safari/537.36",
		accountNo: accountNo,
		password:  password,
		log:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("account", accountNo)
	return c, nil
}

// AccountNo returns the account this session belongs to.
func (c *Client) AccountNo() string { return c.accountNo }

// Authenticated reports whether the session holds a live login.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// BeginLogin opens a fresh session, fetches the login page, and returns the
// anti-forgery token together with the CAPTCHA image. Any network or parse
// failure is reported as portal-unavailable.
func (c *Client) BeginLogin(ctx context.Context) (*Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A fresh cookie jar so a retried login never inherits stale session
	// cookies from the previous attempt.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindPortalUnavailable, "failed to reset session", err).WithAccount(c.accountNo)
	}
	c.httpClient.Jar = jar
	c.token = ""
	c.authenticated = false

	body, contentType, err := c.get(ctx, loginPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindPortalUnavailable, "failed to fetch login page", err).WithAccount(c.accountNo)
	}
	decoded, err := decodeBody(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, errs.Wrap(errs.KindPortalUnavailable, "failed to decode login page", err).WithAccount(c.accountNo)
	}
	page, err := parseLoginPage(decoded)
	if err != nil {
		return nil, errs.Wrap(errs.KindPortalUnavailable, "failed to scrape login page", err).WithAccount(c.accountNo)
	}

	imageURL, err := c.resolve(page.CaptchaSrc)
	if err != nil {
		return nil, errs.Wrap(errs.KindPortalUnavailable, "bad captcha image URL", err).WithAccount(c.accountNo)
	}
	image, _, err := c.getURL(ctx, imageURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindPortalUnavailable, "failed to fetch captcha image", err).WithAccount(c.accountNo)
	}

	c.log.DebugWithFields("login challenge fetched", map[string]interface{}{
		"captcha_bytes": len(image),
	})
	return &Challenge{Token: page.Token, Image: image}, nil
}

// AttemptLogin posts credentials plus the CAPTCHA answer. On success the
// session becomes authenticated and stores the rotated token. A CAPTCHA
// rejection is retryable via a new BeginLogin; a credential rejection is
// terminal for the account.
func (c *Client) AttemptLogin(ctx context.Context, token, vericode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	form := url.Values{
		tokenField:        {token},
		"showSaveCookies": {""},
		"userID":          {c.accountNo},
		"password":        {c.password},
		"vericode":        {vericode},
	}
	body, err := c.postForm(ctx, loginPath, form)
	if err != nil {
		return errs.Wrap(errs.KindPortalUnavailable, "login request failed", err).WithAccount(c.accountNo)
	}

	if strings.Contains(body, captchaRejectedMarker) {
		return errs.New(errs.KindCaptchaRejected, "portal rejected the captcha answer").WithAccount(c.accountNo)
	}
	if strings.Contains(body, badCredentialsMarker) {
		return errs.New(errs.KindInvalidCredentials, "portal rejected the credentials").WithAccount(c.accountNo)
	}

	next, err := parseToken(strings.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindPortalUnavailable, "login response carried no token", err).WithAccount(c.accountNo)
	}
	c.token = next
	c.authenticated = true
	c.log.Info("login succeeded")
	return nil
}

// Logout posts logout when authenticated and clears the stored token. It is
// an idempotent no-op otherwise.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authenticated {
		return nil
	}

	form := url.Values{tokenField: {c.token}}
	_, err := c.postForm(ctx, logoutPath, form)

	c.token = ""
	c.authenticated = false

	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	c.log.Debug("logged out")
	return nil
}

// SelectParameters posts the report parameter selection (trade date or month
// plus query type) and stores the rotated token from the response. The next
// Export call returns the spreadsheet for this selection.
func (c *Client) SelectParameters(ctx context.Context, tradeDate string, queryType QueryType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authenticated {
		return fmt.Errorf("session is not authenticated")
	}

	form := url.Values{
		tokenField:  {c.token},
		"tradeDate": {tradeDate},
		"byType":    {string(queryType)},
	}
	body, err := c.postForm(ctx, setParameterPath, form)
	if err != nil {
		return fmt.Errorf("parameter selection failed: %w", err)
	}

	next, err := parseToken(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("parameter response carried no token: %w", err)
	}
	c.token = next
	return nil
}

// ExportDaily fetches the daily spreadsheet for the current selection.
func (c *Client) ExportDaily(ctx context.Context) ([]byte, error) {
	return c.export(ctx, dailyExportPath)
}

// ExportMonthly fetches the monthly spreadsheet for the current selection.
func (c *Client) ExportMonthly(ctx context.Context) ([]byte, error) {
	return c.export(ctx, monthlyExportPath)
}

func (c *Client) export(ctx context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authenticated {
		return nil, fmt.Errorf("session is not authenticated")
	}
	data, _, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet export failed: %w", err)
	}
	return data, nil
}

// HTTP plumbing. Callers hold c.mu.

func (c *Client) get(ctx context.Context, path string) ([]byte, string, error) {
	return c.getURL(ctx, c.baseURL+path)
}

func (c *Client) getURL(ctx context.Context, fullURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, "", err
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	raw, contentType, err := c.do(req)
	if err != nil {
		return "", err
	}
	decoded, err := decodeBody(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) do(req *http.Request) ([]byte, string, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Connection", "keep-alive")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("portal returned status %d for %s", resp.StatusCode, req.URL.Path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.DebugWithFields("portal request completed", map[string]interface{}{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) resolve(src string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
