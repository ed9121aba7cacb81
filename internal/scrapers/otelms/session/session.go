// Package session logs into otelms over plain HTTP and hands the resulting
// cookies to a browser page so both transports share one identity.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/components/browser"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/scrapers/otelms/errs"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/dubonzi/otelresty"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_bridge_login = "bridge.login"
	report_bridge_sync  = "bridge.sync-cookies"
)

const loginPath = "/login/DoLogIn/"

// failure markers the login page shows next to the form
var failureMarkers = []string{"incorrect", "invalid", "error", "failed", "incorrecto", "inválido"}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type Credentials struct {
	Username string
	Password string
}

type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RetryCount is the number of retries on transient statuses, RetryWait the first backoff.
	RetryCount int
	RetryWait  time.Duration
	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64
}

type Bridge struct {
	BaseURL *url.URL
	Http    *resty.Client

	tel telemetry.API
}

func NewBridge(opts Options, tel telemetry.API) (*Bridge, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.BaseURL)

	tel = telemetry.NewScopedAPI("session", tel)

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("session: parse base url: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/"))
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	client.SetHeader("origin", strings.TrimSuffix(opts.BaseURL, "/"))
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseURL.Hostname()))

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	retryWait := opts.RetryWait
	if retryWait <= 0 {
		retryWait = time.Second
	}
	client.SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryWait * 10).
		AddRetryCondition(func(res *resty.Response, err error) bool {
			return res != nil && retryableStatus[res.StatusCode()]
		})

	if opts.RequestsPerSecond > 0 {
		// burst >= 1 means no request is ever dropped, only delayed
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 2)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)
	otelresty.TraceClient(client, otelresty.WithTracerName("otelms-http"))

	return &Bridge{
		BaseURL: baseURL,
		Http:    client,
		tel:     tel,
	}, nil
}

func finalURL(res *resty.Response) string {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL.String()
	}
	return res.Request.URL
}

func onLoginPage(location string) bool {
	return strings.Contains(strings.ToLower(location), "login")
}

func hasFailureMarker(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Login posts the credentials to the login form. It returns an error
// wrapping errs.ErrAuthentication when the site rejects them and
// errs.ErrNetwork when the site cannot be reached.
func (b *Bridge) Login(ctx context.Context, creds Credentials) error {
	res, err := b.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"login":    creds.Username,
			"password": creds.Password,
			"action":   "login",
		}).
		Post(loginPath)
	if err != nil {
		b.tel.ReportBroken(report_bridge_login, err)
		return errs.Network(err, "session: login")
	}
	if res.IsError() {
		b.tel.ReportBroken(report_bridge_login, res.Status())
		return errs.Network(nil, "session: login: status %d", res.StatusCode())
	}

	location := finalURL(res)
	if !onLoginPage(location) {
		b.tel.ReportDebug("login succeeded", location)
		return nil
	}

	if hasFailureMarker(res.String()) {
		b.tel.ReportWarning(report_bridge_login, "credentials rejected", location)
		return errs.Authentication("session: login rejected for %s", creds.Username)
	}
	if location == res.Request.URL || strings.HasSuffix(location, loginPath) {
		b.tel.ReportWarning(report_bridge_login, "still on login page", location)
		return errs.Authentication("session: login did not leave %s", location)
	}

	// redirected somewhere that still says "login" without an error message,
	// the session cookie is usually valid anyway so keep going
	b.tel.ReportWarning(report_bridge_login, "login outcome ambiguous", location)
	return nil
}

// ExportCookies returns the cookies the jar holds for the base url, scoped
// to the base host and the root path.
func (b *Bridge) ExportCookies() []browser.Cookie {
	jar := b.Http.GetClient().Jar
	if jar == nil {
		return nil
	}
	host := b.BaseURL.Hostname()
	out := []browser.Cookie{}
	for _, c := range jar.Cookies(b.BaseURL) {
		out = append(out, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   host,
			Path:     "/",
			Secure:   b.BaseURL.Scheme == "https",
			HTTPOnly: true,
		})
	}
	return out
}

// Sync imports the session cookies into page.
func (b *Bridge) Sync(ctx context.Context, page browser.Page) error {
	cookies := b.ExportCookies()
	if len(cookies) == 0 {
		b.tel.ReportWarning(report_bridge_sync, "no cookies to sync")
		return nil
	}
	err := page.AddCookies(ctx, cookies)
	if err != nil {
		b.tel.ReportBroken(report_bridge_sync, err)
		return errs.Network(err, "session: sync cookies")
	}
	b.tel.ReportCount(report_bridge_sync, int64(len(cookies)))
	return nil
}
