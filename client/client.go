package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lithammer/shortuuid/v4"

	"github.com/pkichain/pkichain/models"
)

const (
	DefaultBaseURL = "http://localhost:3000/api/v1"
	DefaultTimeout = 30 * time.Second

	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"

	MyPlanPath          = "/plans/my-plan"
	PurchasePlanPath    = "/plans/purchase"
	CheckoutSessionPath = "/plans/create-checkout-session"
	VerifyPaymentPath   = "/plans/verify-payment"

	CertificatesPath        = "/certificates"
	GenerateCertificatePath = "/certificates/generate"
	SubmitCertificatePath   = "/certificates/submit"
	CertificateStatusPath   = "/certificates/status/{id}"
	CancelCertificatePath   = "/certificates/cancel/{id}"

	ApplicationJson = "application/json"
	headerRequestID = "X-Request-ID"
)

// ErrUnauthorized is returned whenever the backend answers 401. The session
// has already been invalidated when it is returned.
var ErrUnauthorized = errors.New("session expired or invalid, please log in again")

// TokenSource hands out the bearer token of the current session.
type TokenSource interface {
	Token() (string, error)
	Invalidate() error
}

type Client struct {
	client     *resty.Client
	tokens     TokenSource
	baseURL    string
	debug      bool
	timeout    time.Duration
	userAgent  string
	httpClient *http.Client
}

type Option func(*Client)

type UnexpectedResponseContentTypeError struct {
	ContentType string
	Body        []byte
}

func (e *UnexpectedResponseContentTypeError) Error() string {
	return fmt.Sprintf("unexpected response content type: %s", e.ContentType)
}

// APIError is a non-2xx answer or an envelope with success=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) BackendMessage() string { return e.Message }

func (e *APIError) HTTPStatus() int { return e.StatusCode }

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func NewClient(baseURL string, tokens TokenSource, options ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("could not parse api url '%s': %w", baseURL, err)
	}
	c := Client{
		tokens:    tokens,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		timeout:   DefaultTimeout,
		userAgent: "pkichain-cli",
	}
	for _, option := range options {
		option(&c)
	}
	c.prepareClient()
	return &c, nil
}

func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func (c *Client) prepareClient() {
	r := resty.New()
	if c.httpClient != nil {
		r = resty.NewWithClient(c.httpClient)
	}
	r.SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("User-Agent", c.userAgent).
		SetHeader("Accept", ApplicationJson).
		SetDebug(c.debug).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			req.SetHeader(headerRequestID, shortuuid.New())
			return nil
		})
	c.client = r
}

func (c *Client) anonymous(ctx context.Context) *resty.Request {
	return c.client.R().SetContext(ctx).SetHeader("Content-Type", ApplicationJson)
}

func (c *Client) authorized(ctx context.Context) (*resty.Request, error) {
	if c.tokens == nil {
		return nil, ErrUnauthorized
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return c.anonymous(ctx).SetAuthToken(token), nil
}

// check turns transport failures, 401s, non-JSON bodies and unsuccessful
// envelopes into errors. A 401 invalidates the session when authenticated.
func (c *Client) check(resp *resty.Response, err error, authenticated bool) error {
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusUnauthorized && authenticated {
		slog.Warn("backend rejected the session token", slog.String("url", resp.Request.URL))
		if c.tokens != nil {
			if err := c.tokens.Invalidate(); err != nil {
				slog.Error("failed to clear session", slog.Any("error", err))
			}
		}
		return ErrUnauthorized
	}
	contentType := resp.Header().Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), ApplicationJson) {
		if resp.IsError() {
			return &APIError{StatusCode: resp.StatusCode()}
		}
		return &UnexpectedResponseContentTypeError{ContentType: contentType, Body: resp.Body()}
	}
	var status models.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return fmt.Errorf("failed to parse response json: %w", err)
	}
	if resp.IsError() || !status.Success {
		msg := status.Error
		if msg == "" {
			msg = status.Message
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return nil
}

func decodeData[T any](resp *resty.Response) (*T, error) {
	var env models.Envelope[T]
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("failed to parse response json: %w", err)
	}
	return &env.Data, nil
}

func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	return c.authenticate(ctx, LoginPath, req)
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return c.authenticate(ctx, RegisterPath, req)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*models.AuthResponse, error) {
	resp, err := c.anonymous(ctx).SetBody(body).Post(path)
	if err := c.check(resp, err, false); err != nil {
		return nil, err
	}
	var auth models.AuthResponse
	if err := json.Unmarshal(resp.Body(), &auth); err != nil {
		return nil, fmt.Errorf("failed to parse auth response json: %w", err)
	}
	if auth.Token == "" {
		return nil, errors.New("auth response did not contain a token")
	}
	return &auth, nil
}

// MyPlan returns the caller's active plan. A caller without a plan gets an
// *APIError with status 404.
func (c *Client) MyPlan(ctx context.Context) (*models.Plan, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.Get(MyPlanPath)
	if err := c.check(resp, err, true); err != nil {
		return nil, err
	}
	data, err := decodeData[models.MyPlanResponse](resp)
	if err != nil {
		return nil, err
	}
	return &data.Plan, nil
}

func (c *Client) GenerateCertificate(ctx context.Context, body models.GenerateRequest) (*models.GenerateResponse, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetBody(body).Post(GenerateCertificatePath)
	if err := c.check(resp, err, true); err != nil {
		return nil, err
	}
	return decodeData[models.GenerateResponse](resp)
}

func (c *Client) SubmitCertificate(ctx context.Context, body models.SubmitRequest) error {
	req, err := c.authorized(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(body).Post(SubmitCertificatePath)
	return c.check(resp, err, true)
}

func (c *Client) ListCertificates(ctx context.Context) ([]models.Certificate, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.Get(CertificatesPath)
	if err := c.check(resp, err, true); err != nil {
		return nil, err
	}
	data, err := decodeData[models.CertificateList](resp)
	if err != nil {
		return nil, err
	}
	return data.Certificates, nil
}

// CertificateStatus asks the backend to refresh an order's status with the CA.
func (c *Client) CertificateStatus(ctx context.Context, id string) (*models.CertificateStatusResponse, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetPathParam("id", id).Get(CertificateStatusPath)
	if err := c.check(resp, err, true); err != nil {
		return nil, err
	}
	return decodeData[models.CertificateStatusResponse](resp)
}

func (c *Client) CancelCertificate(ctx context.Context, id string) error {
	req, err := c.authorized(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetPathParam("id", id).Post(CancelCertificatePath)
	return c.check(resp, err, true)
}

func (c *Client) PurchasePlan(ctx context.Context, body models.PurchasePlanRequest) error {
	req, err := c.authorized(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(body).Post(PurchasePlanPath)
	return c.check(resp, err, true)
}

// CreateCheckoutSession starts a payment for a paid plan and returns the
// checkout URL the user has to open.
func (c *Client) CreateCheckoutSession(ctx context.Context, planType string) (string, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.SetBody(models.CheckoutSessionRequest{PlanType: planType}).Post(CheckoutSessionPath)
	if err := c.check(resp, err, true); err != nil {
		return "", err
	}
	var session models.CheckoutSessionResponse
	if err := json.Unmarshal(resp.Body(), &session); err != nil {
		return "", fmt.Errorf("failed to parse checkout response json: %w", err)
	}
	if session.URL == "" {
		return "", errors.New("checkout response did not contain a url")
	}
	return session.URL, nil
}

func (c *Client) VerifyPayment(ctx context.Context, sessionID string) error {
	req, err := c.authorized(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(models.VerifyPaymentRequest{SessionID: sessionID}).Post(VerifyPaymentPath)
	return c.check(resp, err, true)
}
