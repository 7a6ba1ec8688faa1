// Package httpdriver implements portal.Driver against a browser automation
// sidecar that exposes the portal flow as a small JSON API.
package httpdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"visa-slot-backend/config"
	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/parse"
	"visa-slot-backend/internal/portal"
)

// envelope models the top-level structure of every sidecar response.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type openRequest struct {
	CredentialID string `json:"credential_id"`
	Email        string `json:"email"`
	Password     string `json:"password"`
}

type openResponse struct {
	SessionID string `json:"session_id"`
}

type scanRequest struct {
	VisaType        string `json:"visa_type"`
	VisaSubType     string `json:"visa_sub_type"`
	AppointmentType string `json:"appointment_type"`
	Members         int    `json:"members"`
}

type scanSlot struct {
	Ref          string `json:"ref"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Location     string `json:"location"`
	VisaType     string `json:"visa_type"`
	VisaCategory string `json:"visa_category"`
	Availability string `json:"availability"`
}

type scanResponse struct {
	Slots []scanSlot `json:"slots"`
}

// captchaResponse carries images as base64, which encoding/json maps onto []byte.
type captchaResponse struct {
	Present     bool     `json:"present"`
	TargetText  string   `json:"target_text"`
	TargetImage []byte   `json:"target_image"`
	Tiles       [][]byte `json:"tiles"`
}

type bookRequest struct {
	SlotRef   string          `json:"slot_ref"`
	Date      string          `json:"date"`
	Time      string          `json:"time"`
	Location  string          `json:"location"`
	Applicant model.Applicant `json:"applicant"`
}

type bookResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// Driver talks to the sidecar over HTTP. Requests are paced by a token bucket
// so the portal never sees bursts from this process.
type Driver struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a sidecar driver from the portal configuration.
func New(cfg config.PortalConfig, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "portal"))

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy URL, portal requests will not use a proxy",
				zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	return &Driver{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		headers: cfg.Headers,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

var _ portal.Driver = (*Driver)(nil)

func (d *Driver) Open(ctx context.Context, cred model.Credential) (*portal.Session, error) {
	var out openResponse
	err := d.do(ctx, "open", http.MethodPost, "/sessions", openRequest{
		CredentialID: cred.ID,
		Email:        cred.Email,
		Password:     cred.Secret,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, &portal.Error{Op: "open", Err: fmt.Errorf("%w: empty session id", portal.ErrNetwork)}
	}
	return &portal.Session{ID: out.SessionID, CredentialID: cred.ID, OpenedAt: time.Now().UTC()}, nil
}

// Scan lists matching slots. Offers whose date or time cannot be understood
// are dropped with a warning rather than failing the whole scan.
func (d *Driver) Scan(ctx context.Context, s *portal.Session, c portal.Criteria) ([]portal.SlotOffer, error) {
	var out scanResponse
	err := d.do(ctx, "scan", http.MethodPost, sessionPath(s, "scan"), scanRequest{
		VisaType:        string(c.VisaType),
		VisaSubType:     string(c.VisaSubType),
		AppointmentType: string(c.AppointmentType),
		Members:         c.Members,
	}, &out)
	if err != nil {
		return nil, err
	}

	offers := make([]portal.SlotOffer, 0, len(out.Slots))
	for _, raw := range out.Slots {
		offer, err := toOffer(raw, c)
		if err != nil {
			d.log.Warn("skipping unparsable slot", zap.String("ref", raw.Ref), zap.Error(err))
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func toOffer(raw scanSlot, c portal.Criteria) (portal.SlotOffer, error) {
	date, err := parse.SlotDate(raw.Date)
	if err != nil {
		return portal.SlotOffer{}, err
	}
	tm, err := parse.SlotTime(raw.Time)
	if err != nil {
		return portal.SlotOffer{}, err
	}
	capacity, err := parse.Capacity(raw.Availability)
	if err != nil {
		return portal.SlotOffer{}, err
	}

	offer := portal.SlotOffer{
		Ref:          raw.Ref,
		Date:         date,
		Time:         tm,
		Location:     strings.TrimSpace(raw.Location),
		VisaType:     raw.VisaType,
		VisaCategory: raw.VisaCategory,
		Capacity:     capacity,
	}
	if offer.VisaType == "" {
		offer.VisaType = string(c.VisaType)
	}
	if offer.VisaCategory == "" {
		offer.VisaCategory = string(c.VisaSubType)
	}
	return offer, nil
}

func (d *Driver) Captcha(ctx context.Context, s *portal.Session) (*portal.Challenge, error) {
	var out captchaResponse
	if err := d.do(ctx, "captcha", http.MethodGet, sessionPath(s, "captcha"), nil, &out); err != nil {
		return nil, err
	}
	if !out.Present {
		return nil, nil
	}
	return &portal.Challenge{
		TargetText:  out.TargetText,
		TargetImage: out.TargetImage,
		Tiles:       out.Tiles,
	}, nil
}

func (d *Driver) SubmitCaptcha(ctx context.Context, s *portal.Session, indices []int) error {
	body := map[string][]int{"indices": indices}
	return d.do(ctx, "submit_captcha", http.MethodPost, sessionPath(s, "captcha"), body, nil)
}

func (d *Driver) Book(ctx context.Context, s *portal.Session, slot model.AppointmentSlot, applicant model.Applicant) (portal.BookingResult, error) {
	ref := ""
	if slot.BookingDetails != nil {
		if v, ok := slot.BookingDetails["portal_ref"].(string); ok {
			ref = v
		}
	}

	var out bookResponse
	err := d.do(ctx, "book", http.MethodPost, sessionPath(s, "book"), bookRequest{
		SlotRef:   ref,
		Date:      slot.AppointmentDate,
		Time:      slot.AppointmentTime,
		Location:  slot.Location,
		Applicant: applicant,
	}, &out)
	if err != nil {
		return portal.BookingResult{}, err
	}

	status, perr := model.ParseSlotStatus(out.Status)
	if perr != nil || status == model.SlotAvailable {
		d.log.Warn("unexpected booking status, treating as failed", zap.String("status", out.Status))
		status = model.SlotFailed
	}
	return portal.BookingResult{Status: status, Reference: out.Reference, Message: out.Message}, nil
}

func (d *Driver) Close(ctx context.Context, s *portal.Session) error {
	return d.do(ctx, "close", http.MethodDelete, "/sessions/"+url.PathEscape(s.ID), nil, nil)
}

func sessionPath(s *portal.Session, action string) string {
	return "/sessions/" + url.PathEscape(s.ID) + "/" + action
}

// do sends one paced request and decodes the envelope's data into out.
// Failures come back as *portal.Error wrapping the matching sentinel.
func (d *Driver) do(ctx context.Context, op, method, path string, payload, out any) error {
	fail := func(kind error, format string, args ...any) error {
		return &portal.Error{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fail(portal.ErrNetwork, "rate limiter: %v", err)
	}

	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range d.headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fail(portal.ErrNetwork, "http request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(portal.ErrNetwork, "failed to read response body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fail(portal.ErrAuthFailed, "status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fail(portal.ErrRejected, "status %d: %s", resp.StatusCode, messageOf(raw))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fail(portal.ErrNetwork, "received non-2xx status code: %d", resp.StatusCode)
	}

	if len(raw) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fail(portal.ErrNetwork, "failed to unmarshal response: %v", err)
	}
	if env.Code != 0 {
		return fail(portal.ErrRejected, "code %d: %s", env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fail(portal.ErrNetwork, "failed to unmarshal response data: %v", err)
		}
	}
	return nil
}

func messageOf(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return strings.TrimSpace(string(raw))
}
