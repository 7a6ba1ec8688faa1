package httpdriver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"visa-slot-backend/config"
	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/portal"
)

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "ok", "data": data})
}

func newSidecar(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var req openRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeData(w, openResponse{SessionID: "s-1"})
	})
	mux.HandleFunc("POST /sessions/{id}/scan", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s-1", r.PathValue("id"))
		var req scanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Tourist Visa", req.VisaType)
		assert.Equal(t, 2, req.Members)
		writeData(w, scanResponse{Slots: []scanSlot{
			{Ref: "a", Date: "15/11/2026", Time: "9:30 AM", Location: " Madrid ", Availability: "3 slots available"},
			{Ref: "b", Date: "sometime", Time: "10:00", Location: "Madrid", Availability: "1 slot"},
		}})
	})
	mux.HandleFunc("GET /sessions/{id}/captcha", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, captchaResponse{Present: true, TargetText: "5", Tiles: [][]byte{[]byte("t0"), []byte("t1")}})
	})
	mux.HandleFunc("POST /sessions/{id}/captcha", func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int{0, 1}, body["indices"])
		writeData(w, nil)
	})
	mux.HandleFunc("POST /sessions/{id}/book", func(w http.ResponseWriter, r *http.Request) {
		var req bookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.SlotRef == "taken" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{"code": 409, "message": "slot no longer available"})
			return
		}
		assert.Equal(t, "a", req.SlotRef)
		assert.Equal(t, "Ana", req.Applicant.FirstName)
		writeData(w, bookResponse{Status: "booked", Reference: "REF-1"})
	})
	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newDriver(url string) *Driver {
	return New(config.PortalConfig{
		URL:     url,
		Headers: map[string]string{"X-Sidecar-Token": "t"},
		Timeout: 2 * time.Second,
	}, nil)
}

func TestDriver_Flow(t *testing.T) {
	d := newDriver(newSidecar(t).URL)
	ctx := context.Background()

	sess, err := d.Open(ctx, model.Credential{ID: "c1", Email: "a@b.c", Secret: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", sess.ID)
	assert.Equal(t, "c1", sess.CredentialID)

	offers, err := d.Scan(ctx, sess, portal.Criteria{VisaType: model.VisaTourist, VisaSubType: model.SubTypeShortStay, Members: 2})
	require.NoError(t, err)
	require.Len(t, offers, 1, "unparsable offer is dropped")
	assert.Equal(t, portal.SlotOffer{
		Ref:          "a",
		Date:         "2026-11-15",
		Time:         "09:30",
		Location:     "Madrid",
		VisaType:     "Tourist Visa",
		VisaCategory: "Short Stay",
		Capacity:     3,
	}, offers[0])

	ch, err := d.Captcha(ctx, sess)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "5", ch.TargetText)
	assert.Equal(t, [][]byte{[]byte("t0"), []byte("t1")}, ch.Tiles)

	require.NoError(t, d.SubmitCaptcha(ctx, sess, []int{0, 1}))

	res, err := d.Book(ctx, sess,
		model.AppointmentSlot{AppointmentDate: "2026-11-15", BookingDetails: datatypes.JSONMap{"portal_ref": "a"}},
		model.Applicant{FirstName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, model.SlotBooked, res.Status)
	assert.Equal(t, "REF-1", res.Reference)

	assert.NoError(t, d.Close(ctx, sess))
}

func TestDriver_ErrorMapping(t *testing.T) {
	d := newDriver(newSidecar(t).URL)
	ctx := context.Background()

	_, err := d.Open(ctx, model.Credential{ID: "c1", Secret: "wrong"})
	assert.True(t, errors.Is(err, portal.ErrAuthFailed))
	var pe *portal.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "open", pe.Op)

	sess := &portal.Session{ID: "s-1"}
	_, err = d.Book(ctx, sess, model.AppointmentSlot{BookingDetails: datatypes.JSONMap{"portal_ref": "taken"}}, model.Applicant{})
	assert.True(t, errors.Is(err, portal.ErrRejected))
	assert.Contains(t, err.Error(), "slot no longer available")
}

func TestDriver_NoCaptcha(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, captchaResponse{Present: false})
	}))
	defer server.Close()

	ch, err := newDriver(server.URL).Captcha(context.Background(), &portal.Session{ID: "s"})
	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestDriver_ServerAndTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := newDriver(server.URL).Scan(context.Background(), &portal.Session{ID: "s"}, portal.Criteria{})
	assert.True(t, errors.Is(err, portal.ErrNetwork))
	server.Close()

	// Closed server: connection refused.
	_, err = newDriver(server.URL).Open(context.Background(), model.Credential{})
	assert.True(t, errors.Is(err, portal.ErrNetwork))
}

func TestDriver_EnvelopeErrorCodeIsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 12, "message": "maintenance"})
	}))
	defer server.Close()

	err := newDriver(server.URL).SubmitCaptcha(context.Background(), &portal.Session{ID: "s"}, []int{1})
	assert.True(t, errors.Is(err, portal.ErrRejected))
}

func TestDriver_UnexpectedBookingStatusIsFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, bookResponse{Status: "weird"})
	}))
	defer server.Close()

	res, err := newDriver(server.URL).Book(context.Background(), &portal.Session{ID: "s"}, model.AppointmentSlot{}, model.Applicant{})
	require.NoError(t, err)
	assert.Equal(t, model.SlotFailed, res.Status)
}

func TestDriver_CancelledContext(t *testing.T) {
	d := New(config.PortalConfig{URL: "http://127.0.0.1:1", RequestsPerSec: 0.001, Timeout: time.Second}, nil)
	// Drain the single burst token so the next call must wait.
	d.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Scan(ctx, &portal.Session{ID: "s"}, portal.Criteria{})
	assert.True(t, errors.Is(err, portal.ErrNetwork))
}

func TestDriver_StepContextBoundsRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(150 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		writeData(w, openResponse{SessionID: "slow"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	d := New(config.PortalConfig{URL: server.URL}, nil)
	assert.Zero(t, d.client.Timeout)

	sess, err := d.Open(context.Background(), model.Credential{ID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "slow", sess.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = d.Open(ctx, model.Credential{ID: "c1"})
	assert.ErrorIs(t, err, portal.ErrNetwork)
}
