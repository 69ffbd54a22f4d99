package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmynk/splitclaim/internal/models"
)

var bob = &models.User{ID: "u-bob", Name: "Bob"}

func TestSubmitClaim(t *testing.T) {
	var got claimRequest
	var gotPath, gotContentType, gotNgrok string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotNgrok = r.Header.Get("ngrok-skip-browser-warning")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"updated","new_count":2}`))
	}))
	defer srv.Close()

	client := New(srv.URL + "/")
	result, err := client.SubmitClaim(context.Background(), "bill-1", "item-1", bob)
	if err != nil {
		t.Fatalf("SubmitClaim failed: %v", err)
	}

	if gotPath != "/v1/bills/bill-1/claim" {
		t.Errorf("path = %q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotNgrok != "true" {
		t.Errorf("ngrok-skip-browser-warning = %q", gotNgrok)
	}
	want := claimRequest{ItemID: "item-1", UserID: "u-bob", UserName: "Bob"}
	if got != want {
		t.Errorf("body = %+v, want %+v", got, want)
	}
	if result.Status != "updated" || result.NewCount != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmitClaim_UndecodableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	result, err := New(srv.URL).SubmitClaim(context.Background(), "b", "i", bob)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result == nil || result.NewCount != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmitClaim_NoRequestMade(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		baseURL  string
		user     *models.User
		wantKind string
	}{
		{name: "empty base URL", baseURL: "", user: bob, wantKind: "config"},
		{name: "blank base URL", baseURL: "   ", user: bob, wantKind: "config"},
		{name: "empty base URL wins over missing identity", baseURL: "", user: nil, wantKind: "config"},
		{name: "no identity", baseURL: srv.URL, user: nil, wantKind: "identity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.baseURL).SubmitClaim(context.Background(), "b", "i", tt.user)
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := Kind(err); kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q (err: %v)", kind, tt.wantKind, err)
			}
		})
	}

	if n := calls.Load(); n != 0 {
		t.Errorf("server received %d requests, want 0", n)
	}
}

func TestSubmitClaim_ServerError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{name: "detail string", status: http.StatusNotFound, body: `{"detail":"Bill not found"}`, wantDetail: "Bill not found"},
		{name: "detail list", status: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","item_id"]}]}`, wantDetail: `[{"loc":["body","item_id"]}]`},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down\n", wantDetail: "upstream down"},
		{name: "empty body", status: http.StatusInternalServerError, body: "", wantDetail: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).SubmitClaim(context.Background(), "b", "i", bob)
			var serverErr *ServerError
			if !errors.As(err, &serverErr) {
				t.Fatalf("expected *ServerError, got %T: %v", err, err)
			}
			if serverErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", serverErr.StatusCode, tt.status)
			}
			if serverErr.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", serverErr.Detail, tt.wantDetail)
			}
			if Kind(err) != "server" {
				t.Errorf("Kind = %q", Kind(err))
			}
		})
	}
}

func TestSubmitClaim_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).SubmitClaim(context.Background(), "b", "i", bob)
	var networkErr *NetworkError
	if !errors.As(err, &networkErr) {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
	if Kind(err) != "network" {
		t.Errorf("Kind = %q", Kind(err))
	}
}

func TestSubmitClaim_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).SubmitClaim(context.Background(), "b", "i", bob)
	if Kind(err) != "network" {
		t.Fatalf("Kind = %q, want network (err: %v)", Kind(err), err)
	}
}

func TestNew_TimeoutLeavesCallerClient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	hc := &http.Client{Timeout: time.Minute}
	c := New(srv.URL, WithHTTPClient(hc), WithTimeout(50*time.Millisecond))
	if hc.Timeout != time.Minute {
		t.Errorf("caller client timeout changed to %v", hc.Timeout)
	}

	_, err := c.SubmitClaim(context.Background(), "b", "i", bob)
	if Kind(err) != "network" {
		t.Fatalf("Kind = %q, want network (err: %v)", Kind(err), err)
	}
}

func TestNew_NilHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","new_count":1}`))
	}))
	defer srv.Close()

	for _, opts := range [][]Option{
		{WithHTTPClient(nil)},
		{WithHTTPClient(nil), WithTimeout(time.Second)},
		{WithTimeout(time.Second), WithHTTPClient(nil)},
	} {
		result, err := New(srv.URL, opts...).SubmitClaim(context.Background(), "b", "i", bob)
		if err != nil {
			t.Fatalf("SubmitClaim failed: %v", err)
		}
		if result.NewCount != 1 {
			t.Errorf("NewCount = %d, want 1", result.NewCount)
		}
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ConfigError{Message: "x"}, "config"},
		{ErrNoIdentity, "identity"},
		{&NetworkError{Cause: errors.New("refused")}, "network"},
		{&ServerError{StatusCode: 500}, "server"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
