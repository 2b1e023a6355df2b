package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apierrors "github.com/datadesk/datadesk/internal/errors"
)

type echoRequest struct {
	ID    string `path:"id"`
	Limit int    `query:"limit"`
	Name  string `json:"name"`
}

func (r *echoRequest) Validate() error {
	if r.ID == "bad" {
		return fmt.Errorf("bad id")
	}
	return nil
}

type echoResponse struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
	Name  string `json:"name"`
}

func newEchoMux(fail error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /things/{id}", Wrap(func(ctx context.Context, req *echoRequest) (*echoResponse, error) {
		if fail != nil {
			return nil, fail
		}
		return &echoResponse{ID: req.ID, Limit: req.Limit, Name: req.Name}, nil
	}))
	return mux
}

func TestWrapDecodesBodyPathAndQuery(t *testing.T) {
	mux := newEchoMux(nil)
	req := httptest.NewRequest("POST", "/things/abc?limit=5", strings.NewReader(`{"name":"x"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out echoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "abc" || out.Limit != 5 || out.Name != "x" {
		t.Fatalf("got %+v", out)
	}
}

func TestWrapMapsAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apierrors.ErrorCode
	}{
		{"not found", apierrors.RecordNotFound("x"), http.StatusNotFound, apierrors.ErrRecordNotFound},
		{"conflict", apierrors.UniqueConstraint("email", "Email"), http.StatusConflict, apierrors.ErrUniqueConstraint},
		{"integrity", apierrors.ReferentialIntegrity("cannot delete"), http.StatusConflict, apierrors.ErrReferentialIntegrity},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, apierrors.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newEchoMux(tt.err)
			req := httptest.NewRequest("POST", "/things/abc", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Fatalf("code %q, want %q", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Message == "" {
				t.Fatal("message must not be empty")
			}
		})
	}
}

func TestWrapValidationFailure(t *testing.T) {
	mux := newEchoMux(nil)
	req := httptest.NewRequest("POST", "/things/bad", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != apierrors.ErrValidationFailed {
		t.Fatalf("code %q", resp.Error.Code)
	}
}

func TestWrapRejectsUnknownFields(t *testing.T) {
	mux := newEchoMux(nil)
	req := httptest.NewRequest("POST", "/things/abc", strings.NewReader(`{"nope":1}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestWrapEmptyBodyAllowed(t *testing.T) {
	mux := newEchoMux(nil)
	req := httptest.NewRequest("POST", "/things/abc", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
}
