package httpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"types":28}`)
	}))
	defer srv.Close()

	var out struct{ Types int }
	if err := GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Types != 28 {
		t.Errorf("Types = %d", out.Types)
	}
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"cascade: unknown cascade"}`+"\n")
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.URL, "image/jpeg", []byte{1, 2}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != 404 || se.Body != `{"error":"cascade: unknown cascade"}` {
		t.Errorf("StatusError = %+v", se)
	}
}
