package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"t1": "u1"}
	p, err := r.Resolve(context.Background(), "t1")
	if err != nil || p.UserID != "u1" {
		t.Fatalf("resolve: %+v %v", p, err)
	}
	if _, err := r.Resolve(context.Background(), "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown token: %v", err)
	}
}

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u-42","email":"a@b.c","roles":["guest"]}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, time.Second)
	p, err := r.Resolve(context.Background(), "good")
	if err != nil {
		t.Fatal(err)
	}
	if p.UserID != "u-42" || p.Role != "guest" {
		t.Fatalf("principal = %+v", p)
	}
	if _, err := r.Resolve(context.Background(), "bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad token: %v", err)
	}
	if _, err := r.Resolve(context.Background(), "broken"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("broken upstream: %v", err)
	}
}
