package s3

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewStoreValidatesConfig(t *testing.T) {
	if _, err := NewStore(Config{Bucket: "b"}, nil); err == nil {
		t.Fatal("missing endpoint accepted")
	}
	if _, err := NewStore(Config{Endpoint: "localhost:9000"}, nil); err == nil {
		t.Fatal("missing bucket accepted")
	}
}

func TestObjectURLUsesPublicEndpoint(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"endpoint only", Config{Endpoint: "minio:9000", Bucket: "chat"}, "http://minio:9000/chat/k.png"},
		{"public override", Config{Endpoint: "http://minio:9000", PublicEndpoint: "https://cdn.example.com/", Bucket: "chat"}, "https://cdn.example.com/chat/k.png"},
		{"ssl", Config{Endpoint: "s3.example.com", Bucket: "chat", UseSSL: true}, "https://s3.example.com/chat/k.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewStore(tc.cfg, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := s.objectURL("k.png"); got != tc.want {
				t.Fatalf("objectURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	var s *Store
	_, err := s.PutAttachment(context.Background(), "c1", "a.png", strings.NewReader("x"), 1, "image/png")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
