package render

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRenderPostsSourceAndReturnsImage(t *testing.T) {
	var gotPath, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "png", time.Second)
	source := "@startuml\nA -> B\n@enduml"

	image, err := c.Render(context.Background(), source)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if string(image) != "png-bytes" {
		t.Errorf("image = %q, want png-bytes", image)
	}
	if gotPath != "/plantuml/png" {
		t.Errorf("path = %q, want /plantuml/png", gotPath)
	}
	if gotContentType != "text/plain" {
		t.Errorf("content type = %q, want text/plain", gotContentType)
	}
	if gotBody != source {
		t.Errorf("body = %q, want the source verbatim", gotBody)
	}
}

func TestRenderErrorCarriesReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Syntax error at line 2"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "png", time.Second)
	_, err := c.Render(context.Background(), "@startuml\nbroken\n@enduml")

	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("Render() error = %T, want *Error", err)
	}
	if re.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", re.Status)
	}
	if re.Reason != "Syntax error at line 2" {
		t.Errorf("Reason = %q, want the service body", re.Reason)
	}
}

func TestRenderTruncatesLongReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "svg", time.Second)
	_, err := c.Render(context.Background(), "@startuml\n@enduml")

	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("Render() error = %T, want *Error", err)
	}
	if len(re.Reason) > maxReasonBytes {
		t.Errorf("Reason is %d bytes, want at most %d", len(re.Reason), maxReasonBytes)
	}
}

func TestRenderHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, "png", time.Second)
	if _, err := c.Render(ctx, "@startuml\n@enduml"); err == nil {
		t.Fatal("Render() ignored context deadline")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", "", 0)
	if c.endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %q, want %q", c.endpoint, DefaultEndpoint)
	}
	if c.Format() != "png" {
		t.Errorf("format = %q, want png", c.Format())
	}
}
