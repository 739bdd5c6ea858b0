package api

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldops/fieldsync/internal/devserver"
	"github.com/fieldops/fieldsync/internal/store"
)

func newTestServer(t *testing.T) (*devserver.Server, *Client) {
	t.Helper()
	dev := devserver.New("test-token")
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)
	return dev, New(ts.URL)
}

func TestLoginRoundTrip(t *testing.T) {
	_, client := newTestServer(t)

	if client.Authenticated() {
		t.Fatal("client authenticated before login")
	}

	sess, err := client.Login(context.Background(), "ada@example.org", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token != "test-token" {
		t.Errorf("session token = %q, want %q", sess.Token, "test-token")
	}
	if sess.Enumerator.Email != "ada@example.org" {
		t.Errorf("enumerator email = %q", sess.Enumerator.Email)
	}
	if len(sess.Surveys) == 0 {
		t.Error("login returned no surveys")
	}
	if !client.Authenticated() {
		t.Error("client not authenticated after login")
	}
	if client.Enumerator().Email != "ada@example.org" {
		t.Errorf("Enumerator().Email = %q", client.Enumerator().Email)
	}
}

func TestLoginRejectsMissingCredentials(t *testing.T) {
	_, client := newTestServer(t)

	if _, err := client.Login(context.Background(), "", ""); err == nil {
		t.Fatal("expected login error for empty credentials")
	}
	if client.Authenticated() {
		t.Error("client authenticated after failed login")
	}
}

func TestUploadResponses(t *testing.T) {
	dev, client := newTestServer(t)
	client.SetSession("test-token", Enumerator{ID: "e1"})

	batch := []store.Response{
		{ID: "r1", SurveyID: "sv-household", Answers: map[string]any{"q1": "4"}, CreatedAt: time.Now().UTC()},
		{ID: "r2", SurveyID: "sv-household", Answers: map[string]any{"q1": "2"}, CreatedAt: time.Now().UTC()},
	}

	processed, err := client.UploadResponses(context.Background(), batch)
	if err != nil {
		t.Fatalf("UploadResponses: %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2", processed)
	}
	if got := dev.ReceivedCount(); got != 2 {
		t.Errorf("server received %d responses, want 2", got)
	}

	// Re-sending the same batch is acknowledged in full but stored once.
	processed, err = client.UploadResponses(context.Background(), batch)
	if err != nil {
		t.Fatalf("UploadResponses (resend): %v", err)
	}
	if processed != 2 {
		t.Errorf("resend processed = %d, want 2", processed)
	}
	if got := dev.ReceivedCount(); got != 2 {
		t.Errorf("server received %d responses after resend, want 2", got)
	}
}

func TestUploadRequiresAuth(t *testing.T) {
	_, client := newTestServer(t)

	_, err := client.UploadResponses(context.Background(), []store.Response{{ID: "r1", SurveyID: "s1"}})
	if err == nil {
		t.Fatal("expected error uploading without a session")
	}
}

func TestDownloadSurveys(t *testing.T) {
	dev, client := newTestServer(t)
	client.SetSession("test-token", Enumerator{})

	dev.SetSurveys([]store.Survey{
		{ID: "sv-1", Title: "One", Status: store.SurveyActive},
		{ID: "sv-2", Title: "Two", Status: store.SurveyInactive},
	})

	surveys, err := client.DownloadSurveys(context.Background())
	if err != nil {
		t.Fatalf("DownloadSurveys: %v", err)
	}
	if len(surveys) != 2 {
		t.Fatalf("got %d surveys, want 2", len(surveys))
	}
	if surveys[0].ID != "sv-1" || surveys[1].ID != "sv-2" {
		t.Errorf("survey ids = %q, %q", surveys[0].ID, surveys[1].ID)
	}
}

func TestReachable(t *testing.T) {
	dev := devserver.New("test-token")
	ts := httptest.NewServer(dev.Handler())

	client := New(ts.URL)
	if !client.Reachable(context.Background()) {
		t.Error("Reachable = false against a live server")
	}

	ts.Close()
	if client.Reachable(context.Background()) {
		t.Error("Reachable = true against a closed server")
	}
}
