package main

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/fieldops/fieldsync/internal/api"
)

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()

	sess := session{
		Token:      "tok-123",
		Enumerator: api.Enumerator{ID: "e1", Name: "Ada", Email: "ada@example.org"},
	}
	if err := saveSession(dir, sess); err != nil {
		t.Fatalf("saveSession: %v", err)
	}

	got, err := loadSession(dir)
	if err != nil {
		t.Fatalf("loadSession: %v", err)
	}
	if got != sess {
		t.Errorf("loaded session = %+v, want %+v", got, sess)
	}

	if err := clearSession(dir); err != nil {
		t.Fatalf("clearSession: %v", err)
	}
	if _, err := loadSession(dir); err == nil {
		t.Error("loadSession succeeded after clearSession")
	}
}

func TestClearSessionMissingFile(t *testing.T) {
	if err := clearSession(t.TempDir()); err != nil {
		t.Errorf("clearSession on empty dir: %v", err)
	}
}

func TestLoadSessionRejectsEmptyToken(t *testing.T) {
	dir := t.TempDir()
	if err := saveSession(dir, session{Token: ""}); err != nil {
		t.Fatal(err)
	}
	if _, err := loadSession(dir); err == nil {
		t.Error("expected error for session without token")
	}
}

func TestParseAnswers(t *testing.T) {
	answers, err := parseAnswers(`{"q1":"4","q2":"well"}`, "")
	if err != nil {
		t.Fatalf("parseAnswers: %v", err)
	}
	if answers["q1"] != "4" || answers["q2"] != "well" {
		t.Errorf("answers = %v", answers)
	}
}

func TestParseAnswersRejectsBadInput(t *testing.T) {
	cases := []struct {
		name, answers, file string
	}{
		{"neither", "", ""},
		{"both", `{"q1":1}`, "some.json"},
		{"malformed", `{q1:`, ""},
		{"empty object", `{}`, ""},
	}
	for _, tc := range cases {
		if _, err := parseAnswers(tc.answers, tc.file); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := parseLogLevel("debug"); got != slog.LevelDebug {
		t.Errorf("debug = %v", got)
	}
	if got := parseLogLevel("nonsense"); got != slog.LevelInfo {
		t.Errorf("unknown level = %v, want info", got)
	}
}

func TestColorizeRespectsNoColor(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorGreen, "hello"); strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	if result := colorize(colorGreen, "hello"); !strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestCapitalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"synced 3 response(s)", "Synced 3 response(s)"},
		{"", ""},
		{"über alles", "Über alles"}, // first rune may be multibyte
		{"Already upper", "Already upper"},
	}
	for _, tc := range cases {
		if got := capitalize(tc.in); got != tc.want {
			t.Errorf("capitalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatusLineAlignsValues(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	short := statusLine("Pending", "3 response(s)")
	long := statusLine("Connectivity", "online")

	if strings.Index(short, "3 response(s)") != strings.Index(long, "online") {
		t.Errorf("value columns differ:\n%q\n%q", short, long)
	}
}
