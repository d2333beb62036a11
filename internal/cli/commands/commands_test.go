package commands

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCommand(t *testing.T, handler http.HandlerFunc, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	viper.Set("server_url", srv.URL)
	t.Cleanup(func() { viper.Set("server_url", "") })

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEventsList(t *testing.T) {
	var gotQuery string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"ID": 7, "site_id": "s1", "event_type": "site_outage", "severity": "critical", "status": "active", "outage_percentage": 95.65}]`))
	}

	out, err := runCommand(t, handler, NewEventsCommand(), "list", "--status", "active", "--site", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotQuery, "status=active") || !strings.Contains(gotQuery, "site_id=s1") {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if !strings.Contains(out, "site_outage") || !strings.Contains(out, "95.7") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestEventsAcknowledge_APIError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events/3/acknowledge" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "invalid state transition: event 3 is resolved"}`))
	}

	_, err := runCommand(t, handler, NewEventsCommand(), "ack", "3", "--user", "alice")
	if err == nil || !strings.Contains(err.Error(), "resolved") {
		t.Errorf("expected API error to surface, got %v", err)
	}
}

func TestScan(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Write([]byte(`{"pass_id": "p-1", "sites_checked": 4, "sites_down": 1, "errors": 0}`))
	}

	out, err := runCommand(t, handler, NewScanCommand())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "p-1") || !strings.Contains(out, "sites checked:   4") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestParseID(t *testing.T) {
	if _, err := parseID("0"); err == nil {
		t.Error("expected error for 0")
	}
	if _, err := parseID("x"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if id, err := parseID("12"); err != nil || id != 12 {
		t.Errorf("got %d, %v", id, err)
	}
}
