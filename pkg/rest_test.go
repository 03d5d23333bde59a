package portalboxd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/portalbox/portalboxd/pkg/system/network/nl80211"
)

type fakeNetworkManager struct {
	connectivity Connectivity
	deactivated  bool
	err          error
}

func (f *fakeNetworkManager) CheckConnectivity() (Connectivity, error) {
	return f.connectivity, f.err
}

func (f *fakeNetworkManager) ListConnections() ([]ConnectionInfo, error) {
	return []ConnectionInfo{{ID: "home", UUID: "uuid-1"}}, f.err
}

func (f *fakeNetworkManager) ListWiFiNetworks() ([]WiFiNetwork, error) {
	return []WiFiNetwork{{SSID: "Home", Quality: 90, Security: "wpa"}}, f.err
}

func (f *fakeNetworkManager) ActivatePortal() error { return f.err }

func (f *fakeNetworkManager) DeactivatePortal() error {
	f.deactivated = true
	return f.err
}

type fakeScanner struct {
	stations []nl80211.Station
	iface    string
	err      error
}

func (f *fakeScanner) Scan(_ context.Context, iface string) ([]nl80211.Station, error) {
	f.iface = iface
	return f.stations, f.err
}

func (f *fakeScanner) Interfaces() ([]nl80211.Interface, error) {
	return nil, f.err
}

func testAPI(nm *fakeNetworkManager, scanner *fakeScanner) api {
	config := ServerConfig{SSID: "PortalBox Setup", Gateway: "192.168.42.1", Interface: "wlan0"}
	pbx := Portalboxd{
		NetworkManager: nm,
		Scanner:        scanner,
		Changes:        make(chan Change, 8),
		config:         config,
	}
	return api{
		mux:    http.NewServeMux(),
		config: config,
		pbx:    pbx,
		token:  "test-token",
	}
}

func TestGetScan(t *testing.T) {
	scanner := &fakeScanner{stations: []nl80211.Station{
		{SSID: "Home", Quality: 100},
		{SSID: "Cafe", Quality: 50},
	}}
	a := testAPI(&fakeNetworkManager{}, scanner)

	rec := httptest.NewRecorder()
	a.getScan(rec, httptest.NewRequest("GET", "/scan?interface=wlan1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if scanner.iface != "wlan1" {
		t.Fatalf("interface override not passed through, got %q", scanner.iface)
	}

	var got []nl80211.Station
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if diff := cmp.Diff(scanner.stations, got); diff != "" {
		t.Fatalf("unexpected stations (-want +got):\n%s", diff)
	}
}

func TestGetScanDefaultsToConfiguredInterface(t *testing.T) {
	scanner := &fakeScanner{}
	a := testAPI(&fakeNetworkManager{}, scanner)

	rec := httptest.NewRecorder()
	a.getScan(rec, httptest.NewRequest("GET", "/scan", nil))

	if scanner.iface != "wlan0" {
		t.Fatalf("expected configured interface, got %q", scanner.iface)
	}
}

func TestGetScanErrorRendersChain(t *testing.T) {
	scanner := &fakeScanner{
		err: fmt.Errorf("scan on %q: %w", "wlan0", nl80211.ErrScanTimeout),
	}
	a := testAPI(&fakeNetworkManager{}, scanner)

	rec := httptest.NewRecorder()
	a.getScan(rec, httptest.NewRequest("GET", "/scan", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var body map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}

	chain := body["errors"]
	if len(chain) != 2 {
		t.Fatalf("expected a two-link cause chain, got %v", chain)
	}
	if chain[1] != nl80211.ErrScanTimeout.Error() {
		t.Fatalf("root cause missing from chain: %v", chain)
	}
}

func TestWithTokenRejectsBadToken(t *testing.T) {
	nm := &fakeNetworkManager{}
	a := testAPI(nm, &fakeScanner{})

	handler := a.withToken(a.postStop)

	req := httptest.NewRequest("POST", "/stop", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token accepted: %d", rec.Code)
	}
	if nm.deactivated {
		t.Fatal("portal deactivated without a valid token")
	}

	req = httptest.NewRequest("POST", "/stop", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token accepted: %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/stop", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token rejected: %d", rec.Code)
	}
	if !nm.deactivated {
		t.Fatal("portal not deactivated despite a valid token")
	}
}

func TestErrorChain(t *testing.T) {
	root := errors.New("root cause")
	err := fmt.Errorf("outer step: %w", fmt.Errorf("inner step: %w", root))

	want := []string{
		"outer step: inner step: root cause",
		"inner step: root cause",
		"root cause",
	}
	if diff := cmp.Diff(want, errorChain(err)); diff != "" {
		t.Fatalf("unexpected chain (-want +got):\n%s", diff)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "Bearer", want: ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
