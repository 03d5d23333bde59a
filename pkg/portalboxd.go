/*
Portalbox internal architecture:

 Portalboxd owns the captive portal lifecycle: on startup it asks the
 NetworkManager control plane to bring up the configured access point, and
 on shutdown it tears the portal down again.

 State transitions and scan activity are reported as Changes on the Changes
 channel, which the WSRelay broadcasts to connected websocket clients.

 Site surveys come from two places: the NetworkManager AP cache (cheap,
 possibly stale) and a direct nl80211 active scan over a raw generic
 netlink socket (authoritative, slower). The REST API exposes both.

                      ┌───────────────┐
                      │  Portalboxd{} │
  REST API ──────────►│               │
                      │  portal AP    │──► NetworkManager (D-Bus)
  /scan ─────────────►│  lifecycle    │
      │               │               │──► nl80211 (genetlink)
      │               │   Changes     │
      │               └──────┬────────┘
      ▼                      │
  nl80211.Scanner            ▼
                         WSRelay ──► websocket clients
*/

package portalboxd

import (
	"context"

	"github.com/portalbox/portalboxd/pkg/system/network/nl80211"
	log "github.com/sirupsen/logrus"
)

// A Change is one event reported back to clients: portal state
// transitions, scan activity and errors.
type Change struct {
	ID     string `json:"id"`
	Error  string `json:"error"`
	Type   string `json:"type"`
	Update any    `json:"update"`
}

// Connectivity is the daemon's view of upstream reachability.
type Connectivity struct {
	// State is NetworkManager's connectivity assessment: one of "unknown",
	// "none", "portal", "limited", "full".
	State string `json:"state"`
	// Probe reports whether the HTTP captive-portal probe got the expected
	// answer.
	Probe bool `json:"probe"`
}

// ConnectionInfo identifies one saved NetworkManager profile.
type ConnectionInfo struct {
	ID   string `json:"id"`
	UUID string `json:"uuid"`
}

// A WiFiNetwork is one entry of the NetworkManager access-point cache
// survey.
type WiFiNetwork struct {
	SSID     string `json:"ssid"`
	Quality  int    `json:"quality"`
	Security string `json:"security"`
}

// NetworkManager is the D-Bus control plane. See ./system/network for the
// implementation.
type NetworkManager interface {
	CheckConnectivity() (Connectivity, error)
	ListConnections() ([]ConnectionInfo, error)
	ListWiFiNetworks() ([]WiFiNetwork, error)
	ActivatePortal() error
	DeactivatePortal() error
}

// WifiScanner runs a direct nl80211 active scan, bypassing NetworkManager.
type WifiScanner interface {
	Scan(ctx context.Context, iface string) ([]nl80211.Station, error)
	Interfaces() ([]nl80211.Interface, error)
}

// JournalReader tails the systemd journal for a given unit. Cancel the
// returned function when done.
type JournalReader interface {
	GetJournalChan(unit string) (context.CancelFunc, chan string, error)
}

// LifecycleManager reboots or powers off the host.
type LifecycleManager interface {
	Reboot() error
	Shutdown() error
}

// HostInfo reports facts about the machine the daemon runs on.
type HostInfo interface {
	GetHostFacts() map[string]any
}

// Portalboxd ties the subsystems together and supervises the portal AP.
type Portalboxd struct {
	NetworkManager NetworkManager
	Scanner        WifiScanner
	JournalReader  JournalReader
	Lifecycle      LifecycleManager
	Host           HostInfo
	Changes        chan Change

	config ServerConfig
}

func NewPortalboxd(
	config ServerConfig,
	nm NetworkManager,
	scanner WifiScanner,
	journal JournalReader,
	lifecycle LifecycleManager,
	host HostInfo,
) Portalboxd {
	return Portalboxd{
		NetworkManager: nm,
		Scanner:        scanner,
		JournalReader:  journal,
		Lifecycle:      lifecycle,
		Host:           host,
		Changes:        make(chan Change),
		config:         config,
	}
}

// Run brings the portal up and keeps it up until the conductor asks us to
// stop, at which point the AP profile is deactivated and removed.
func (t Portalboxd) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		if err := t.NetworkManager.ActivatePortal(); err != nil {
			// The daemon stays up so the operator can still reach the API
			// and read logs, but the portal is not serving.
			log.WithError(err).Error("failed to activate portal access point")
			t.emit(Change{ID: "internal", Error: err.Error(), Type: "portal", Update: "failed"})
		} else {
			log.WithFields(log.Fields{
				"ssid":    t.config.SSID,
				"gateway": t.config.Gateway,
			}).Info("portal access point activated")
			t.emit(Change{ID: "internal", Type: "portal", Update: "active"})
		}

		started <- true
		<-stop

		if err := t.NetworkManager.DeactivatePortal(); err != nil {
			log.WithError(err).Error("failed to deactivate portal access point")
		} else {
			log.Info("portal access point deactivated")
		}
		stopped <- true
	}()
	return nil
}

// emit delivers a Change without blocking the portal lifecycle when nobody
// is draining the channel yet.
func (t Portalboxd) emit(c Change) {
	select {
	case t.Changes <- c:
	default:
	}
}

// Scan runs a direct nl80211 survey and reports the activity on the change
// feed.
func (t Portalboxd) Scan(ctx context.Context, iface string) ([]nl80211.Station, error) {
	if iface == "" {
		iface = t.config.Interface
	}

	stations, err := t.Scanner.Scan(ctx, iface)
	if err != nil {
		t.emit(Change{ID: "internal", Error: err.Error(), Type: "scan", Update: nil})
		return nil, err
	}

	t.emit(Change{ID: "internal", Type: "scan", Update: stations})
	return stations, nil
}

// GetLogChannel tails the journal for one of the units the portal depends
// on. The REST layer whitelists unit names before calling this.
func (t Portalboxd) GetLogChannel(unit string) (context.CancelFunc, chan string, error) {
	return t.JournalReader.GetJournalChan(unit)
}
