package network

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	portalboxd "github.com/portalbox/portalboxd/pkg"
	log "github.com/sirupsen/logrus"
)

const (
	// surveyTimeout bounds the wait for NetworkManager's access-point cache
	// to refresh after a scan request.
	surveyTimeout = 45 * time.Second

	// activationTimeout bounds the wait for the portal AP profile to reach
	// the activated state.
	activationTimeout = 30 * time.Second

	// probeURL answers 204 with no body when the internet is reachable.
	probeURL = "http://connectivity-check.ubuntu.com"
)

var (
	ErrNoWiFiDevice    = errors.New("no managed wifi device found")
	ErrPortalActivation = errors.New("portal access point failed to activate")
)

var _ portalboxd.NetworkManager = &NetworkManagerLinux{}

type NetworkManagerLinux struct {
	config   portalboxd.ServerConfig
	nm       gonetworkmanager.NetworkManager
	settings gonetworkmanager.Settings
	probe    *resty.Client

	mu      sync.Mutex
	active  gonetworkmanager.ActiveConnection
	profile gonetworkmanager.Connection
}

func (t *NetworkManagerLinux) CheckConnectivity() (portalboxd.Connectivity, error) {
	state, err := t.nm.GetPropertyConnectivity()
	if err != nil {
		return portalboxd.Connectivity{}, fmt.Errorf("query connectivity state: %w", err)
	}

	// The probe failing is an answer, not an error.
	probeOK := false
	if resp, err := t.probe.R().Get(probeURL); err == nil && resp.StatusCode() == 204 {
		probeOK = true
	}

	return portalboxd.Connectivity{
		State: connectivityString(state),
		Probe: probeOK,
	}, nil
}

func (t *NetworkManagerLinux) ListConnections() ([]portalboxd.ConnectionInfo, error) {
	connections, err := t.settings.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list saved connections: %w", err)
	}

	infos := make([]portalboxd.ConnectionInfo, 0, len(connections))
	for _, c := range connections {
		s, err := c.GetSettings()
		if err != nil {
			continue
		}
		meta, ok := s["connection"]
		if !ok {
			continue
		}
		info := portalboxd.ConnectionInfo{}
		if id, ok := meta["id"].(string); ok {
			info.ID = id
		}
		if u, ok := meta["uuid"].(string); ok {
			info.UUID = u
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// ListWiFiNetworks surveys via NetworkManager's access-point cache. A fresh
// scan is requested and the cache's LastScan property polled until it
// advances; D-Bus offers no completion event for this, unlike nl80211.
func (t *NetworkManagerLinux) ListWiFiNetworks() ([]portalboxd.WiFiNetwork, error) {
	device, err := t.findWiFiDevice()
	if err != nil {
		return nil, err
	}

	before, err := device.GetPropertyLastScan()
	if err != nil {
		return nil, fmt.Errorf("read last-scan timestamp: %w", err)
	}

	if err := device.RequestScan(); err != nil {
		return nil, fmt.Errorf("request scan: %w", err)
	}

	deadline := time.Now().Add(surveyTimeout)
	for {
		last, err := device.GetPropertyLastScan()
		if err != nil {
			return nil, fmt.Errorf("read last-scan timestamp: %w", err)
		}
		if last > before {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.New("timed out waiting for access point cache refresh")
		}
		time.Sleep(time.Second)
	}

	aps, err := device.GetAccessPoints()
	if err != nil {
		return nil, fmt.Errorf("read access point cache: %w", err)
	}

	networks := make([]portalboxd.WiFiNetwork, 0, len(aps))
	for _, ap := range aps {
		ssid, err := ap.GetPropertySSID()
		if err != nil {
			continue
		}
		strength, err := ap.GetPropertyStrength()
		if err != nil {
			continue
		}

		flags, _ := ap.GetPropertyFlags()
		wpaFlags, _ := ap.GetPropertyWPAFlags()
		rsnFlags, _ := ap.GetPropertyRSNFlags()

		networks = append(networks, portalboxd.WiFiNetwork{
			SSID:     ssid,
			Quality:  int(strength),
			Security: securityString(uint32(flags), uint32(wpaFlags), uint32(rsnFlags)),
		})
	}

	return sortAndDedupe(networks), nil
}

// ActivatePortal brings the captive-portal access point up: any stale
// profile with our SSID is removed, a fresh AP profile is created and
// activated, and the call blocks until NetworkManager reports it active.
func (t *NetworkManagerLinux) ActivatePortal() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return errors.New("portal already active")
	}

	device, err := t.findWiFiDevice()
	if err != nil {
		return err
	}

	iface, err := device.GetPropertyInterface()
	if err != nil {
		return fmt.Errorf("read device interface name: %w", err)
	}

	if err := t.deleteStaleProfiles(); err != nil {
		return err
	}

	settings := accessPointSettings(t.config.SSID, t.config.Password, t.config.Gateway, iface, uuid.New().String())

	active, err := t.nm.AddAndActivateConnection(settings, device)
	if err != nil {
		return fmt.Errorf("add and activate portal profile: %w", err)
	}

	if err := t.awaitActivation(active); err != nil {
		t.deleteStaleProfiles()
		return err
	}

	t.active = active
	t.profile, _ = active.GetPropertyConnection()
	log.WithFields(log.Fields{"ssid": t.config.SSID, "interface": iface}).Debug("portal profile active")
	return nil
}

func (t *NetworkManagerLinux) DeactivatePortal() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return nil
	}

	if err := t.nm.DeactivateConnection(t.active); err != nil {
		return fmt.Errorf("deactivate portal connection: %w", err)
	}
	if t.profile != nil {
		if err := t.profile.Delete(); err != nil {
			return fmt.Errorf("delete portal profile: %w", err)
		}
	}

	t.active = nil
	t.profile = nil
	return nil
}

// findWiFiDevice resolves the configured interface, or the first managed
// WiFi device when none is configured.
func (t *NetworkManagerLinux) findWiFiDevice() (gonetworkmanager.DeviceWireless, error) {
	if t.config.Interface != "" {
		device, err := t.nm.GetDeviceByIpIface(t.config.Interface)
		if err != nil {
			return nil, fmt.Errorf("resolve interface %q: %w", t.config.Interface, err)
		}
		wireless, ok := device.(gonetworkmanager.DeviceWireless)
		if !ok {
			return nil, fmt.Errorf("interface %q is not a wifi device: %w", t.config.Interface, ErrNoWiFiDevice)
		}
		return wireless, nil
	}

	devices, err := t.nm.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	for _, device := range devices {
		wireless, ok := device.(gonetworkmanager.DeviceWireless)
		if !ok {
			continue
		}
		managed, err := device.GetPropertyManaged()
		if err != nil || !managed {
			continue
		}
		return wireless, nil
	}

	return nil, ErrNoWiFiDevice
}

// deleteStaleProfiles removes leftover profiles carrying the portal SSID,
// e.g. after an unclean shutdown.
func (t *NetworkManagerLinux) deleteStaleProfiles() error {
	connections, err := t.settings.ListConnections()
	if err != nil {
		return fmt.Errorf("list saved connections: %w", err)
	}

	for _, c := range connections {
		s, err := c.GetSettings()
		if err != nil {
			continue
		}
		meta, ok := s["connection"]
		if !ok {
			continue
		}
		if id, ok := meta["id"].(string); !ok || id != t.config.SSID {
			continue
		}
		log.WithField("ssid", t.config.SSID).Debug("removing stale portal profile")
		if err := c.Delete(); err != nil {
			return fmt.Errorf("delete stale portal profile: %w", err)
		}
	}

	return nil
}

func (t *NetworkManagerLinux) awaitActivation(active gonetworkmanager.ActiveConnection) error {
	stateChanges := make(chan gonetworkmanager.StateChange, 1)
	done := make(chan struct{})
	defer close(done)

	if err := active.SubscribeState(stateChanges, done); err != nil {
		return fmt.Errorf("subscribe to activation state: %w", err)
	}

	state, err := active.GetPropertyState()
	if err != nil {
		return fmt.Errorf("read activation state: %w", err)
	}
	if state == gonetworkmanager.NmActiveConnectionStateActivated {
		return nil
	}

	for {
		select {
		case change := <-stateChanges:
			switch change.State {
			case gonetworkmanager.NmActiveConnectionStateActivated:
				return nil
			case gonetworkmanager.NmActiveConnectionStateDeactivated:
				return ErrPortalActivation
			}
		case <-time.After(activationTimeout):
			return fmt.Errorf("%w: timed out", ErrPortalActivation)
		}
	}
}

// accessPointSettings builds the NetworkManager profile map for the portal
// AP: AP mode on the 2.4 GHz band, static gateway address, WPA-PSK when a
// password is configured and an open network otherwise.
func accessPointSettings(ssid, password, gateway, iface, profileUUID string) map[string]map[string]interface{} {
	settings := map[string]map[string]interface{}{
		"connection": {
			"id":             ssid,
			"uuid":           profileUUID,
			"type":           "802-11-wireless",
			"interface-name": iface,
			"autoconnect":    false,
		},
		"802-11-wireless": {
			"mode": "ap",
			"band": "bg",
			"ssid": []byte(ssid),
		},
		"ipv4": {
			"method":  "manual",
			"gateway": gateway,
			"address-data": []map[string]interface{}{
				{"address": gateway, "prefix": uint32(24)},
			},
		},
		"ipv6": {
			"method": "ignore",
		},
	}

	if password != "" {
		settings["802-11-wireless"]["security"] = "802-11-wireless-security"
		settings["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      password,
		}
	}

	return settings
}

func securityString(flags, wpaFlags, rsnFlags uint32) string {
	switch {
	case wpaFlags > 0 || rsnFlags > 0:
		return "wpa"
	case flags&uint32(gonetworkmanager.Nm80211APFlagsPrivacy) != 0:
		return "wep"
	default:
		return "open"
	}
}

func connectivityString(c gonetworkmanager.NmConnectivity) string {
	switch c {
	case gonetworkmanager.NmConnectivityNone:
		return "none"
	case gonetworkmanager.NmConnectivityPortal:
		return "portal"
	case gonetworkmanager.NmConnectivityLimited:
		return "limited"
	case gonetworkmanager.NmConnectivityFull:
		return "full"
	default:
		return "unknown"
	}
}

// sortAndDedupe applies the survey result pipeline: drop hidden and
// non-UTF-8 names, order strongest first, and keep one entry per SSID.
func sortAndDedupe(networks []portalboxd.WiFiNetwork) []portalboxd.WiFiNetwork {
	sort.Slice(networks, func(i, j int) bool {
		if networks[i].Quality != networks[j].Quality {
			return networks[i].Quality > networks[j].Quality
		}
		return networks[i].SSID > networks[j].SSID
	})

	seen := make(map[string]struct{}, len(networks))
	out := networks[:0]
	for _, n := range networks {
		if n.SSID == "" || !utf8.ValidString(n.SSID) {
			continue
		}
		if _, dup := seen[n.SSID]; dup {
			continue
		}
		seen[n.SSID] = struct{}{}
		out = append(out, n)
	}
	return out
}
