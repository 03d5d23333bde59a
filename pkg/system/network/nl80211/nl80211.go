/*
Package nl80211 performs active WiFi scans by talking to the kernel's
wireless configuration subsystem over generic netlink.

The nl80211 protocol family and its "scan" multicast group have no fixed
numeric identifiers; both are assigned by the kernel's generic netlink
controller at runtime and are resolved by name before any request is sent.
A scan uses two sockets: a control socket for request/response traffic
(interface enumeration, scan trigger, result dump) and an event socket
joined to the scan multicast group, on which the kernel announces scan
completion out of band.
*/
package nl80211

import (
	"errors"
	"fmt"
	"net"
	"sort"
)

var (
	// ErrTransport marks failures to open, bind or resolve the generic
	// netlink sockets themselves, as opposed to errors from the wireless
	// subsystem. Not retried at this layer.
	ErrTransport = errors.New("netlink transport failure")

	// ErrInterfaceNotFound is returned when the requested interface is not
	// known to nl80211 (absent, or not a WiFi device).
	ErrInterfaceNotFound = errors.New("wifi interface not found")

	// ErrScanGroupNotFound is returned when the running kernel does not
	// advertise the nl80211 scan multicast group.
	ErrScanGroupNotFound = fmt.Errorf("%w: scan multicast group unavailable", ErrTransport)

	// ErrScanTimeout is returned when no scan-completion notification is
	// observed within the scanner's wait bound.
	ErrScanTimeout = errors.New("timed out waiting for scan results")

	// ErrScanAborted is returned when the kernel cancels a scan we triggered.
	ErrScanAborted = errors.New("scan aborted by the kernel")
)

// An InterfaceType is the operating mode of a WiFi interface. Values mirror
// the nl80211 iftype enumeration.
type InterfaceType int

const (
	InterfaceTypeUnspecified InterfaceType = iota
	InterfaceTypeAdHoc
	InterfaceTypeStation
	InterfaceTypeAP
	InterfaceTypeAPVLAN
	InterfaceTypeWDS
	InterfaceTypeMonitor
	InterfaceTypeMeshPoint
	InterfaceTypeP2PClient
	InterfaceTypeP2PGroupOwner
	InterfaceTypeP2PDevice
	InterfaceTypeOCB
	InterfaceTypeNAN
)

func (t InterfaceType) String() string {
	switch t {
	case InterfaceTypeUnspecified:
		return "unspecified"
	case InterfaceTypeAdHoc:
		return "ad-hoc"
	case InterfaceTypeStation:
		return "station"
	case InterfaceTypeAP:
		return "access point"
	case InterfaceTypeAPVLAN:
		return "access point/VLAN"
	case InterfaceTypeWDS:
		return "wireless distribution"
	case InterfaceTypeMonitor:
		return "monitor"
	case InterfaceTypeMeshPoint:
		return "mesh point"
	case InterfaceTypeP2PClient:
		return "P2P client"
	case InterfaceTypeP2PGroupOwner:
		return "P2P group owner"
	case InterfaceTypeP2PDevice:
		return "P2P device"
	case InterfaceTypeOCB:
		return "outside context of BSS"
	case InterfaceTypeNAN:
		return "near-me area network"
	default:
		return "unknown"
	}
}

// An Interface is one WiFi network interface as reported by an nl80211
// interface dump. It is only used to resolve a name to the kernel index
// carried by subsequent requests.
type Interface struct {
	Index        int              `json:"index"`
	Name         string           `json:"name"`
	HardwareAddr net.HardwareAddr `json:"-"`
	PHY          int              `json:"phy"`
	Device       int              `json:"device"`
	Type         InterfaceType    `json:"-"`
}

// A Station is one observed access point: its network name and a normalized
// 0-100 signal quality. Stations compare by value, which is what the SSID
// de-duplication pass relies on.
type Station struct {
	SSID    string `json:"ssid"`
	Quality int    `json:"quality"`
}

// postProcess applies the fixed result pipeline: sort descending by
// (quality, SSID), collapse repeated SSIDs onto their strongest sighting,
// and drop hidden networks. The sort runs first so the de-duplication pass
// keeps the highest-quality instance of each SSID.
func postProcess(stations []Station) []Station {
	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Quality != stations[j].Quality {
			return stations[i].Quality > stations[j].Quality
		}
		return stations[i].SSID > stations[j].SSID
	})

	seen := make(map[string]struct{}, len(stations))
	out := stations[:0]
	for _, st := range stations {
		if st.SSID == "" {
			continue
		}
		if _, dup := seen[st.SSID]; dup {
			continue
		}
		seen[st.SSID] = struct{}{}
		out = append(out, st)
	}
	return out
}
