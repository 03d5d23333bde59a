package nl80211

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// DefaultScanTimeout bounds the wait for the kernel's scan-completion
// notification. Drivers routinely take tens of seconds on a busy 5 GHz
// band, so the bound is generous.
const DefaultScanTimeout = 45 * time.Second

// conn is the subset of *genetlink.Conn the scanner uses. Tests substitute
// scripted connections.
type conn interface {
	GetFamily(name string) (genetlink.Family, error)
	Execute(m genetlink.Message, family uint16, flags netlink.HeaderFlags) ([]genetlink.Message, error)
	Receive() ([]genetlink.Message, []netlink.Message, error)
	JoinGroup(group uint32) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// A Scanner runs active WiFi scans over nl80211. The zero value is not
// usable; construct with New. A Scanner holds no open sockets between
// calls: every Scan dials, uses and closes its own pair of connections.
type Scanner struct {
	// Timeout bounds the wait for scan completion. Defaults to
	// DefaultScanTimeout.
	Timeout time.Duration

	dial func() (conn, error)
}

// New returns a Scanner using the host's generic netlink service.
func New() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		dial: func() (conn, error) {
			return genetlink.Dial(nil)
		},
	}
}

// Interfaces enumerates the WiFi interfaces known to nl80211.
func (s *Scanner) Interfaces() ([]Interface, error) {
	c, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %w", ErrTransport, err)
	}
	defer c.Close()

	family, err := c.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q family: %w", ErrTransport, unix.NL80211_GENL_NAME, err)
	}

	return interfaceDump(c, family)
}

// Scan triggers an active scan on the named interface and returns the
// observed stations, strongest first, de-duplicated by SSID with hidden
// networks removed. An empty name selects the first WiFi interface.
//
// Scan issues no retries: a timeout, a busy device (EBUSY from the
// trigger) or a kernel abort all surface as errors and the caller decides
// whether to start over. Concurrent scans on the same interface are not
// coordinated here.
func (s *Scanner) Scan(ctx context.Context, name string) ([]Station, error) {
	control, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %w", ErrTransport, err)
	}
	defer control.Close()

	family, err := control.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q family: %w", ErrTransport, unix.NL80211_GENL_NAME, err)
	}

	ifi, err := findInterface(control, family, name)
	if err != nil {
		return nil, err
	}

	// The event connection is joined to the scan multicast group before the
	// trigger is sent, so a completion that fires immediately cannot be
	// missed.
	events, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: dial event channel: %w", ErrTransport, err)
	}
	defer events.Close()

	if err := joinScanGroup(events); err != nil {
		return nil, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := events.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set event deadline: %w", ErrTransport, err)
	}

	if err := triggerScan(control, family, ifi.Index); err != nil {
		return nil, err
	}

	if err := awaitCompletion(events, ifi.Index); err != nil {
		return nil, err
	}

	msgs, err := scanDump(control, family, ifi.Index)
	if err != nil {
		return nil, err
	}

	return postProcess(decodeStations(msgs)), nil
}

// findInterface resolves an interface name to its nl80211 handle via an
// interface dump. An empty name picks the first interface in the dump.
func findInterface(c conn, family genetlink.Family, name string) (Interface, error) {
	ifis, err := interfaceDump(c, family)
	if err != nil {
		return Interface{}, err
	}

	for _, ifi := range ifis {
		if name == "" || ifi.Name == name {
			return ifi, nil
		}
	}

	return Interface{}, fmt.Errorf("%q: %w", name, ErrInterfaceNotFound)
}

func interfaceDump(c conn, family genetlink.Family) ([]Interface, error) {
	req := genetlink.Message{
		Header: genetlink.Header{
			Command: unix.NL80211_CMD_GET_INTERFACE,
			Version: family.Version,
		},
	}

	msgs, err := c.Execute(req, family.ID, netlink.Request|netlink.Dump)
	if err != nil {
		return nil, fmt.Errorf("interface dump: %w", err)
	}

	return parseInterfaces(msgs)
}

// joinScanGroup resolves the scan multicast group id for this connection's
// view of the nl80211 family and subscribes to it.
func joinScanGroup(c conn) error {
	family, err := c.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		return fmt.Errorf("%w: resolve %q family: %w", ErrTransport, unix.NL80211_GENL_NAME, err)
	}

	for _, group := range family.Groups {
		if group.Name != unix.NL80211_MULTICAST_GROUP_SCAN {
			continue
		}
		if err := c.JoinGroup(group.ID); err != nil {
			return fmt.Errorf("%w: join scan multicast group: %w", ErrTransport, err)
		}
		return nil
	}

	return ErrScanGroupNotFound
}

// triggerScan asks the kernel to start scanning. The acknowledgement only
// confirms the request was accepted; completion arrives later on the event
// channel. A rejection (typically unix.EBUSY while another scan runs) is
// surfaced with the kernel's reason attached.
func triggerScan(c conn, family genetlink.Family, index int) error {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(index))
	ae.Uint32(unix.NL80211_ATTR_SCAN_FLAGS, unix.NL80211_SCAN_FLAG_AP)

	b, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encode trigger attributes: %w", err)
	}

	req := genetlink.Message{
		Header: genetlink.Header{
			Command: unix.NL80211_CMD_TRIGGER_SCAN,
			Version: family.Version,
		},
		Data: b,
	}

	if _, err := c.Execute(req, family.ID, netlink.Request|netlink.Acknowledge); err != nil {
		return fmt.Errorf("trigger scan: %w", err)
	}

	return nil
}

// awaitCompletion reads event batches until the kernel announces new scan
// results for our interface. Unrelated notifications on the scan group are
// ignored; an abort for any interface ends the wait since the kernel
// serializes scans per phy. The connection's read deadline supplies the
// timeout.
func awaitCompletion(c conn, index int) error {
	for {
		msgs, _, err := c.Receive()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return ErrScanTimeout
			}
			return fmt.Errorf("receive scan event: %w", err)
		}

		for _, m := range msgs {
			switch m.Header.Command {
			case unix.NL80211_CMD_SCAN_ABORTED:
				return ErrScanAborted

			case unix.NL80211_CMD_NEW_SCAN_RESULTS:
				var ifi Interface
				if err := ifi.parseAttributes(m.Data); err != nil {
					return fmt.Errorf("decode scan notification: %w", err)
				}
				if ifi.Index != index {
					continue
				}
				return nil
			}
		}
	}
}

// scanDump requests the cached scan results for an interface. The dump is
// drained to its DONE sentinel by the netlink layer.
func scanDump(c conn, family genetlink.Family, index int) ([]genetlink.Message, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(index))

	b, err := ae.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode scan dump attributes: %w", err)
	}

	req := genetlink.Message{
		Header: genetlink.Header{
			Command: unix.NL80211_CMD_GET_SCAN,
			Version: family.Version,
		},
		Data: b,
	}

	msgs, err := c.Execute(req, family.ID, netlink.Request|netlink.Dump)
	if err != nil {
		return nil, fmt.Errorf("scan dump: %w", err)
	}

	return msgs, nil
}

// decodeStations extracts one Station per scan-result message. Entries that
// fail to decode are dropped, not errors: a single mangled BSS should not
// sink an otherwise good scan.
func decodeStations(msgs []genetlink.Message) []Station {
	stations := make([]Station, 0, len(msgs))
	for _, m := range msgs {
		if st, ok := stationFromMessage(m); ok {
			stations = append(stations, st)
		}
	}
	return stations
}

// stationFromMessage decodes a single BSS entry. The BSS attribute's payload
// is not self-describing as nested; it is re-interpreted as an attribute
// sequence because this consumer says so. Entries without a signal reading
// or with a non-UTF-8 SSID are rejected; an absent SSID element yields an
// empty name, which post-processing later discards as hidden.
func stationFromMessage(m genetlink.Message) (Station, bool) {
	ad, err := netlink.NewAttributeDecoder(m.Data)
	if err != nil {
		return Station{}, false
	}

	var (
		signal     int32
		haveSignal bool
		ssid       []byte
	)

	for ad.Next() {
		if ad.Type() != unix.NL80211_ATTR_BSS {
			continue
		}

		ad.Nested(func(nad *netlink.AttributeDecoder) error {
			for nad.Next() {
				switch nad.Type() {
				case unix.NL80211_BSS_SIGNAL_MBM:
					signal = int32(nad.Uint32())
					haveSignal = true
				case unix.NL80211_BSS_INFORMATION_ELEMENTS:
					ssid, _ = ssidFromIEs(nad.Bytes())
				}
			}
			return nil
		})
	}

	if ad.Err() != nil || !haveSignal {
		return Station{}, false
	}
	if !utf8.Valid(ssid) {
		return Station{}, false
	}

	return Station{
		SSID:    string(ssid),
		Quality: signalQuality(signal),
	}, true
}
