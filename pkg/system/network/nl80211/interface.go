package nl80211

import (
	"fmt"
	"net"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// parseInterfaces decodes every message of an interface dump. A decode
// failure here is a control-response failure and aborts the caller.
func parseInterfaces(msgs []genetlink.Message) ([]Interface, error) {
	ifis := make([]Interface, 0, len(msgs))
	for _, m := range msgs {
		if m.Header.Command != unix.NL80211_CMD_NEW_INTERFACE {
			return nil, fmt.Errorf("unexpected command %d in interface dump", m.Header.Command)
		}

		var ifi Interface
		if err := ifi.parseAttributes(m.Data); err != nil {
			return nil, fmt.Errorf("decode interface attributes: %w", err)
		}
		ifis = append(ifis, ifi)
	}

	return ifis, nil
}

// parseAttributes fills an Interface from a flat nl80211 attribute sequence.
// The decoder enforces scalar widths: a u32 attribute with a payload that is
// not exactly four bytes is a decode error, never a truncated value.
func (ifi *Interface) parseAttributes(b []byte) error {
	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		return err
	}

	for ad.Next() {
		switch ad.Type() {
		case unix.NL80211_ATTR_IFINDEX:
			ifi.Index = int(ad.Uint32())
		case unix.NL80211_ATTR_IFNAME:
			ifi.Name = ad.String()
		case unix.NL80211_ATTR_MAC:
			ifi.HardwareAddr = net.HardwareAddr(ad.Bytes())
		case unix.NL80211_ATTR_WIPHY:
			ifi.PHY = int(ad.Uint32())
		case unix.NL80211_ATTR_WDEV:
			ifi.Device = int(ad.Uint64())
		case unix.NL80211_ATTR_IFTYPE:
			ifi.Type = InterfaceType(ad.Uint32())
		}
	}

	return ad.Err()
}
