package nl80211

// ssidElementID is the 802.11 information-element id carrying the network
// name.
const ssidElementID = 0

// ssidFromIEs walks the information-element chain embedded in a BSS
// attribute and returns the payload of the first SSID element. Each element
// is one id byte, one length byte and length payload bytes.
//
// Malformed trailing data is common in the wild, so running out of buffer
// mid-element reports "not found" rather than an error.
func ssidFromIEs(b []byte) ([]byte, bool) {
	for len(b) >= 2 {
		id, length := b[0], int(b[1])
		b = b[2:]

		if length > len(b) {
			return nil, false
		}
		if id == ssidElementID {
			return b[:length], true
		}
		b = b[length:]
	}

	return nil, false
}
