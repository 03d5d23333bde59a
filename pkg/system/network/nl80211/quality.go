package nl80211

import "math"

// signalQuality converts a signal power reading in hundredths of a dBm (as
// carried by the BSS signal attribute) to the conventional 0-100 percent
// quality score: -40 dBm or better is 100, -100 dBm or worse is 0, linear
// in between.
func signalQuality(mbm int32) int {
	dbm := float64(mbm) / 100

	if dbm < -100 {
		dbm = -100
	}
	if dbm > -40 {
		dbm = -40
	}

	q := math.Round(100 - (100*math.Abs(dbm+40))/60)

	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return int(q)
}
