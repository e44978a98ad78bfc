package nmea

// IsRMC reports whether sentence carries the RMC sentence ID at offsets 3..5,
// whatever the talker ID at offsets 1..2 ($GPRMC, $GNRMC, $GLRMC, ...).
func IsRMC(sentence []byte) bool {
	return len(sentence) >= 6 && string(sentence[3:6]) == "RMC"
}
