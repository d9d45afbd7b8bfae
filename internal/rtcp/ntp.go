package rtcp

import "time"

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// NTPTime converts t to the 64-bit NTP timestamp format (32-bit
// seconds since 1900 in the high word, 32-bit fractional seconds in
// the low word) a SenderReport carries.
func NTPTime(t time.Time) uint64 {
	secs := uint64(t.Unix()+ntpEpochOffset) << 32
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	return secs | frac
}
