package imessage

// appleEpochOffset is the number of seconds between the Unix epoch and
// 2001-01-01T00:00:00Z, the zero point of chat.db timestamps.
const appleEpochOffset = 978307200

// AppleToUnix converts Apple epoch seconds to Unix seconds.
func AppleToUnix(ts int64) int64 {
	return ts + appleEpochOffset
}

// UnixToApple converts Unix seconds to Apple epoch seconds.
func UnixToApple(ts int64) int64 {
	return ts - appleEpochOffset
}

// AppleNanosToUnix converts a nanosecond-scaled message date to Unix seconds.
// Go integer division truncates toward zero, which matches how the store
// rounds its sub-second precision away.
func AppleNanosToUnix(ns int64) int64 {
	return AppleToUnix(ns / 1000000000)
}
