package channel

import "strings"

// RoutePlatformToDevice removes the "g/<gw>/" segment from a
// platform-addressed channel, producing the device-side channel the
// gateway forwards downstream. Returns "" if the segment isn't present.
//
// Grounded on the channel-rewrite helpers in
// original_source/src/JsonParser.cpp.
func RoutePlatformToDevice(ch, gw string) string {
	toks := Split(ch)
	for i := 0; i < len(toks)-1; i++ {
		if toks[i] == tokGateway && toks[i+1] == gw {
			out := append(append([]string{}, toks[:i]...), toks[i+2:]...)
			return Join(out...)
		}
	}
	return ""
}

// RouteDeviceToPlatform inserts "g/<gw>/" immediately before the
// "d/..." segment of a device-side channel. Returns "" if the channel
// has no device prefix.
func RouteDeviceToPlatform(ch, gw string) string {
	toks := Split(ch)
	for i, t := range toks {
		if t == tokDevice {
			out := append(append([]string{}, toks[:i]...), append([]string{tokGateway, gw}, toks[i:]...)...)
			return Join(out...)
		}
	}
	return ""
}

// Validate reports whether ch is a non-empty, well-formed channel: at
// least a direction and a message-type segment, no empty tokens from
// doubled separators.
func Validate(ch string) bool {
	if ch == "" {
		return false
	}
	if strings.HasPrefix(ch, sep) || strings.HasSuffix(ch, sep) {
		return false
	}
	toks := Split(ch)
	if len(toks) < 2 {
		return false
	}
	for _, t := range toks {
		if t == "" {
			return false
		}
	}
	return true
}
