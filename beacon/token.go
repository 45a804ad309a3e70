package beacon

import (
	"fmt"
	"strconv"
	"strings"
)

// Combine packs a (major, minor) pair into a 32-bit beacon token.
// The pair exists only as a wire-transport split; the token is the identity.
func Combine(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

// Split recovers the (major, minor) pair from a beacon token.
func Split(token uint32) (major, minor uint16) {
	return uint16(token >> 16), uint16(token & 0xFFFF)
}

// TokenHex renders a token as an 8-character uppercase hex string.
func TokenHex(token uint32) string {
	return fmt.Sprintf("%08X", token)
}

// ParseTokenHex parses an 8-hex-character token string (case-insensitive).
func ParseTokenHex(s string) (uint32, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("token must be 8 hex characters, got %d", len(s))
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid token %q: %w", s, err)
	}
	return uint32(v), nil
}

// ServiceIdentifier encodes a (major, minor) pair into the fixed UUID-shaped
// template. A scanner can recognize and extract the token purely from this
// string, without any binary payload.
func ServiceIdentifier(major, minor uint16) string {
	return fmt.Sprintf("%s%04X-%04X%s", ServiceIdentifierPrefix, major, minor, ServiceIdentifierSuffix)
}

// ParseServiceIdentifier extracts the (major, minor) pair and combined token
// from a service identifier string. Returns ok=false for anything that does
// not match the fixed prefix/suffix and exact hex group lengths.
func ParseServiceIdentifier(s string) (major, minor uint16, token uint32, ok bool) {
	expectedLen := len(ServiceIdentifierPrefix) + 4 + 1 + 4 + len(ServiceIdentifierSuffix)
	if len(s) != expectedLen {
		return 0, 0, 0, false
	}
	if !strings.EqualFold(s[:len(ServiceIdentifierPrefix)], ServiceIdentifierPrefix) {
		return 0, 0, 0, false
	}
	if !strings.EqualFold(s[len(s)-len(ServiceIdentifierSuffix):], ServiceIdentifierSuffix) {
		return 0, 0, 0, false
	}

	body := s[len(ServiceIdentifierPrefix) : len(s)-len(ServiceIdentifierSuffix)]
	if len(body) != 9 || body[4] != '-' {
		return 0, 0, 0, false
	}

	majorVal, err := strconv.ParseUint(body[:4], 16, 16)
	if err != nil {
		return 0, 0, 0, false
	}
	minorVal, err := strconv.ParseUint(body[5:], 16, 16)
	if err != nil {
		return 0, 0, 0, false
	}

	major = uint16(majorVal)
	minor = uint16(minorVal)
	return major, minor, Combine(major, minor), true
}

// DeviceName encodes a token into the local-name fallback format.
func DeviceName(token uint32) string {
	return DeviceNamePrefix + TokenHex(token)
}

// ParseDeviceName extracts a token from a local-name fallback string.
func ParseDeviceName(s string) (uint32, bool) {
	if !strings.HasPrefix(s, DeviceNamePrefix) {
		return 0, false
	}
	token, err := ParseTokenHex(s[len(DeviceNamePrefix):])
	if err != nil {
		return 0, false
	}
	return token, true
}
