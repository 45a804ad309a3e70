package discovery

import (
	"encoding/binary"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/radio"
)

// extraction is a token successfully pulled out of an advertisement frame.
type extraction struct {
	token  uint32
	major  uint16
	minor  uint16
	source string // which strategy matched, for trace logs
}

// extractToken tries each extraction strategy in priority order and returns
// the first match. Frames from unrelated devices fail all strategies and
// are ignored; malformed input is never an error here.
//
// Priority:
//  1. structured service identifier (cross-platform primary path)
//  2. device-name fallback carrying the hex token
//  3. iBeacon-style manufacturer payload (vendor marker + fixed UUID)
func extractToken(f radio.Frame) (extraction, bool) {
	for _, su := range f.ServiceUUIDs {
		if major, minor, token, ok := beacon.ParseServiceIdentifier(su); ok {
			return extraction{token: token, major: major, minor: minor, source: "service-identifier"}, true
		}
	}

	if token, ok := beacon.ParseDeviceName(f.LocalName); ok {
		major, minor := beacon.Split(token)
		return extraction{token: token, major: major, minor: minor, source: "device-name"}, true
	}

	if uuid, major, minor, ok := parseManufacturerBeacon(f.ManufacturerData); ok {
		if uuid == beacon.AnnouncementUUIDBytes() {
			return extraction{token: beacon.Combine(major, minor), major: major, minor: minor, source: "manufacturer-beacon"}, true
		}
	}

	return extraction{}, false
}

// parseManufacturerBeacon strips the little-endian company ID prefix and
// parses the iBeacon-style payload behind it.
func parseManufacturerBeacon(data []byte) (uuid [16]byte, major, minor uint16, ok bool) {
	if len(data) != 2+beacon.BeaconPayloadSize {
		return uuid, 0, 0, false
	}
	if binary.LittleEndian.Uint16(data[0:2]) != beacon.AppleCompanyID {
		return uuid, 0, 0, false
	}
	uuid, major, minor, _, ok = beacon.ParseBeaconPayload(data[2:])
	return uuid, major, minor, ok
}
