package beacon

import "encoding/binary"

// iBeacon-style payload layout, carried inside manufacturer-specific data:
// [type: 1 byte][length: 1 byte][UUID: 16 bytes][major BE: 2][minor BE: 2][TX power: 1]
const (
	beaconPayloadType   = 0x02
	beaconPayloadLength = 0x15 // 21 bytes following the length byte
	BeaconPayloadSize   = 23
)

// EncodeBeaconPayload serializes a proximity beacon payload.
func EncodeBeaconPayload(proximityUUID [16]byte, major, minor uint16, txPower int8) []byte {
	buf := make([]byte, BeaconPayloadSize)
	buf[0] = beaconPayloadType
	buf[1] = beaconPayloadLength
	copy(buf[2:18], proximityUUID[:])
	binary.BigEndian.PutUint16(buf[18:20], major)
	binary.BigEndian.PutUint16(buf[20:22], minor)
	buf[22] = byte(txPower)
	return buf
}

// ParseBeaconPayload parses a proximity beacon payload. Returns ok=false for
// anything that is not an exact-length beacon frame with the marker bytes.
func ParseBeaconPayload(data []byte) (proximityUUID [16]byte, major, minor uint16, txPower int8, ok bool) {
	if len(data) != BeaconPayloadSize {
		return proximityUUID, 0, 0, 0, false
	}
	if data[0] != beaconPayloadType || data[1] != beaconPayloadLength {
		return proximityUUID, 0, 0, 0, false
	}
	copy(proximityUUID[:], data[2:18])
	major = binary.BigEndian.Uint16(data[18:20])
	minor = binary.BigEndian.Uint16(data[20:22])
	txPower = int8(data[22])
	return proximityUUID, major, minor, txPower, true
}
