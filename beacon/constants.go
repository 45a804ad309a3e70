package beacon

import "github.com/google/uuid"

// Stable identifiers for the PayBeacon announcement.
const (
	// AnnouncementUUID is the fixed proximity UUID used by the
	// manufacturer-payload broadcast path. Scanners match on it before
	// trusting the embedded major/minor pair.
	AnnouncementUUID = "E5D50F4C-8A30-4B70-9D2C-50585041A001"

	// AppleCompanyID prefixes iBeacon-style manufacturer data.
	AppleCompanyID = 0x004C
)

// Service identifier template: prefix + 4-hex major + "-" + 4-hex minor + suffix.
// The result is UUID-shaped so it rides in a standard service UUID
// advertisement field on platforms that strip third-party manufacturer data.
const (
	ServiceIdentifierPrefix = "50585041-"
	ServiceIdentifierSuffix = "-8A5F-7C2B90D1F3E6"
)

// DeviceNamePrefix marks the local-name fallback encoding ("PB:" + 8-hex token).
const DeviceNamePrefix = "PB:"

var announcementUUIDBytes = uuid.MustParse(AnnouncementUUID)

// AnnouncementUUIDBytes returns the announcement UUID as raw bytes for
// manufacturer payload encoding.
func AnnouncementUUIDBytes() [16]byte {
	return [16]byte(announcementUUIDBytes)
}
