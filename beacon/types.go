package beacon

import "time"

// DiscoveryContext distinguishes why a token was broadcast. It is carried
// end-to-end from registration through resolution so the UI can render the
// correct recipient affordance.
type DiscoveryContext string

const (
	ContextP2PReceive      DiscoveryContext = "P2P_RECEIVE"
	ContextMerchantReceive DiscoveryContext = "MERCHANT_RECEIVE"
)

// Valid reports whether the context is one of the known values.
func (c DiscoveryContext) Valid() bool {
	return c == ContextP2PReceive || c == ContextMerchantReceive
}

// Registration is a live backend-issued beacon registration. It is owned by
// the advertising controller for its lifetime and becomes invalid after
// TTLSeconds or explicit deregistration, whichever comes first.
type Registration struct {
	Token      uint32
	Major      uint16
	Minor      uint16
	Context    DiscoveryContext
	IssuedAt   time.Time
	TTLSeconds int
	ExpiresAt  time.Time
}

// Expired reports whether the registration's TTL has elapsed.
func (r Registration) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// DiscoveredBeacon is one currently-visible broadcaster. Repeated sightings
// of the same token update RSSI/distance/LastSeenAt in place; there is never
// more than one entry per token.
type DiscoveredBeacon struct {
	Token          uint32
	Major          uint16
	Minor          uint16
	RSSI           int
	DistanceMeters float64
	DeviceID       string
	LastSeenAt     time.Time
}

// NearbyUser is the fully resolved, UI-ready record: identity fields from
// the backend merged with live proximity fields from the local sighting.
// Rebuilt on every resolution pass, never persisted.
type NearbyUser struct {
	Token          string           `json:"token"`
	UserID         string           `json:"userId"`
	DisplayName    string           `json:"displayName"`
	Handle         string           `json:"handle,omitempty"`
	AvatarURL      string           `json:"avatarUrl,omitempty"`
	Context        DiscoveryContext `json:"context"`
	RSSI           int              `json:"rssi"`
	DistanceMeters float64          `json:"distanceMeters"`
	Proximity      Proximity        `json:"proximity"`
	LastSeenAt     time.Time        `json:"lastSeenAt"`
}
