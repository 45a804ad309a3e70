package discoveryd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/paybeacon/beacon"
)

// tokenRetries bounds the random-token collision retry loop. With 2^32
// token space a handful of retries is already astronomically safe.
const tokenRetries = 8

// Handlers implements the discovery HTTP surface.
type Handlers struct {
	cfg      *Config
	log      *zap.Logger
	registry Registry
	profiles ProfileStore
}

// NewHandlers wires the handler set.
func NewHandlers(cfg *Config, log *zap.Logger, registry Registry, profiles ProfileStore) *Handlers {
	return &Handlers{cfg: cfg, log: log, registry: registry, profiles: profiles}
}

// Live is the liveness probe.
func (h *Handlers) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready is the readiness probe.
func (h *Handlers) Ready(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ready"})
}

type registerRequest struct {
	Context   beacon.DiscoveryContext `json:"context"`
	ExpiresIn int                     `json:"expiresIn"`
	Metadata  map[string]string       `json:"metadata"`
}

type registerResponse struct {
	Token      string    `json:"token"`
	Major      uint16    `json:"major"`
	Minor      uint16    `json:"minor"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TTLSeconds int       `json:"ttlSeconds"`
}

// Register issues a fresh opaque token bound to the caller.
func (h *Handlers) Register(c *fiber.Ctx) error {
	claims := PrincipalClaims(c)
	if claims == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthenticated"})
	}

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if !req.Context.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown discovery context"})
	}

	ttl := req.ExpiresIn
	if ttl == 0 {
		ttl = h.cfg.Beacon.DefaultTTLSeconds
	}
	if ttl < 0 || ttl > h.cfg.Beacon.MaxTTLSeconds {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("expiresIn must be between 1 and %d seconds", h.cfg.Beacon.MaxTTLSeconds),
		})
	}

	now := time.Now()
	reg := Registration{
		Context:   req.Context,
		OwnerID:   claims.Subject,
		Metadata:  req.Metadata,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Second),
	}

	var created bool
	for attempt := 0; attempt < tokenRetries; attempt++ {
		reg.Token = randomToken()
		err := h.registry.Create(c.Context(), reg)
		if errors.Is(err, ErrTokenTaken) {
			continue
		}
		if err != nil {
			h.log.Error("token registration failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration failed"})
		}
		created = true
		break
	}
	if !created {
		h.log.Error("token space exhausted after retries", zap.Int("retries", tokenRetries))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "could not allocate token"})
	}

	major, minor := beacon.Split(reg.Token)
	h.log.Info("beacon registered",
		zap.String("token", beacon.TokenHex(reg.Token)),
		zap.String("context", string(reg.Context)),
		zap.String("owner", claims.Subject),
		zap.Int("ttlSeconds", ttl),
	)

	return c.Status(fiber.StatusCreated).JSON(registerResponse{
		Token:      beacon.TokenHex(reg.Token),
		Major:      major,
		Minor:      minor,
		ExpiresAt:  reg.ExpiresAt,
		TTLSeconds: ttl,
	})
}

type lookupRequest struct {
	Tokens []string `json:"tokens"`
}

type lookupEntry struct {
	Token     string                  `json:"token"`
	Found     bool                    `json:"found"`
	Context   beacon.DiscoveryContext `json:"context,omitempty"`
	Recipient *Profile                `json:"recipient,omitempty"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
}

type lookupResponse struct {
	Results            []lookupEntry `json:"results"`
	RateLimitRemaining int           `json:"rateLimitRemaining"`
	RateLimitReset     int64         `json:"rateLimitReset"`
}

// Lookup resolves a batch of tokens to recipient profiles. Unknown or
// expired tokens come back found:false rather than erroring the batch.
func (h *Handlers) Lookup(c *fiber.Ctx) error {
	claims := PrincipalClaims(c)
	if claims == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthenticated"})
	}

	window := time.Duration(h.cfg.Beacon.RateWindowSeconds) * time.Second
	count, resetAt, err := h.registry.IncrementLookup(c.Context(), claims.Subject, window)
	if err != nil {
		h.log.Error("rate counter failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}

	remaining := int64(h.cfg.Beacon.LookupRateLimit) - count
	if remaining < 0 {
		remaining = 0
	}
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

	if count > int64(h.cfg.Beacon.LookupRateLimit) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "lookup rate limit exceeded"})
	}

	var req lookupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if len(req.Tokens) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tokens is required"})
	}
	if len(req.Tokens) > h.cfg.Beacon.LookupBatchLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("at most %d tokens per lookup", h.cfg.Beacon.LookupBatchLimit),
		})
	}

	results := make([]lookupEntry, 0, len(req.Tokens))
	for _, hex := range req.Tokens {
		entry := lookupEntry{Token: hex}

		token, err := beacon.ParseTokenHex(hex)
		if err != nil {
			results = append(results, entry)
			continue
		}

		reg, err := h.registry.Get(c.Context(), token)
		if errors.Is(err, ErrNotFound) {
			results = append(results, entry)
			continue
		}
		if err != nil {
			h.log.Error("registry read failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
		}

		profile, err := h.profiles.GetByUserID(c.Context(), reg.OwnerID)
		if err != nil {
			// A dangling registration stays unresolvable rather than
			// leaking a partial record.
			if !errors.Is(err, ErrProfileNotFound) {
				h.log.Error("profile read failed", zap.Error(err), zap.String("owner", reg.OwnerID))
			}
			results = append(results, entry)
			continue
		}

		entry.Found = true
		entry.Context = reg.Context
		entry.Recipient = profile
		entry.Metadata = reg.Metadata
		results = append(results, entry)
	}

	return c.JSON(lookupResponse{
		Results:            results,
		RateLimitRemaining: int(remaining),
		RateLimitReset:     resetAt.Unix(),
	})
}

// Deregister releases a token. Releasing an unknown or expired token is
// success; teardown paths call this unconditionally.
func (h *Handlers) Deregister(c *fiber.Ctx) error {
	claims := PrincipalClaims(c)
	if claims == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthenticated"})
	}

	token, err := beacon.ParseTokenHex(c.Params("token"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed token"})
	}

	reg, err := h.registry.Get(c.Context(), token)
	if errors.Is(err, ErrNotFound) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err != nil {
		h.log.Error("registry read failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "deregister failed"})
	}
	if reg.OwnerID != claims.Subject {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "token belongs to another principal"})
	}

	if err := h.registry.Delete(c.Context(), token); err != nil {
		h.log.Error("registry delete failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "deregister failed"})
	}

	h.log.Info("beacon deregistered", zap.String("token", beacon.TokenHex(token)))
	return c.SendStatus(fiber.StatusNoContent)
}

type activeResponse struct {
	Results []beacon.NearbyUser `json:"results"`
}

// Active enumerates currently registered recipients, optionally filtered by
// context. This is the server-side fallback when local scanning is
// unavailable; proximity fields are zero since there is no sighting.
func (h *Handlers) Active(c *fiber.Ctx) error {
	dctx := beacon.DiscoveryContext(c.Query("context"))
	if dctx != "" && !dctx.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown discovery context"})
	}

	regs, err := h.registry.ActiveByContext(c.Context(), dctx)
	if err != nil {
		h.log.Error("active enumeration failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "enumeration failed"})
	}

	results := make([]beacon.NearbyUser, 0, len(regs))
	for _, reg := range regs {
		profile, err := h.profiles.GetByUserID(c.Context(), reg.OwnerID)
		if err != nil {
			continue
		}
		results = append(results, beacon.NearbyUser{
			Token:       beacon.TokenHex(reg.Token),
			UserID:      profile.UserID,
			DisplayName: profile.DisplayName,
			Handle:      profile.Handle,
			AvatarURL:   profile.AvatarURL,
			Context:     reg.Context,
			LastSeenAt:  reg.IssuedAt,
		})
	}

	return c.JSON(activeResponse{Results: results})
}

// randomToken draws 32 bits from a v4 UUID.
func randomToken() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[0:4])
}
