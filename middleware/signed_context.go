package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/response"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

/* ========================================================================
 * Signed Isolation Headers (v1)
 * ========================================================================
 * Scope:
 *   - The gateway resolves the caller's isolation scope and injects the
 *     x-tenant-id / x-organization-id / x-department-id / x-user-id
 *     headers, signed so downstream services can trust them.
 *   - Without a signature any client could claim any tenant; verification
 *     is what makes header-based isolation safe on internal networks.
 *
 * Headers:
 *   - X-Isolation-V: version ("1")
 *   - X-Isolation-Iss: issuer (gateway/service name)
 *   - X-Isolation-Ts: unix timestamp (seconds)
 *   - X-Isolation-Nonce: random nonce
 *   - X-Isolation-Sign: hex(HMAC-SHA256(secret, payload))
 *
 * Signature payload:
 *   v|iss|ts|nonce|tenant|org|dept|user
 * ======================================================================== */

const (
	SignedContextVersionV1 = "1"

	HeaderIsolationVersion   = "X-Isolation-V"
	HeaderIsolationIssuer    = "X-Isolation-Iss"
	HeaderIsolationTimestamp = "X-Isolation-Ts"
	HeaderIsolationNonce     = "X-Isolation-Nonce"
	HeaderIsolationSignature = "X-Isolation-Sign"
)

const (
	defaultSignedMaxAge    = 5 * time.Minute
	defaultSignedClockSkew = 30 * time.Second
	signedNonceSize        = 16
	signedPayloadDelimiter = "|"
)

var (
	ErrSignedContextMissing          = errors.New("missing isolation signature headers")
	ErrSignedContextInvalidVersion   = errors.New("invalid isolation signature version")
	ErrSignedContextInvalidTS        = errors.New("invalid isolation signature timestamp")
	ErrSignedContextMissingNonce     = errors.New("missing isolation signature nonce")
	ErrSignedContextInvalidSign      = errors.New("invalid isolation signature")
	ErrSignedContextExpired          = errors.New("isolation signature expired")
	ErrSignedContextNotYetValid      = errors.New("isolation signature timestamp in future")
	ErrSignedContextMissingSecret    = errors.New("isolation signer secret is required")
	ErrSignedContextInvalidIssuer    = errors.New("invalid isolation signature issuer")
	ErrSignedContextIssuerNotAllowed = errors.New("isolation signature issuer not allowed")
)

// SignedContextValues is the structured form of the signature headers plus
// the isolation identifiers the signature covers.
type SignedContextValues struct {
	Version   string
	Issuer    string
	Timestamp int64
	Nonce     string
	Signature string

	TenantID       string
	OrganizationID string
	DepartmentID   string
	UserID         string
}

// ToMap converts the values into a header map, isolation identifiers
// included.
func (v SignedContextValues) ToMap() map[string]string {
	headers := map[string]string{
		HeaderIsolationVersion:   v.Version,
		HeaderIsolationIssuer:    v.Issuer,
		HeaderIsolationTimestamp: strconv.FormatInt(v.Timestamp, 10),
		HeaderIsolationNonce:     v.Nonce,
		HeaderIsolationSignature: v.Signature,
	}
	if v.TenantID != "" {
		headers[isolation.HeaderTenantID] = v.TenantID
	}
	if v.OrganizationID != "" {
		headers[isolation.HeaderOrganizationID] = v.OrganizationID
	}
	if v.DepartmentID != "" {
		headers[isolation.HeaderDepartmentID] = v.DepartmentID
	}
	if v.UserID != "" {
		headers[isolation.HeaderUserID] = v.UserID
	}
	return headers
}

// WriteSignedHeaders writes all headers into http.Header.
func WriteSignedHeaders(h http.Header, v SignedContextValues) {
	if h == nil || v.Signature == "" {
		return
	}
	for key, value := range v.ToMap() {
		h.Set(key, value)
	}
}

// ContextSignerConfig configures isolation header signing.
type ContextSignerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Issuer  string `yaml:"issuer"`
	Version string `yaml:"version"`

	NowFunc func() time.Time `yaml:"-"`
}

// ContextSigner signs outbound isolation headers.
type ContextSigner struct {
	config  ContextSignerConfig
	nowFunc func() time.Time
}

// NewContextSigner creates a signer.
func NewContextSigner(cfg *ContextSignerConfig) *ContextSigner {
	if cfg == nil {
		cfg = &ContextSignerConfig{}
	}
	config := *cfg
	if config.Version == "" {
		config.Version = SignedContextVersionV1
	}
	signer := &ContextSigner{config: config}
	if config.NowFunc != nil {
		signer.nowFunc = config.NowFunc
	} else {
		signer.nowFunc = time.Now
	}
	return signer
}

// Sign builds signed header values for the given isolation context.
func (s *ContextSigner) Sign(ic *isolation.Context) (SignedContextValues, error) {
	if !s.config.Enabled {
		return SignedContextValues{}, nil
	}
	if s.config.Secret == "" {
		return SignedContextValues{}, ErrSignedContextMissingSecret
	}
	if s.config.Issuer == "" {
		return SignedContextValues{}, ErrSignedContextInvalidIssuer
	}
	if ic == nil {
		ic = isolation.Platform()
	}
	nonce, err := generateNonce()
	if err != nil {
		return SignedContextValues{}, err
	}
	values := SignedContextValues{
		Version:        s.config.Version,
		Issuer:         s.config.Issuer,
		Timestamp:      s.nowFunc().Unix(),
		Nonce:          nonce,
		TenantID:       ic.TenantID().String(),
		OrganizationID: ic.OrganizationID().String(),
		DepartmentID:   ic.DepartmentID().String(),
		UserID:         ic.UserID().String(),
	}
	values.Signature = signContextPayload(s.config.Secret, values)
	return values, nil
}

// ContextVerifierConfig configures signature verification.
type ContextVerifierConfig struct {
	Enabled          bool              `yaml:"enabled"`
	Secret           string            `yaml:"secret"`
	Secrets          map[string]string `yaml:"secrets"`
	AllowedIssuers   []string          `yaml:"allowed_issuers"`
	Version          string            `yaml:"version"`
	MaxAge           time.Duration     `yaml:"max_age"`
	AllowedClockSkew time.Duration     `yaml:"allowed_clock_skew"`

	NowFunc func() time.Time `yaml:"-"`
}

// ContextVerifier verifies that the isolation headers were signed by a
// trusted issuer before the extractor consumes them.
type ContextVerifier struct {
	config  ContextVerifierConfig
	log     *logger.Logger
	nowFunc func() time.Time
}

// NewContextVerifier creates a verifier.
func NewContextVerifier(cfg *ContextVerifierConfig, log *logger.Logger) *ContextVerifier {
	if cfg == nil {
		cfg = &ContextVerifierConfig{}
	}
	config := *cfg
	if config.Version == "" {
		config.Version = SignedContextVersionV1
	}
	if config.MaxAge == 0 {
		config.MaxAge = defaultSignedMaxAge
	}
	if config.AllowedClockSkew == 0 {
		config.AllowedClockSkew = defaultSignedClockSkew
	}
	if log == nil {
		log = logger.NewNop()
	}
	verifier := &ContextVerifier{config: config, log: log}
	if config.NowFunc != nil {
		verifier.nowFunc = config.NowFunc
	} else {
		verifier.nowFunc = time.Now
	}
	return verifier
}

// Authenticate returns a Fiber middleware for signature verification.
// Chain it before IsolationExtractor.Extract.
func (v *ContextVerifier) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !v.config.Enabled {
			return c.Next()
		}
		if v.config.Secret == "" && len(v.config.Secrets) == 0 {
			v.log.Error("isolation verifier misconfigured: missing secret")
			return response.InternalError(c, "isolation verifier misconfigured")
		}
		values, err := ParseSignedContextFromFiber(c)
		if err != nil {
			v.log.Warn("isolation signature parse failed",
				zap.Error(err),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return response.Unauthorized(c, err.Error())
		}
		if err := v.Verify(values); err != nil {
			v.log.Warn("isolation signature verify failed",
				zap.Error(err),
				zap.String("issuer", values.Issuer),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return response.Unauthorized(c, err.Error())
		}
		return c.Next()
	}
}

// Verify checks the signature over the isolation identifiers.
func (v *ContextVerifier) Verify(values SignedContextValues) error {
	if values.Version == "" || values.Issuer == "" || values.Timestamp == 0 || values.Signature == "" {
		return ErrSignedContextMissing
	}
	if v.config.Version != "" && values.Version != v.config.Version {
		return ErrSignedContextInvalidVersion
	}
	if !v.isIssuerAllowed(values.Issuer) {
		return ErrSignedContextIssuerNotAllowed
	}
	if values.Nonce == "" {
		return ErrSignedContextMissingNonce
	}
	secret := v.secretForIssuer(values.Issuer)
	if secret == "" {
		return ErrSignedContextMissingSecret
	}
	expected := signContextPayload(secret, values)
	if !secureCompare(expected, values.Signature) {
		return ErrSignedContextInvalidSign
	}
	issuedAt := time.Unix(values.Timestamp, 0)
	now := v.nowFunc()
	if v.config.MaxAge > 0 && now.Sub(issuedAt) > v.config.MaxAge {
		return ErrSignedContextExpired
	}
	if issuedAt.After(now.Add(v.config.AllowedClockSkew)) {
		return ErrSignedContextNotYetValid
	}
	return nil
}

// ParseSignedContextFromFiber reads signature and isolation headers from
// fiber.Ctx.
func ParseSignedContextFromFiber(c fiber.Ctx) (SignedContextValues, error) {
	return parseSignedContextValues(func(key string) string { return c.Get(key) })
}

// ParseSignedContextFromHeader reads signature and isolation headers from
// http.Header.
func ParseSignedContextFromHeader(h http.Header) (SignedContextValues, error) {
	if h == nil {
		return SignedContextValues{}, ErrSignedContextMissing
	}
	return parseSignedContextValues(h.Get)
}

func parseSignedContextValues(get func(string) string) (SignedContextValues, error) {
	version := strings.TrimSpace(get(HeaderIsolationVersion))
	issuer := strings.TrimSpace(get(HeaderIsolationIssuer))
	stamp := strings.TrimSpace(get(HeaderIsolationTimestamp))
	signature := strings.TrimSpace(get(HeaderIsolationSignature))
	if version == "" || issuer == "" || stamp == "" || signature == "" {
		return SignedContextValues{}, ErrSignedContextMissing
	}
	timestamp, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || timestamp <= 0 {
		return SignedContextValues{}, ErrSignedContextInvalidTS
	}
	return SignedContextValues{
		Version:        version,
		Issuer:         issuer,
		Timestamp:      timestamp,
		Nonce:          strings.TrimSpace(get(HeaderIsolationNonce)),
		Signature:      signature,
		TenantID:       strings.TrimSpace(get(isolation.HeaderTenantID)),
		OrganizationID: strings.TrimSpace(get(isolation.HeaderOrganizationID)),
		DepartmentID:   strings.TrimSpace(get(isolation.HeaderDepartmentID)),
		UserID:         strings.TrimSpace(get(isolation.HeaderUserID)),
	}, nil
}

func (v *ContextVerifier) secretForIssuer(issuer string) string {
	if issuer == "" {
		return ""
	}
	if len(v.config.Secrets) > 0 {
		if secret, ok := v.config.Secrets[issuer]; ok {
			return secret
		}
		if v.config.Secret != "" {
			return v.config.Secret
		}
		return ""
	}
	return v.config.Secret
}

func (v *ContextVerifier) isIssuerAllowed(issuer string) bool {
	if issuer == "" {
		return false
	}
	if len(v.config.AllowedIssuers) == 0 {
		return true
	}
	for _, allowed := range v.config.AllowedIssuers {
		if issuer == allowed {
			return true
		}
	}
	return false
}

func signContextPayload(secret string, values SignedContextValues) string {
	parts := []string{
		values.Version,
		values.Issuer,
		strconv.FormatInt(values.Timestamp, 10),
		values.Nonce,
		values.TenantID,
		values.OrganizationID,
		values.DepartmentID,
		values.UserID,
	}
	payload := strings.Join(parts, signedPayloadDelimiter)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func secureCompare(expected, provided string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func generateNonce() (string, error) {
	buf := make([]byte, signedNonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
