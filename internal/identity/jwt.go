package identity

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"storefront/internal/domain"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// JWT verifies session tokens issued by an external identity provider and
// maps their claims onto a domain.User.
type JWT struct {
	keyFunc jwt.Keyfunc
	issuer  string
	methods []string
	logger  *log.Logger
}

// JWTOptions configures a JWT provider.
type JWTOptions struct {
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Methods lists accepted signing algorithms. Defaults to RS256.
	Methods []string
	Logger  *log.Logger
}

type sessionClaims struct {
	Email          string         `json:"email,omitempty"`
	Name           string         `json:"name,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`
	Roles          []string       `json:"roles,omitempty"`
	PublicMetadata publicMetadata `json:"public_metadata,omitempty"`
	jwt.RegisteredClaims
}

type publicMetadata struct {
	Role string `json:"role,omitempty"`
}

func NewJWT(keyFunc jwt.Keyfunc, opts JWTOptions) *JWT {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	methods := opts.Methods
	if len(methods) == 0 {
		methods = []string{"RS256"}
	}
	return &JWT{
		keyFunc: keyFunc,
		issuer:  strings.TrimSpace(opts.Issuer),
		methods: methods,
		logger:  logger,
	}
}

// NewJWKS builds a JWT provider whose keys come from a JWKS endpoint. The
// returned stop function ends the background key refresh.
func NewJWKS(ctx context.Context, jwksURL string, opts JWTOptions) (*JWT, func(), error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Printf("identity: jwks refresh url=%s error=%v", jwksURL, err)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch jwks: %w", err)
	}
	opts.Logger = logger
	return NewJWT(jwks.Keyfunc, opts), jwks.EndBackground, nil
}

// CurrentUser verifies the token carried on ctx and returns its user.
func (p *JWT) CurrentUser(ctx context.Context) (*domain.User, error) {
	raw, ok := TokenFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, p.keyFunc, jwt.WithValidMethods(p.methods))
	if err != nil {
		p.logger.Printf("identity: token rejected error=%v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, ErrUnauthenticated
	}
	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		p.logger.Printf("identity: token rejected issuer=%s", claims.Issuer)
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrUnauthenticated, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}

	return &domain.User{
		ID:       claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		ImageURL: claims.ImageURL,
		Roles:    claimRoles(claims),
	}, nil
}

func claimRoles(c sessionClaims) []string {
	roles := make([]string, 0, len(c.Roles)+1)
	seen := make(map[string]struct{}, len(c.Roles)+1)
	add := func(r string) {
		r = strings.TrimSpace(r)
		if r == "" {
			return
		}
		key := strings.ToLower(r)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		roles = append(roles, r)
	}
	for _, r := range c.Roles {
		add(r)
	}
	add(c.PublicMetadata.Role)
	if len(roles) == 0 {
		return nil
	}
	return roles
}
