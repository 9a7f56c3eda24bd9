package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ineyio/infergate"
)

// Identity headers.
const (
	HeaderAdminKey = "x-admin-key"
	HeaderAPIKey   = "x-api-key"
	HeaderUserID   = "x-user-id"
)

// AnonymousUser is the identity of callers that present no credentials.
const AnonymousUser = "anon"

// IdentityResolver maps request headers to a caller identity. It must be
// deterministic for a given header set.
type IdentityResolver interface {
	Resolve(h http.Header) infergate.Identity
}

// HeaderResolver resolves identities from static keys: a matching admin key
// yields the admin, a matching partner key a partner, and anything else a
// user named by x-user-id.
type HeaderResolver struct {
	AdminKey    string
	PartnerKeys []string
}

var _ IdentityResolver = HeaderResolver{}

// Resolve implements IdentityResolver.
func (r HeaderResolver) Resolve(h http.Header) infergate.Identity {
	if key := h.Get(HeaderAdminKey); key != "" && keyEqual(key, r.AdminKey) {
		return infergate.Identity{ID: "admin", Role: infergate.RoleAdmin}
	}

	if key := h.Get(HeaderAPIKey); key != "" {
		for _, pk := range r.PartnerKeys {
			if keyEqual(key, pk) {
				return infergate.Identity{ID: partnerID(key), Role: infergate.RolePartner}
			}
		}
	}

	id := strings.TrimSpace(h.Get(HeaderUserID))
	if id == "" {
		id = AnonymousUser
	}
	return infergate.Identity{ID: id, Role: infergate.RoleUser}
}

func keyEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// partnerID derives a stable id without recording the key itself.
func partnerID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "partner-" + hex.EncodeToString(sum[:6])
}

type identityKey struct{}

func withIdentity(ctx context.Context, id infergate.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity resolved for the request.
func IdentityFrom(ctx context.Context) (infergate.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(infergate.Identity)
	return id, ok
}
