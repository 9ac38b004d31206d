package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthProvider is the canonical login path of an identity
type AuthProvider string

const (
	// ProviderLocal identities log in with email and password
	ProviderLocal AuthProvider = "local"
	// ProviderFederated identities log in through the OIDC provider. A merged
	// account keeps its password hash and can use both paths.
	ProviderFederated AuthProvider = "federated"
)

// DefaultStartingCredits is granted to every new identity
const DefaultStartingCredits = 5

// Column names accepted by IdentityStore.Save
const (
	ColumnEmail            = "email"
	ColumnPasswordHash     = "password_hash"
	ColumnFamilyName       = "family_name"
	ColumnGivenName        = "given_name"
	ColumnAvatarURL        = "avatar_url"
	ColumnLevel            = "level"
	ColumnTrack            = "track"
	ColumnProfileCompleted = "profile_completed"
)

// Identity is the durable account record
type Identity struct {
	bun.BaseModel    `bun:"table:identities,alias:idn"`
	ID               uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email            string       `bun:"email,notnull,unique" json:"email"`
	PasswordHash     string       `bun:"password_hash,nullzero" json:"-"`
	FederatedID      string       `bun:"federated_id,nullzero" json:"federated_id,omitempty"`
	FamilyName       string       `bun:"family_name" json:"family_name"`
	GivenName        string       `bun:"given_name" json:"given_name"`
	AvatarURL        string       `bun:"avatar_url,nullzero" json:"avatar_url,omitempty"`
	AuthProvider     AuthProvider `bun:"auth_provider,notnull" json:"auth_provider"`
	Level            string       `bun:"level,nullzero" json:"level,omitempty"`
	Track            string       `bun:"track,nullzero" json:"track,omitempty"`
	ProfileCompleted bool         `bun:"profile_completed,notnull" json:"profile_completed"`
	Credits          int          `bun:"credits,notnull" json:"credits"`
	CreatedAt        time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time    `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// HasPassword reports whether the identity can log in locally
func (i *Identity) HasPassword() bool {
	return i != nil && i.PasswordHash != ""
}

// IsFederated reports whether the identity is linked to a provider subject
func (i *Identity) IsFederated() bool {
	return i != nil && i.FederatedID != ""
}

// NormalizeEmail trims and lower cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
