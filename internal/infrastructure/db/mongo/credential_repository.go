package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

const userSecurityCollection = "user_security"

// CredentialRepository reads principals from the user security collection,
// one document per legacy USRSEC record.
type CredentialRepository struct {
	coll *mongo.Collection
}

var _ ports.CredentialVerifier = (*CredentialRepository)(nil)

func NewCredentialRepository(db *mongo.Database) *CredentialRepository {
	return &CredentialRepository{coll: db.Collection(userSecurityCollection)}
}

type userSecurityDoc struct {
	UserID       string `bson:"user_id"`
	FirstName    string `bson:"first_name"`
	LastName     string `bson:"last_name"`
	PasswordHash string `bson:"password_hash"`
	// UserType is the legacy single-character code: "A" admin, "U" user.
	UserType string `bson:"user_type"`
	Enabled  *bool  `bson:"enabled,omitempty"`
	Locked   bool   `bson:"locked"`
	Expired  bool   `bson:"expired"`
}

func (r *CredentialRepository) FindByUsername(ctx context.Context, username string) (*domain.Principal, error) {
	var doc userSecurityDoc
	err := r.coll.FindOne(ctx, bson.M{"user_id": strings.ToUpper(username)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toPrincipal(), nil
}

// toPrincipal maps the stored document. Records without an enabled flag
// predate it and are treated as enabled.
func (d *userSecurityDoc) toPrincipal() *domain.Principal {
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	return &domain.Principal{
		ID:           d.UserID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		PasswordHash: d.PasswordHash,
		Role:         domain.RoleFromLegacyCode(d.UserType),
		Enabled:      enabled,
		Locked:       d.Locked,
		Expired:      d.Expired,
	}
}

// EnsureIndexes creates the unique user id index.
func (r *CredentialRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
