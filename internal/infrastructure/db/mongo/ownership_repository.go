package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

const resourceOwnersCollection = "resource_owners"

// OwnershipRepository resolves resource owners from the resource_owners
// collection. Each document maps (kind, resource_id) to the owning user id,
// e.g. ("account", "00000000011") -> "USER0001".
type OwnershipRepository struct {
	coll *mongo.Collection
}

var _ ports.OwnershipResolver = (*OwnershipRepository)(nil)

func NewOwnershipRepository(db *mongo.Database) *OwnershipRepository {
	return &OwnershipRepository{coll: db.Collection(resourceOwnersCollection)}
}

type resourceOwnerDoc struct {
	Kind       string `bson:"kind"`
	ResourceID string `bson:"resource_id"`
	OwnerID    string `bson:"owner_id"`
}

func (r *OwnershipRepository) ResolveOwner(ctx context.Context, kind, resourceID string) (string, error) {
	var doc resourceOwnerDoc
	filter := bson.M{"kind": kind, "resource_id": resourceID}
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", domain.ErrResourceNotFound
		}
		return "", fmt.Errorf("resolve owner: %w", err)
	}
	return doc.OwnerID, nil
}

// EnsureIndexes creates the unique (kind, resource_id) index.
func (r *OwnershipRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "resource_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
