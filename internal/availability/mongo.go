package availability

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "staff_availability"

// MongoRepo stores availability documents keyed by (user_id, org_id).
type MongoRepo struct {
	coll *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{coll: db.Collection(mongoCollection)}
}

// EnsureIndexes creates the identity index and the lookup index used by FindAvailable.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "org_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_org_unique"),
		},
		{
			Keys:    bson.D{{Key: "org_id", Value: 1}, {Key: "status", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("org_status_updated"),
		},
	})
	return err
}

// Upsert matches only a stored document that is not newer. If a newer one
// exists the filter misses, the upsert collides with the unique index, and the
// stored document wins.
func (r *MongoRepo) Upsert(ctx context.Context, a Availability) (Availability, error) {
	if a.UserID == "" || a.OrgID == "" {
		return Availability{}, ErrInvalidInput
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.Skills == nil {
		a.Skills = []string{}
	}

	filter := bson.M{
		"user_id":    a.UserID,
		"org_id":     a.OrgID,
		"updated_at": bson.M{"$lte": a.UpdatedAt},
	}
	update := bson.M{"$set": bson.M{
		"status":     a.Status,
		"skills":     a.Skills,
		"updated_at": a.UpdatedAt,
	}}
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return r.Get(ctx, a.UserID, a.OrgID)
	}
	if err != nil {
		return Availability{}, err
	}
	return a, nil
}

func (r *MongoRepo) Get(ctx context.Context, userID, orgID string) (Availability, error) {
	var a Availability
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID, "org_id": orgID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Availability{}, ErrNotFound
	}
	if err != nil {
		return Availability{}, err
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (r *MongoRepo) FindAvailable(ctx context.Context, orgID string) ([]Availability, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "user_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"org_id": orgID, "status": StatusAvailable}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]Availability, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].UpdatedAt = out[i].UpdatedAt.UTC()
	}
	return out, nil
}
