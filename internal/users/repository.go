package users

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seguralta/portal/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for an external id.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned by Insert when the external id already exists.
	ErrDuplicate = errors.New("user already exists")
)

// UserRepository defines persistence operations for users. Records are only
// ever looked up by external id.
type UserRepository interface {
	// GetByExternalID returns nil, nil when no record exists.
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Insert(ctx context.Context, u *models.User) (*models.User, error)
	Patch(ctx context.Context, externalID string, p models.UserPatch) (*models.User, error)
	DeleteByExternalID(ctx context.Context, externalID string) (bool, error)
	List(ctx context.Context, limit int) ([]*models.User, error)
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection.
// The by_externalId unique index is created by database.EnsureUserIndexes.
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

func (r *MongoUserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepository) Insert(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	rec := *u
	if rec.ID == "" {
		rec.ID = primitive.NewObjectID().Hex()
	}
	if rec.Role == "" {
		rec.Role = models.RoleUser
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, &rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &rec, nil
}

// patchDocument builds the $set for a patch; only non-nil fields are written.
func patchDocument(p models.UserPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Phone != nil {
		set["phone"] = *p.Phone
	}
	if p.CPF != nil {
		set["cpf"] = *p.CPF
	}
	if p.Role != nil {
		set["role"] = *p.Role
	}
	if p.OnboardingCompleted != nil {
		set["onboardingCompleted"] = *p.OnboardingCompleted
	}
	return bson.M{"$set": set}
}

func (r *MongoUserRepository) Patch(ctx context.Context, externalID string, p models.UserPatch) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.User
	err := r.col.FindOneAndUpdate(ctx, bson.M{"externalId": externalID}, patchDocument(p, time.Now().UTC()), opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (r *MongoUserRepository) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"externalId": externalID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoUserRepository) List(ctx context.Context, limit int) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.User{}
	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, cur.Err()
}
