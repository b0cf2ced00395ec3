package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homespot/identity-service/internal/core/domain"
)

const sessionCollection = "active_sessions"

// MongoSessionRepository is the durable session registry. The compound unique
// index on (user_id, role) is what makes the revoke-then-create sequence safe
// under concurrent logins: the second insert fails instead of leaving two rows.
type MongoSessionRepository struct {
	coll *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *MongoSessionRepository {
	return &MongoSessionRepository{coll: db.Collection(sessionCollection)}
}

type sessionDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       string             `bson:"user_id"`
	Role         string             `bson:"role"`
	Token        string             `bson:"token"`
	ExpiresAtUTC time.Time          `bson:"expires_at_utc"`
}

func (r *MongoSessionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "role", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("session indexes: %w", err)
	}
	return nil
}

func (r *MongoSessionRepository) FindActive(ctx context.Context, userID, role string) ([]*domain.ActiveSession, error) {
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID, "role": role})
	if err != nil {
		return nil, fmt.Errorf("find active sessions: %w", err)
	}
	defer cur.Close(ctx)

	var sessions []*domain.ActiveSession
	for cur.Next(ctx) {
		var doc sessionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		sessions = append(sessions, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *MongoSessionRepository) Revoke(ctx context.Context, sessions []*domain.ActiveSession) error {
	if len(sessions) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(sessions))
	for _, s := range sessions {
		tokens = append(tokens, s.Token)
	}
	if _, err := r.coll.DeleteMany(ctx, bson.M{"token": bson.M{"$in": tokens}}); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func (r *MongoSessionRepository) Create(ctx context.Context, session *domain.ActiveSession) error {
	doc := sessionDoc{
		UserID:       session.UserID,
		Role:         session.Role,
		Token:        session.Token,
		ExpiresAtUTC: session.ExpiresAtUTC.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateSession
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *MongoSessionRepository) FindByToken(ctx context.Context, token string) (*domain.ActiveSession, error) {
	var doc sessionDoc
	if err := r.coll.FindOne(ctx, bson.M{"token": token}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session by token: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoSessionRepository) Delete(ctx context.Context, session *domain.ActiveSession) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"token": session.Token})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (d sessionDoc) toDomain() *domain.ActiveSession {
	return &domain.ActiveSession{
		UserID:       d.UserID,
		Role:         d.Role,
		Token:        d.Token,
		ExpiresAtUTC: d.ExpiresAtUTC.UTC(),
	}
}
