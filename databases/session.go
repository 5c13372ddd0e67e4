package databases

// go generate: mockery --name SessionDatabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/adr-report-api/models"
)

const sessionName = "sessions"

// ErrSessionNotFound is returned when no session has the requested ID
var ErrSessionNotFound = errors.New("session not found")

// SessionDatabase contains the methods to use with the session database
type SessionDatabase interface {
	Create(ctx context.Context, session models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionDatabase struct {
	db DatabaseHelper
}

// NewSessionDatabase initializes a new instance of session database with the provided db connection
func NewSessionDatabase(db DatabaseHelper) SessionDatabase {
	return &sessionDatabase{
		db: db,
	}
}

func (s *sessionDatabase) Create(ctx context.Context, session models.Session) error {
	if _, err := s.db.Collection(sessionName).InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *sessionDatabase) FindByID(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	err := s.db.Collection(sessionName).FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionDatabase) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.Collection(sessionName).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"revokedAt": at}})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *sessionDatabase) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Collection(sessionName).DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"expiresAt": bson.M{"$lte": now}},
		bson.M{"revokedAt": bson.M{"$exists": true}},
	}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}
