package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gretchen/pkg/logx"
)

// mongoStore keeps one collection per entity. Every status transition is a
// single-document atomic update, so no multi-document transactions are used.
type mongoStore struct {
	log    logx.Logger
	client *mongo.Client

	reminders *mongo.Collection
	users     *mongo.Collection
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if cfg.MongoURI == "" {
		return nil, errors.New("storage.mongo_uri is required for mongo driver")
	}
	dbName := cfg.MongoDB
	if dbName == "" {
		dbName = "gretchen"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	// Fail fast on an unreachable server instead of at the first query.
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(dbName)
	s := &mongoStore{
		log:       log,
		client:    client,
		reminders: db.Collection("reminders"),
		users:     db.Collection("users"),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.reminders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "destination", Value: 1}, {Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_at", Value: 1}},
		},
	})
	if err != nil {
		return err
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "destination", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *mongoStore) ListAll(ctx context.Context) ([]Reminder, error) {
	cursor, err := s.reminders.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Reminder
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) Get(ctx context.Context, id string) (Reminder, error) {
	var r Reminder
	err := s.reminders.FindOne(ctx, bson.M{"id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *mongoStore) Add(ctx context.Context, r Reminder) error {
	_, err := s.reminders.InsertOne(ctx, r)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateID
	}
	return err
}

func (s *mongoStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	// Match only when the status actually changes so repeat calls are no-ops
	// that leave updated_at untouched.
	res, err := s.reminders.UpdateOne(ctx,
		bson.M{"id": id, "status": bson.M{"$ne": status}},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.reminders.CountDocuments(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.reminders.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *mongoStore) GetUserTimezone(ctx context.Context, destination string) (string, bool, error) {
	var pref UserPreference
	err := s.users.FindOne(ctx, bson.M{"destination": destination}).Decode(&pref)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return pref.Timezone, pref.Timezone != "", nil
}

func (s *mongoStore) SetUserTimezone(ctx context.Context, destination, tz string) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.users.UpdateOne(ctx,
		bson.M{"destination": destination},
		bson.M{"$set": bson.M{"timezone": tz, "updated_at": time.Now().UTC()}},
		opts,
	)
	return err
}
