package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection   = "users"
	promptsCollection = "prompts"
)

type MongoStorage struct {
	client  *mongo.Client
	users   *mongo.Collection
	prompts *mongo.Collection
	log     *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(database)
	prompts := db.Collection(promptsCollection)

	// Index prompt history by user for faster lookups
	_, err = prompts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		log.Warn("creating index", slog.String("error", err.Error()))
	}

	return &MongoStorage{
		client:  client,
		users:   db.Collection(usersCollection),
		prompts: prompts,
		log:     log,
	}, nil
}

func (m *MongoStorage) GetUser(userId int64) (*User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var user User
	err := m.users.FindOne(ctx, bson.M{"_id": userId}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

func (m *MongoStorage) CreateUser(userId int64, credits int, language string) (*User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user := &User{
		ID:        userId,
		Credits:   credits,
		Language:  language,
		CreatedAt: time.Now(),
	}
	_, err := m.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		// concurrent /start, return whoever won
		return m.GetUser(userId)
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

func (m *MongoStorage) SetCredits(userId int64, credits int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.users.UpdateOne(ctx,
		bson.M{"_id": userId},
		bson.M{"$set": bson.M{"credits": credits}},
	)
	if err != nil {
		return fmt.Errorf("updating credits: %w", err)
	}
	return nil
}

func (m *MongoStorage) SavePrompt(record PromptRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record.CreatedAt = time.Now()
	_, err := m.prompts.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("saving prompt: %w", err)
	}
	return nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
