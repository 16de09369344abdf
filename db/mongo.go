package db

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lie-detector/models"
)

const checkpointsCollection = "checkpoints"

type MongoClient struct {
	client *mongo.Client
	coll   *mongo.Collection
	nextID atomic.Int64
}

func NewMongoClient(ctx context.Context, uri, database string) (*MongoClient, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	coll := client.Database(database).Collection(checkpointsCollection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "question", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error creating checkpoint index: %s", err)
	}

	mc := &MongoClient{client: client, coll: coll}
	mc.nextID.Store(time.Now().UnixNano())
	return mc, nil
}

func (db *MongoClient) Close() error {
	if db.client != nil {
		return db.client.Disconnect(context.Background())
	}
	return nil
}

// StoreCheckpoint inserts a checkpoint report and sets its ID.
func (db *MongoClient) StoreCheckpoint(ctx context.Context, report *models.CheckpointReport) error {
	if report.ID == 0 {
		report.ID = db.nextID.Add(1)
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	if _, err := db.coll.InsertOne(ctx, report); err != nil {
		return fmt.Errorf("error storing checkpoint: %s", err)
	}
	return nil
}

// SessionCheckpoints returns a session's checkpoints in question order.
func (db *MongoClient) SessionCheckpoints(ctx context.Context, sessionID string) ([]models.CheckpointReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "question", Value: 1}, {Key: "id", Value: 1}})
	cursor, err := db.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying checkpoints: %s", err)
	}
	defer cursor.Close(ctx)

	reports := []models.CheckpointReport{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("error decoding checkpoints: %s", err)
	}
	return reports, nil
}

// RecentCheckpoints returns the newest checkpoints across sessions.
func (db *MongoClient) RecentCheckpoints(ctx context.Context, limit int) ([]models.CheckpointReport, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := db.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying checkpoints: %s", err)
	}
	defer cursor.Close(ctx)

	reports := []models.CheckpointReport{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("error decoding checkpoints: %s", err)
	}
	return reports, nil
}
