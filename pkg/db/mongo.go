package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voice-dashboard/pkg/domain"
)

// MongoRecordStore keeps recordings in a MongoDB collection. It is an
// alternate metadata store and the source of Mongo to Postgres replication.
type MongoRecordStore struct {
	mongoClient *mongo.Client
	database    *mongo.Database
	collection  *mongo.Collection
	now         func() time.Time
}

// NewMongoRecordStore creates a new store on the given collection
func NewMongoRecordStore(connectionString, databaseName, collectionName string) *MongoRecordStore {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		// Return store with nil - error will be caught during Connect()
		return &MongoRecordStore{now: time.Now}
	}

	database := mongoClient.Database(databaseName)
	collection := database.Collection(collectionName)

	return &MongoRecordStore{
		mongoClient: mongoClient,
		database:    database,
		collection:  collection,
		now:         time.Now,
	}
}

// Connect establishes connection to MongoDB
func (c *MongoRecordStore) Connect(ctx context.Context) error {
	if c.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return c.mongoClient.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (c *MongoRecordStore) Close(ctx context.Context) error {
	if c.mongoClient == nil {
		return nil
	}
	return c.mongoClient.Disconnect(ctx)
}

func (c *MongoRecordStore) coll() (*mongo.Collection, error) {
	if c.collection == nil {
		return nil, fmt.Errorf("collection not initialized")
	}
	return c.collection, nil
}

// listFilter builds the query document of a listing.
func listFilter(ownerID string, filter domain.ListFilter) bson.M {
	query := bson.M{
		"profile_id": ownerID,
		"file_url":   bson.M{"$nin": bson.A{"", nil}},
	}
	if filter.Status != "" {
		query["processing_status"] = string(filter.Status)
	}
	if filter.Search != "" {
		pattern := regexMatch(filter.Search)
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"transcript": pattern},
		}
	}
	return query
}

func regexMatch(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

func (c *MongoRecordStore) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Recording, error) {
	coll, err := c.coll()
	if err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	cursor, err := coll.Find(ctx, listFilter(ownerID, filter), opts)
	if err != nil {
		return nil, &domain.BackendError{Message: "list recordings: " + err.Error()}
	}
	defer cursor.Close(ctx)

	var recs []domain.Recording
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode recordings: %w", err)
	}
	return recs, nil
}

func (c *MongoRecordStore) Get(ctx context.Context, id string) (domain.Recording, error) {
	coll, err := c.coll()
	if err != nil {
		return domain.Recording{}, err
	}
	var rec domain.Recording
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Recording{}, fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Recording{}, &domain.BackendError{Message: "get recording: " + err.Error()}
	}
	return rec, nil
}

func (c *MongoRecordStore) Insert(ctx context.Context, rec domain.Recording) (domain.Recording, error) {
	coll, err := c.coll()
	if err != nil {
		return domain.Recording{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := c.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.ProcessingStatus == "" {
		rec.ProcessingStatus = domain.StatusPending
	}

	if _, err := coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Recording{}, fmt.Errorf("insert recording %s: %w", rec.ID, ErrDuplicate)
		}
		return domain.Recording{}, &domain.BackendError{Message: "insert recording: " + err.Error()}
	}
	return rec, nil
}

// Save saves a recording, replacing the stored document with the same id
func (c *MongoRecordStore) Save(ctx context.Context, rec domain.Recording) error {
	coll, err := c.coll()
	if err != nil {
		return err
	}

	// Use the id as unique identifier for upsert operation
	filter := bson.M{"_id": rec.ID}
	update := bson.M{"$set": rec}
	opts := options.Update().SetUpsert(true)

	_, err = coll.UpdateOne(ctx, filter, update, opts)
	return err
}

func (c *MongoRecordStore) Update(ctx context.Context, id string, upd domain.RecordingUpdate) (domain.Recording, error) {
	coll, err := c.coll()
	if err != nil {
		return domain.Recording{}, err
	}
	fields := upd.Fields()
	fields["updated_at"] = c.now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec domain.Recording
	err = coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": fields}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Recording{}, fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Recording{}, &domain.BackendError{Message: "update recording: " + err.Error()}
	}
	return rec, nil
}

func (c *MongoRecordStore) Delete(ctx context.Context, id string) error {
	coll, err := c.coll()
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return &domain.BackendError{Message: "delete recording: " + err.Error()}
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetAllRecordings fetches every stored recording
func (c *MongoRecordStore) GetAllRecordings(ctx context.Context) ([]domain.Recording, error) {
	coll, err := c.coll()
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []domain.Recording
	for cursor.Next(ctx) {
		var rec domain.Recording
		if err := cursor.Decode(&rec); err != nil {
			continue // Skip invalid documents
		}
		if rec.ID != "" {
			recs = append(recs, rec)
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return recs, nil
}

// SourceURLs returns the source URLs of imported recordings as a set
func (c *MongoRecordStore) SourceURLs(ctx context.Context, ownerID string) (map[string]bool, error) {
	coll, err := c.coll()
	if err != nil {
		return nil, err
	}

	filter := bson.M{"profile_id": ownerID, "metadata.source_url": bson.M{"$exists": true}}
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"metadata.source_url": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to query source URLs: %w", err)
	}
	defer cursor.Close(ctx)

	urlSet := make(map[string]bool)
	for cursor.Next(ctx) {
		var result struct {
			Metadata struct {
				SourceURL string `bson:"source_url"`
			} `bson:"metadata"`
		}
		if err := cursor.Decode(&result); err != nil {
			continue
		}
		if result.Metadata.SourceURL != "" {
			urlSet[result.Metadata.SourceURL] = true
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return urlSet, nil
}
