package db

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"interrogation/db/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	turnsCollection       = "conversation_turns"
	invocationsCollection = "ai_invocations"
	countersCollection    = "counters"
)

// MongoStore keeps turns and invocations in MongoDB. Turn ids are drawn from
// a counters collection so every backend exposes the same integer ids.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI environment variable not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := &MongoStore{client: client, database: client.Database(database)}
	s.createIndexes(ctx)

	log.Printf("Connected to MongoDB database %s", database)
	return s, nil
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.database.Collection(name)
}

// createIndexes creates the lookup indexes for the audit collections
func (s *MongoStore) createIndexes(ctx context.Context) {
	turnIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetBackground(true),
		},
	}
	if _, err := s.collection(turnsCollection).Indexes().CreateMany(ctx, turnIndexes); err != nil {
		log.Printf("[MONGO_INDEX_FAILED] %s: %v", turnsCollection, err)
	}

	invocationIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_turn_id", Value: 1}, {Key: "started_at", Value: 1}},
			Options: options.Index().SetBackground(true),
		},
	}
	if _, err := s.collection(invocationsCollection).Indexes().CreateMany(ctx, invocationIndexes); err != nil {
		log.Printf("[MONGO_INDEX_FAILED] %s: %v", invocationsCollection, err)
	}
}

// Acquire starts a client session; all writes through the returned Conn run
// inside it.
func (s *MongoStore) Acquire(ctx context.Context) (Conn, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	return &mongoConn{store: s, sess: sess}, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type mongoConn struct {
	store *MongoStore
	sess  mongo.Session
	once  sync.Once
}

func (c *mongoConn) sessionContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, c.sess)
}

func (c *mongoConn) nextTurnID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := c.store.collection(countersCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": turnsCollection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (c *mongoConn) CreateTurn(ctx context.Context, turn *models.TurnDocument) (int64, error) {
	ctx = c.sessionContext(ctx)

	id, err := c.nextTurnID(ctx)
	if err != nil {
		return 0, err
	}
	turn.ID = id
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	if _, err := c.store.collection(turnsCollection).InsertOne(ctx, turn); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *mongoConn) RecordInvocation(ctx context.Context, doc *models.InvocationDocument) error {
	_, err := c.store.collection(invocationsCollection).InsertOne(c.sessionContext(ctx), doc)
	return err
}

func (c *mongoConn) StoreResponse(ctx context.Context, turnID int64, outcome models.TurnOutcome) error {
	update := bson.M{"$set": bson.M{
		"original_response": outcome.OriginalResponse,
		"critique_response": outcome.CritiqueResponse,
		"problems_detected": outcome.ProblemsDetected,
		"final_response":    outcome.FinalResponse,
		"refined_response":  outcome.RefinedResponse,
		"finished_at":       time.Now(),
	}}
	res, err := c.store.collection(turnsCollection).UpdateByID(c.sessionContext(ctx), turnID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (c *mongoConn) Release() {
	c.once.Do(func() {
		c.sess.EndSession(context.Background())
	})
}
