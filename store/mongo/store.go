// Package mongo provides a MongoDB-backed alternative to
// store.InMemoryRepository: a durable, windowed record of process
// metadata that survives process restarts, grounded on the teacher's
// features/run/mongo.Store.
//
// Unlike the in-memory repository, this store cannot hand back a live
// *process.AgentProcess (a running process's goroutine, channels, and
// blackboard have no durable representation); it persists and returns a
// ProcessSnapshot instead — the id, parentage, status, and history a
// caller needs to audit or resume bookkeeping around, separate from the
// live in-memory process object itself.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kaelion/agentkit/process"
)

const (
	defaultCollection = "agent_processes"
	defaultOpTimeout   = 5 * time.Second
	defaultWindowSize  = 1000
)

// HistoryRecord is the durable projection of a process.HistoryEntry.
type HistoryRecord struct {
	ActionName string `bson:"action_name"`
	Timestamp  int64  `bson:"timestamp"`
	Err        string `bson:"err,omitempty"`
}

// ProcessSnapshot is the durable projection of an AgentProcess persisted
// by Store.Save.
type ProcessSnapshot struct {
	ID        string          `bson:"_id"`
	ParentID  string          `bson:"parent_id,omitempty"`
	AgentName string          `bson:"agent_name"`
	Status    process.Status  `bson:"status"`
	History   []HistoryRecord `bson:"history"`
	SavedAt   time.Time       `bson:"saved_at"`
}

// SnapshotOf projects an in-memory AgentProcess into a durable
// ProcessSnapshot.
func SnapshotOf(p *process.AgentProcess, agentName string) ProcessSnapshot {
	history := p.History()
	records := make([]HistoryRecord, len(history))
	for i, h := range history {
		rec := HistoryRecord{ActionName: h.ActionName, Timestamp: h.Timestamp}
		if h.Err != nil {
			rec.Err = h.Err.Error()
		}
		records[i] = rec
	}
	return ProcessSnapshot{
		ID:        p.ID(),
		ParentID:  p.ParentID(),
		AgentName: agentName,
		Status:    p.Status(),
		History:   records,
		SavedAt:   time.Now().UTC(),
	}
}

func terminal(status process.Status) bool {
	switch status {
	case process.StatusCompleted, process.StatusFailed, process.StatusTerminated:
		return true
	default:
		return false
	}
}

// Options configures Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
	WindowSize int
}

// Store persists ProcessSnapshot documents in MongoDB, windowed by
// WindowSize with the same skip-running-processes eviction rule as
// store.InMemoryRepository (spec.md §4.8 and §12's parity note).
type Store struct {
	coll       *mongodriver.Collection
	timeout    time.Duration
	windowSize int
}

// NewStore constructs a Store against the given client/database/collection.
func NewStore(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	return &Store{coll: coll, timeout: timeout, windowSize: windowSize}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Save upserts snapshot, keyed by its ID, then enforces the window by
// deleting the oldest terminal document beyond WindowSize (capped-
// collection-style delete-oldest-on-overflow, skipping non-terminal
// entries the same way the in-memory repository does).
func (s *Store) Save(ctx context.Context, snapshot ProcessSnapshot) error {
	if snapshot.ID == "" {
		return errors.New("mongo: snapshot id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": snapshot.ID}
	update := bson.M{"$set": snapshot}
	if _, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return err
	}
	return s.evictOverflow(ctx)
}

func (s *Store) evictOverflow(ctx context.Context) error {
	count, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	if count <= int64(s.windowSize) {
		return nil
	}

	overflow := count - int64(s.windowSize)
	cursor, err := s.coll.Find(ctx, bson.M{"status": bson.M{"$in": []process.Status{
		process.StatusCompleted, process.StatusFailed, process.StatusTerminated,
	}}}, options.Find().SetSort(bson.M{"saved_at": 1}).SetLimit(overflow))
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc ProcessSnapshot
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil // nothing terminal to evict; window stays over-size
	}
	_, err = s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

// FindByID returns the snapshot for id, if present.
func (s *Store) FindByID(ctx context.Context, id string) (ProcessSnapshot, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc ProcessSnapshot
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return ProcessSnapshot{}, false, nil
		}
		return ProcessSnapshot{}, false, err
	}
	return doc, true, nil
}

// List returns every stored snapshot, oldest-saved first.
func (s *Store) List(ctx context.Context) ([]ProcessSnapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"saved_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ProcessSnapshot
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes id unconditionally.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
