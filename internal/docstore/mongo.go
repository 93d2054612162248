// Package docstore keeps profile documents in MongoDB, for deployments that
// already hold member profiles in a document database.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aboutme/cards/internal/profile"
	"github.com/aboutme/cards/internal/storage"
)

const collectionName = "profiles"

// record is the stored shape: one document per user, keyed by user id.
type record struct {
	UserID    string    `bson:"_id"`
	Profile   bson.Raw  `bson:"profile"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store implements the profile half of storage.Store on a Mongo collection.
type Store struct {
	client *mongo.Client
	col    *mongo.Collection
}

// Open connects to uri, pings the server and prepares the profiles
// collection of dbName.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	col := client.Database(dbName).Collection(collectionName)

	// Best-effort index.
	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	})

	return &Store{client: client, col: col}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) PutProfile(ctx context.Context, userID string, p profile.Profile) error {
	doc, err := toDocument(p)
	if err != nil {
		return err
	}
	_, err = s.col.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"profile": doc, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", userID, err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	var rec record
	err := s.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return profile.Profile{}, storage.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("finding profile %s: %w", userID, err)
	}
	return fromDocument(rec.Profile)
}

// GetProfiles returns the stored profiles for ids in the order of ids,
// skipping ids without a document.
func (s *Store) GetProfiles(ctx context.Context, ids []string) ([]profile.ListItem, error) {
	if len(ids) == 0 {
		return []profile.ListItem{}, nil
	}

	cur, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("finding profiles: %w", err)
	}
	defer cur.Close(ctx)

	found := make(map[string]profile.Profile, len(ids))
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding profile record: %w", err)
		}
		p, err := fromDocument(rec.Profile)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", rec.UserID, err)
		}
		found[rec.UserID] = p
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	items := make([]profile.ListItem, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			items = append(items, profile.ListItem{ID: id, Profile: p})
			delete(found, id)
		}
	}
	return items, nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("deleting profile %s: %w", userID, err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// toDocument converts p to BSON through its JSON form so the stored
// document uses the same field names and show shapes as the HTTP API.
func toDocument(p profile.Profile) (bson.Raw, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}
	var doc bson.Raw
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("converting profile to bson: %w", err)
	}
	return doc, nil
}

func fromDocument(doc bson.Raw) (profile.Profile, error) {
	if len(doc) == 0 {
		return profile.Profile{}, nil
	}
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("converting profile from bson: %w", err)
	}
	var p profile.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return profile.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	return p, nil
}
