package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"voice-dashboard/pkg/domain"
)

func TestListFilter(t *testing.T) {
	q := listFilter("user-1", domain.ListFilter{Status: domain.StatusFailed, Search: "a.b"})

	if q["profile_id"] != "user-1" || q["processing_status"] != "failed" {
		t.Errorf("filter = %v", q)
	}
	or, ok := q["$or"].(bson.A)
	if !ok || len(or) != 2 {
		t.Fatalf("$or = %v", q["$or"])
	}
	title := or[0].(bson.M)["title"].(bson.M)
	if title["$regex"] != `a\.b` || title["$options"] != "i" {
		t.Errorf("title match = %v", title)
	}

	q = listFilter("user-1", domain.ListFilter{})
	if _, ok := q["$or"]; ok {
		t.Error("unexpected $or without search")
	}
	if _, ok := q["processing_status"]; ok {
		t.Error("unexpected status without filter")
	}
}

func TestMongoUninitialized(t *testing.T) {
	store := &MongoRecordStore{now: time.Now}
	if _, err := store.List(context.Background(), "user-1", domain.ListFilter{}); err == nil {
		t.Error("expected error without collection")
	}
	if err := store.Connect(context.Background()); err == nil {
		t.Error("expected error without client")
	}
}

// Runs against a real server when MONGO_URI is set.
func TestMongoRecordStoreIntegration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := NewMongoRecordStore(uri, "voice_test", "records_"+uuid.NewString()[:8])
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() {
		store.collection.Drop(ctx)
		store.Close(ctx)
	}()

	owner := "user-" + uuid.NewString()[:8]
	first, err := store.Insert(ctx, domain.Recording{ProfileID: owner, Title: "Morning notes", FileURL: "https://cdn.example.com/1.wav"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := store.Insert(ctx, domain.Recording{ProfileID: owner, Title: "No file"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := store.Insert(ctx, first); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Insert() duplicate error = %v", err)
	}

	recs, err := store.List(ctx, owner, domain.ListFilter{Search: "MORNING"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != first.ID {
		t.Errorf("List() = %+v", recs)
	}

	title := "Evening notes"
	updated, err := store.Update(ctx, first.ID, domain.RecordingUpdate{Title: &title})
	if err != nil || updated.Title != title {
		t.Errorf("Update() = %+v, %v", updated, err)
	}

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}
