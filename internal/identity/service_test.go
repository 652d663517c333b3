package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Mapping{}); err != nil {
		t.Fatalf("failed to migrate mapping schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, idProvider IDProvider) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock: func() time.Time {
			return time.Unix(1_700_000_000, 0).UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	db := openTestDB(t, "identity_idempotent")
	service := newTestService(t, db, nil)

	first, err := service.ResolveOrCreate(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if first == "" {
		t.Fatalf("expected non-empty internal id")
	}

	second, err := service.ResolveOrCreate(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected stable internal id, got %q then %q", first, second)
	}

	var count int64
	if err := db.Model(&Mapping{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count mappings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one mapping row, got %d", count)
	}
}

func TestResolveOrCreateSurvivesCacheLoss(t *testing.T) {
	db := openTestDB(t, "identity_cache_loss")
	service := newTestService(t, db, nil)

	first, err := service.ResolveOrCreate(context.Background(), "ext-2")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// A fresh service instance simulates a process restart: the persisted
	// mapping, not the in-memory cache, must carry the identity.
	restarted := newTestService(t, db, nil)
	second, err := restarted.ResolveOrCreate(context.Background(), "ext-2")
	if err != nil {
		t.Fatalf("resolve after restart failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected internal id to survive restart, got %q then %q", first, second)
	}
}

func TestResolveOrCreateDistinctSubjectsGetDistinctIDs(t *testing.T) {
	db := openTestDB(t, "identity_distinct")
	service := newTestService(t, db, nil)

	first, err := service.ResolveOrCreate(context.Background(), "ext-a")
	if err != nil {
		t.Fatalf("resolve ext-a failed: %v", err)
	}
	second, err := service.ResolveOrCreate(context.Background(), "ext-b")
	if err != nil {
		t.Fatalf("resolve ext-b failed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct internal ids, both were %q", first)
	}
}

func TestResolveOrCreateRejectsEmptySubject(t *testing.T) {
	db := openTestDB(t, "identity_empty")
	service := newTestService(t, db, nil)

	if _, err := service.ResolveOrCreate(context.Background(), "   "); !errors.Is(err, ErrInvalidExternalID) {
		t.Fatalf("expected ErrInvalidExternalID, got %v", err)
	}
}

// racingIDProvider inserts a competing mapping before handing out its own id,
// reproducing the window between the miss lookup and the insert.
type racingIDProvider struct {
	db       *gorm.DB
	subject  string
	winnerID string
}

func (p *racingIDProvider) NewID() (string, error) {
	winner := Mapping{
		ExternalID: p.subject,
		InternalID: p.winnerID,
		CreatedAt:  time.Unix(1_700_000_000, 0).UTC(),
	}
	if err := p.db.Create(&winner).Error; err != nil {
		return "", err
	}
	return "loser-id-never-used", nil
}

func TestResolveOrCreateRaceLoserAdoptsWinnerMapping(t *testing.T) {
	db := openTestDB(t, "identity_race")
	provider := &racingIDProvider{
		db:       db,
		subject:  "ext-race",
		winnerID: "winner-internal-id",
	}
	service := newTestService(t, db, provider)

	resolved, err := service.ResolveOrCreate(context.Background(), "ext-race")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved != "winner-internal-id" {
		t.Fatalf("expected the winner's internal id, got %q", resolved)
	}

	var count int64
	if err := db.Model(&Mapping{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count mappings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single mapping row after the race, got %d", count)
	}
}
