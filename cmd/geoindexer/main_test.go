package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/food-donation/internal/models"
)

// fakeIndex implements GeoIndex for tests
type fakeIndex struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failRem  int // number of times to fail ZRem before succeeding
	geoCalls int
	remCalls int
}

func (f *fakeIndex) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeIndex) ZRem(ctx context.Context, key, member string) error {
	f.remCalls++
	if f.remCalls <= f.failRem {
		return errors.New("zrem fail")
	}
	return nil
}

func TestApplyWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeIndex{failGeo: 1}
	loc := &models.GatheringLocation{GatheringID: "g1", Lat: 1, Lon: 2, Available: true}
	ctx := context.Background()
	start := time.Now()
	if err := applyWithRetry(ctx, f, "gatherings_geo", loc, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 {
		t.Fatalf("expected retries, got geo=%d", f.geoCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestApplyWithRetry_RemovesUnavailable(t *testing.T) {
	f := &fakeIndex{}
	loc := &models.GatheringLocation{GatheringID: "g1", Available: false}
	if err := applyWithRetry(context.Background(), f, "gatherings_geo", loc, 3, 5*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.remCalls != 1 || f.geoCalls != 0 {
		t.Fatalf("expected a single ZRem, got geo=%d rem=%d", f.geoCalls, f.remCalls)
	}
}

func TestApplyWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeIndex{failGeo: 5}
	loc := &models.GatheringLocation{GatheringID: "g1", Lat: 1, Lon: 2, Available: true}
	if err := applyWithRetry(context.Background(), f, "gatherings_geo", loc, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
