package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/firefly-dispatch/firefly/core/model"
)

func geocoded(id string, lat, lon float64) model.Incident {
	return model.Incident{ID: id, Type: model.EmergencyFire, Location: model.Location{Lat: lat, Lon: lon}, Geocoded: true}
}

func TestRegister_DegradedMode(t *testing.T) {
	r := NewMemoryRegistry()
	err := r.Register(context.Background(), model.Incident{ID: "inc-1", Type: model.EmergencyPolice})
	if !errors.Is(err, ErrIndexSkipped) {
		t.Fatalf("expected ErrIndexSkipped got %v", err)
	}
	// Still registered and counted.
	n, err := r.ActiveCount(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected count 1 got %d (%v)", n, err)
	}
	// But invisible to radius queries.
	if res := r.QueryNearby(context.Background(), model.Location{Lat: 40.7, Lon: -74.0}, 1000, 0); len(res) != 0 {
		t.Fatalf("degraded incident must not be queryable, got %v", res)
	}
}

func TestQueryNearby_SortedAndLimited(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	center := model.Location{Lat: 40.7128, Lon: -74.0060}
	// Roughly 1.1 km per 0.01 degree of latitude.
	if err := r.Register(ctx, geocoded("far", 40.80, -74.0060)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(ctx, geocoded("near", 40.7150, -74.0060)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(ctx, geocoded("mid", 40.7400, -74.0060)); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := r.QueryNearby(ctx, center, 50, 0)
	if len(res) != 3 {
		t.Fatalf("expected 3 got %d", len(res))
	}
	if res[0].Incident.ID != "near" || res[2].Incident.ID != "far" {
		t.Fatalf("not sorted by distance: %v", res)
	}

	if limited := r.QueryNearby(ctx, center, 50, 2); len(limited) != 2 {
		t.Fatalf("limit ignored, got %d", len(limited))
	}
	if none := r.QueryNearby(ctx, center, 0.1, 0); len(none) != 0 {
		t.Fatalf("radius ignored, got %v", none)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	if err := r.Register(ctx, geocoded("inc-1", 40.7, -74.0)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Remove(ctx, "inc-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.Remove(ctx, "inc-1"); err != nil {
		t.Fatalf("second remove must not fail: %v", err)
	}
	if n, _ := r.ActiveCount(ctx); n != 0 {
		t.Fatalf("expected empty registry got %d", n)
	}
}
