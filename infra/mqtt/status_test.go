package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-dispatch/firefly/core/model"
	"github.com/firefly-dispatch/firefly/core/unitstatus"
	"github.com/firefly-dispatch/firefly/infra/logger"
)

func TestStatusListenerApply_RegistersUnknownUnit(t *testing.T) {
	store := unitstatus.NewMemoryStore()
	l := &StatusListener{store: store, log: logger.NopLogger{}}

	l.Apply(StatusReport{UnitID: "fire-01", Type: model.UnitFire, Location: model.Location{Lat: 40.7, Lon: -74.0}, CrewSize: 4})

	u, ok := store.Get("fire-01")
	require.True(t, ok, "unit should be registered on first report")
	assert.Equal(t, model.StatusAvailable, u.Status)
	assert.Equal(t, 4, u.CrewSize)
}

func TestStatusListenerApply_LifecycleAndLocation(t *testing.T) {
	store := unitstatus.NewMemoryStore()
	store.Put(model.Unit{ID: "ems-01", Type: model.UnitEMS, Status: model.StatusDispatched})
	l := &StatusListener{store: store, log: logger.NopLogger{}}

	l.Apply(StatusReport{UnitID: "ems-01", Status: model.StatusEnRoute, Location: model.Location{Lat: 40.71, Lon: -74.0}})

	u, _ := store.Get("ems-01")
	assert.Equal(t, model.StatusEnRoute, u.Status)
	assert.Equal(t, 40.71, u.Location.Lat)
}

func TestStatusListenerApply_CannotClobberClaim(t *testing.T) {
	store := unitstatus.NewMemoryStore()
	store.Put(model.Unit{ID: "fire-01", Type: model.UnitFire, Status: model.StatusDispatched})
	l := &StatusListener{store: store, log: logger.NopLogger{}}

	// A stale report claiming on-scene is an illegal step from Dispatched.
	l.Apply(StatusReport{UnitID: "fire-01", Status: model.StatusOnScene})

	u, _ := store.Get("fire-01")
	assert.Equal(t, model.StatusDispatched, u.Status, "stale report must not clobber a claim")
}
