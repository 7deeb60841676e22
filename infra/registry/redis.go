// Package registry provides the Redis-backed incident registry used when the
// coordinator runs against shared infrastructure.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/firefly-dispatch/firefly/core/logger"
	"github.com/firefly-dispatch/firefly/core/model"
	coreregistry "github.com/firefly-dispatch/firefly/core/registry"
	infralog "github.com/firefly-dispatch/firefly/infra/logger"
)

const (
	geoKey    = "incidents:geo"
	dataKey   = "incident:data:%s"
	activeKey = "incidents:active"
)

// Config holds the Redis connection parameters.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// RedisRegistry implements the incident registry on Redis: a GEO set for
// radius queries, a JSON blob per incident and a plain set of active ids so
// non-geocoded incidents are still counted.
type RedisRegistry struct {
	rdb *redis.Client
	log logger.Logger
}

// NewRedisRegistry connects and verifies the connection.
func NewRedisRegistry(ctx context.Context, cfg Config) (*RedisRegistry, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisRegistry{rdb: rdb, log: infralog.New("incident_registry")}, nil
}

// NewRedisRegistryFromClient wraps an existing client; used in tests.
func NewRedisRegistryFromClient(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, log: infralog.New("incident_registry")}
}

// Register stores the incident payload, marks it active and geo-indexes it.
// Incidents without coordinates skip the index and are flagged with
// ErrIndexSkipped; they remain registered and counted.
func (r *RedisRegistry) Register(ctx context.Context, inc model.Incident) error {
	payload, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident %s: %w", inc.ID, err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(dataKey, inc.ID), payload, 0)
	pipe.SAdd(ctx, activeKey, inc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store incident %s: %w", inc.ID, err)
	}

	if !inc.Geocoded || inc.Location.IsZero() {
		return fmt.Errorf("incident %s: %w", inc.ID, coreregistry.ErrIndexSkipped)
	}
	if err := r.rdb.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      inc.ID,
		Longitude: inc.Location.Lon,
		Latitude:  inc.Location.Lat,
	}).Err(); err != nil {
		return fmt.Errorf("geo index incident %s: %w", inc.ID, err)
	}
	return nil
}

// Remove deletes all traces of the incident. Absent ids are not an error.
func (r *RedisRegistry) Remove(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.ZRem(ctx, geoKey, id)
	pipe.SRem(ctx, activeKey, id)
	pipe.Del(ctx, fmt.Sprintf(dataKey, id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove incident %s: %w", id, err)
	}
	return nil
}

// QueryNearby returns geocoded incidents within radiusKM of loc, closest
// first. Query failures degrade to an empty result.
func (r *RedisRegistry) QueryNearby(ctx context.Context, loc model.Location, radiusKM float64, limit int) []coreregistry.Nearby {
	locs, err := r.rdb.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  loc.Lon,
			Latitude:   loc.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		r.log.Errorf("geo search failed: %v", err)
		return nil
	}

	res := make([]coreregistry.Nearby, 0, len(locs))
	for _, gl := range locs {
		inc, err := r.fetch(ctx, gl.Name)
		if err != nil {
			r.log.Warnf("incident %s indexed but not loadable: %v", gl.Name, err)
			continue
		}
		res = append(res, coreregistry.Nearby{Incident: inc, DistanceKM: gl.Dist})
	}
	return res
}

// ActiveCount returns the number of registered incidents, geocoded or not.
func (r *RedisRegistry) ActiveCount(ctx context.Context) (int, error) {
	n, err := r.rdb.SCard(ctx, activeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count active incidents: %w", err)
	}
	return int(n), nil
}

// Ping verifies the connection.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisRegistry) Close() error {
	return r.rdb.Close()
}

func (r *RedisRegistry) fetch(ctx context.Context, id string) (model.Incident, error) {
	var inc model.Incident
	raw, err := r.rdb.Get(ctx, fmt.Sprintf(dataKey, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return inc, fmt.Errorf("incident %s not found", id)
		}
		return inc, err
	}
	if err := json.Unmarshal(raw, &inc); err != nil {
		return inc, fmt.Errorf("decode incident %s: %w", id, err)
	}
	return inc, nil
}
