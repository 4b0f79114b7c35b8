package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"medialib/searchservice/internal/domain"
)

const redisGenrePrefix = "msearch:tmdb:genres:"

// RedisGenreStore shares genre maps between service replicas.
type RedisGenreStore struct {
	client *redis.Client
}

func NewRedisGenreStore(client *redis.Client) *RedisGenreStore {
	return &RedisGenreStore{client: client}
}

// Load returns ok=false for a missing key or an entry without a fetch time.
func (s *RedisGenreStore) Load(ctx context.Context, kind domain.GenreKind) (StoredGenres, bool, error) {
	data, err := s.client.Get(ctx, redisGenrePrefix+string(kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StoredGenres{}, false, nil
		}
		return StoredGenres{}, false, err
	}
	var stored StoredGenres
	if err := json.Unmarshal(data, &stored); err != nil {
		return StoredGenres{}, false, err
	}
	if stored.FetchedAt.IsZero() {
		return StoredGenres{}, false, nil
	}
	return stored, true, nil
}

func (s *RedisGenreStore) Save(ctx context.Context, kind domain.GenreKind, genres StoredGenres, ttl time.Duration) error {
	data, err := json.Marshal(genres)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisGenrePrefix+string(kind), data, ttl).Err()
}
