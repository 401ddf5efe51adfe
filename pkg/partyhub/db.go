package partyhub

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// DB is the optional Redis snapshot store. Sessions are written through
// on every mutation with a TTL, so even a crashed process leaves no
// immortal keys behind. All errors are logged and swallowed; losing a
// snapshot write never fails the operation that triggered it.
type DB redis.Client

func NewDB(redisURL string) (*DB, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	db := redis.NewClient(opt)
	if err := db.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return (*DB)(db), nil
}

func (db *DB) LoadSessions() map[string][]byte {
	codes, err := db.client().Keys(context.Background(), "*").Result()
	if err != nil {
		log.Println("Redis error:", err)
		return nil
	}
	results := make(map[string][]byte)
	for _, code := range codes {
		blob, err := db.client().Get(context.Background(), code).Bytes()
		if err != nil {
			log.Println("Redis error:", err)
			continue
		}
		results[code] = blob
	}
	return results
}

func (db *DB) SaveSession(code string, snapshot []byte, expiration time.Duration) {
	if err := db.client().Set(context.Background(), code, snapshot, expiration).Err(); err != nil {
		log.Println("Redis error:", err)
	}
}

func (db *DB) DeleteSession(code string) {
	if err := db.client().Del(context.Background(), code).Err(); err != nil {
		log.Println("Redis error:", err)
	}
}

func (db *DB) client() *redis.Client {
	return (*redis.Client)(db)
}
