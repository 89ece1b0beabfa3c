// Package cache keeps recently fetched raw records in Redis so repeated
// executions of an unchanged dataset do not hit the external source.
package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

const keyPrefix = "charts:records:"

// Entries are gob encoded so record values come back with the Go types the
// adapter produced. A time stays a time.Time and an int64 stays exact.
func init() {
	gob.Register(time.Time{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(models.Record{})
}

func encodeRecords(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecords(data []byte) ([]models.Record, error) {
	var records []models.Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}

// RecordCache stores raw record sets. A nil *RecordCache is valid and caches nothing.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRecordCache returns nil when client is nil or ttl is not positive.
func NewRecordCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RecordCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &RecordCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("record-cache"),
	}
}

// Key identifies a record set. Including updatedAt means any edit to the
// connection invalidates earlier entries.
func Key(connectionID uuid.UUID, updatedAt time.Time, query, endpoint string) string {
	h := xxh3.New()
	_, _ = h.WriteString(connectionID.String())
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(updatedAt.UTC().Format(time.RFC3339Nano))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(query)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(endpoint)
	sum := h.Sum128().Bytes()
	return fmt.Sprintf("%s%s:%x", keyPrefix, connectionID, sum[:])
}

// Get returns the cached records for key. Misses and Redis failures both
// report ok=false; failures are logged, never returned.
func (c *RecordCache) Get(ctx context.Context, key string) ([]models.Record, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", zap.Error(err))
		}
		return nil, false
	}

	records, err := decodeRecords(data)
	if err != nil {
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return records, true
}

// Set stores records under key for the configured TTL.
func (c *RecordCache) Set(ctx context.Context, key string, records []models.Record) {
	if c == nil {
		return
	}

	data, err := encodeRecords(records)
	if err != nil {
		// Values of a type the codec does not know are served uncached.
		c.logger.Warn("records not cacheable", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

// Invalidate drops every entry for a connection.
func (c *RecordCache) Invalidate(ctx context.Context, connectionID uuid.UUID) {
	if c == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+connectionID.String()+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}
