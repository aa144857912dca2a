// Package kv persists critique and share records with a fixed time to live.
package kv

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("photocritique/kv")

const (
	TTL      = 24 * time.Hour
	IDLength = 24

	critiquePrefix = "critique:"
	sharePrefix    = "share:"
)

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Backend is the minimal key-value contract. Get returns (nil, nil) on a
// miss or an expired key.
type Backend interface {
	SetWithTTL(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store reads and writes typed records on top of a Backend.
type Store struct {
	backend Backend
	ttl     time.Duration
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend, ttl: TTL}
}

func CritiqueKey(id string) string { return critiquePrefix + id }
func ShareKey(id string) string    { return sharePrefix + id }

func (s *Store) SaveCritique(ctx context.Context, rec *CritiqueRecord) error {
	return s.put(ctx, CritiqueKey(rec.ID), rec)
}

// GetCritique returns nil when the record is absent or expired.
func (s *Store) GetCritique(ctx context.Context, id string) (*CritiqueRecord, error) {
	var rec CritiqueRecord
	found, err := s.get(ctx, CritiqueKey(id), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveShare(ctx context.Context, rec *ShareRecord) error {
	return s.put(ctx, ShareKey(rec.ID), rec)
}

// GetShare returns nil when the record is absent or expired.
func (s *Store) GetShare(ctx context.Context, id string) (*ShareRecord, error) {
	var rec ShareRecord
	found, err := s.get(ctx, ShareKey(id), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// TestConnection writes, reads back and deletes a probe key.
func (s *Store) TestConnection(ctx context.Context) bool {
	key := fmt.Sprintf("probe:%d", time.Now().UnixNano())
	if err := s.backend.SetWithTTL(ctx, key, time.Minute, []byte(`"ok"`)); err != nil {
		return false
	}
	defer s.backend.Delete(ctx, key)

	val, err := s.backend.Get(ctx, key)
	return err == nil && string(val) == `"ok"`
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// GenerateID returns a random alphanumeric identifier.
func (s *Store) GenerateID() (string, error) {
	return GenerateToken(IDLength)
}

// GenerateToken returns a random alphanumeric string of length n.
func GenerateToken(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(idCharset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		out[i] = idCharset[idx.Int64()]
	}
	return string(out), nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	ctx, span := tracer.Start(ctx, "kv.put")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.backend.SetWithTTL(ctx, key, s.ttl, data); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) (bool, error) {
	ctx, span := tracer.Start(ctx, "kv.get")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	data, err := s.backend.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := decodeRecord(data, v); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// decodeRecord accepts either a JSON object or a JSON string that itself
// holds the object.
func decodeRecord(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return err
		}
		trimmed = []byte(inner)
	}
	return json.Unmarshal(trimmed, v)
}
