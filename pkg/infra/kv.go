package infra

import (
	"encoding/json"
	"errors"
)

var (
	ErrKeyEmpty    = errors.New("key is empty")
	ErrKeyNotFound = errors.New("key not found")
)

// KVStore is the small key-value surface the engine needs for the oracle
// last-known-good cache and the settlement journal.
type KVStore interface {
	GetName() string
	Get(key string) (string, error)
	Set(key string, value string) error
	GetAny(key string, value any) (bool, error)
	SetAny(key string, value any) error
	List(prefix string) ([]*KVPair, error)
	Delete(key string) error
	Close() error
}

type KVPair struct {
	Key   string
	Value []byte
}

// Codec serializes values for KV storage.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v any) error    { return json.Unmarshal(b, v) }

// JSON is the default codec.
var JSON Codec = jsonCodec{}
