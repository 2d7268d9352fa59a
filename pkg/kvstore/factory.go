package kvstore

import (
	"fmt"

	"github.com/wordpot/engine/pkg/infra"
)

type Type string

const (
	TypeBadger Type = "badger"
	TypeMemory Type = "memory"
)

type Config struct {
	Type      Type   `yaml:"type"`
	Directory string `yaml:"directory"` // for badger
	Prefix    string `yaml:"prefix"`
}

// NewFromConfig constructs an infra.KVStore based on kvstore configuration.
func NewFromConfig(cfg Config) (infra.KVStore, error) {
	switch cfg.Type {
	case TypeBadger:
		return NewBadgerStore(cfg.Directory, cfg.Prefix, infra.JSON)
	case TypeMemory:
		return NewMemoryStore(infra.JSON), nil
	default:
		return nil, fmt.Errorf("unsupported kvstore type: %s", cfg.Type)
	}
}
