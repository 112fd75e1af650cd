package store

import (
	"fmt"
	"strings"
)

// Supported storage engines.
const (
	EngineSQLite = "sqlite"
	EngineJSON   = "json"
)

// NewByEngine opens the repository for engine at path.
func NewByEngine(engine, path string) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineSQLite:
		return NewSQLite(path)
	case EngineJSON:
		return NewJSONStore(path)
	default:
		return nil, fmt.Errorf("unsupported store engine: %q", engine)
	}
}
