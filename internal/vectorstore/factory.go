package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config aggregates the settings needed to build either backend, decoupled
// from the application-level config package so this package stays free of
// an import cycle.
type Config struct {
	Provider string // "chromem" (default) or "qdrant"
	Chromem  ChromemConfig
	Qdrant   QdrantConfig
}

// NewStore builds the Store implementation selected by cfg.Provider.
func NewStore(cfg Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "", "chromem":
		return NewChromemStore(cfg.Chromem, embedder, logger)
	case "qdrant":
		return NewQdrantStore(cfg.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
