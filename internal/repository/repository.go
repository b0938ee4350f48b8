// Package repository owns the durability of Conversations, Projects,
// Preferences, and ContextLinks. It is the only component permitted to
// write these entities; every other component goes through it.
package repository

import (
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/memoryd/memoryd/internal/encryption"
	"github.com/memoryd/memoryd/internal/model"
)

// Repository is a GORM-backed store over a single SQLite file, following
// the per-entity-store layout of a typed Go repository rather than a
// stringly-typed (kind, payload) dispatcher.
type Repository struct {
	db     *gorm.DB
	cipher *encryption.Service // nil or disabled means plaintext at rest
	logger *zap.Logger

	// locks serializes writes to a single Conversation id so a concurrent
	// merge and edit linearize instead of racing.
	locks sync.Map // map[string]*sync.Mutex
}

// Config configures the SQLite-backed Repository.
type Config struct {
	// Path is the SQLite database file path. Default: "~/.config/memoryd/memoryd.db"
	Path string

	// Cipher encrypts conversation content at rest when enabled. Note that
	// SearchByContent cannot match inside encrypted content; the Search
	// Engine's index is the search surface in that configuration.
	Cipher *encryption.Service
}

// Open opens (creating if necessary) the SQLite database at cfg.Path and
// runs GORM auto-migration for every entity.
func Open(cfg Config, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		cfg.Path = "~/.config/memoryd/memoryd.db"
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&model.Conversation{},
		&model.Project{},
		&model.Preference{},
		&model.ContextLink{},
	); err != nil {
		return nil, err
	}

	repo := &Repository{db: db, cipher: cfg.Cipher, logger: logger}
	logger.Info("repository opened",
		zap.String("path", path),
		zap.Bool("encryption", cfg.Cipher.Enabled()))
	return repo, nil
}

// sealConversation encrypts the sensitive fields in place before a write.
func (r *Repository) sealConversation(conv *model.Conversation) error {
	if !r.cipher.Enabled() {
		return nil
	}
	var err error
	if conv.Content, err = r.cipher.Encrypt(conv.Content); err != nil {
		return err
	}
	if conv.Metadata.UserQuery, err = r.cipher.Encrypt(conv.Metadata.UserQuery); err != nil {
		return err
	}
	if conv.Metadata.AIResponse, err = r.cipher.Encrypt(conv.Metadata.AIResponse); err != nil {
		return err
	}
	return nil
}

// openConversation decrypts the sensitive fields in place after a read.
// Plaintext rows written before encryption was enabled pass through.
func (r *Repository) openConversation(conv *model.Conversation) error {
	var err error
	if conv.Content, err = r.cipher.Decrypt(conv.Content); err != nil {
		return err
	}
	if conv.Metadata.UserQuery, err = r.cipher.Decrypt(conv.Metadata.UserQuery); err != nil {
		return err
	}
	if conv.Metadata.AIResponse, err = r.cipher.Decrypt(conv.Metadata.AIResponse); err != nil {
		return err
	}
	return nil
}

// openConversations decrypts a result slice in place. A row that fails to
// decrypt is surfaced as an error rather than returned as ciphertext.
func (r *Repository) openConversations(convs []model.Conversation) error {
	for i := range convs {
		if err := r.openConversation(&convs[i]); err != nil {
			return err
		}
	}
	return nil
}

// lockFor returns the per-conversation-id mutex, creating it on first use.
func (r *Repository) lockFor(id string) *sync.Mutex {
	v, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// DB exposes the shared GORM handle so the Search Engine can keep its own
// table in the same SQLite file. Repository entities remain private to this
// package; callers must not touch them through this handle.
func (r *Repository) DB() *gorm.DB { return r.db }

// Ping verifies the database connection is alive, used by the health check.
func (r *Repository) Ping() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Vacuum reclaims space and defragments the SQLite file.
func (r *Repository) Vacuum() error {
	return r.db.Exec("VACUUM").Error
}

// Close releases the underlying database connection.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// now is a seam for testing.
var now = time.Now
