// Package store persists conversations in SQLite so a chat can be listed,
// inspected and resumed later.
package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/i2y/interpreter/provider"
)

var (
	// ErrNotFound is returned when no conversation matches.
	ErrNotFound = errors.New("conversation not found")

	// ErrAmbiguous is returned when an ID prefix matches more than one
	// conversation.
	ErrAmbiguous = errors.New("conversation ID prefix is ambiguous")
)

const titleLength = 60

// Store is a conversation database.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the database at path and migrates it.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create starts a new conversation.
func (s *Store) Create(ctx context.Context, model string) (*Conversation, error) {
	conv := &Conversation{Model: model}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return conv, nil
}

// Append adds m to the end of a conversation. The first user message
// becomes the conversation title.
func (s *Store) Append(ctx context.Context, id uuid.UUID, m provider.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv Conversation
		if err := tx.First(&conv, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errors.Wrap(err, "failed to load conversation")
		}

		var count int64
		if err := tx.Model(&Message{}).Where("conversation_id = ?", id).Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to count messages")
		}

		msg := fromProvider(m)
		msg.ConversationID = id
		msg.Seq = int(count)
		if err := tx.Create(&msg).Error; err != nil {
			return errors.Wrap(err, "failed to save message")
		}

		updates := map[string]any{"updated_at": msg.CreatedAt}
		if conv.Title == "" && m.Role == provider.RoleUser {
			updates["title"] = title(m.Content)
		}
		if err := tx.Model(&conv).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "failed to update conversation")
		}
		return nil
	})
}

// Messages returns the history of a conversation in order.
func (s *Store) Messages(ctx context.Context, id uuid.UUID) ([]provider.Message, error) {
	var rows []Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load messages")
	}

	messages := make([]provider.Message, len(rows))
	for i, row := range rows {
		messages[i] = row.Provider()
	}
	return messages, nil
}

// List returns conversations, most recently updated first. A limit of
// zero or less returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Conversation, error) {
	q := s.db.WithContext(ctx).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var convs []Conversation
	if err := q.Find(&convs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	return convs, nil
}

// Latest returns the most recently updated conversation.
func (s *Store) Latest(ctx context.Context) (*Conversation, error) {
	var conv Conversation
	if err := s.db.WithContext(ctx).Order("updated_at DESC").First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load latest conversation")
	}
	return &conv, nil
}

// FindByPrefix returns the conversation whose ID starts with prefix.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (*Conversation, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, ErrNotFound
	}

	var convs []Conversation
	if err := s.db.WithContext(ctx).
		Where("id LIKE ?", prefix+"%").
		Limit(2).
		Find(&convs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to find conversation")
	}

	switch len(convs) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &convs[0], nil
	default:
		return nil, errors.Wrapf(ErrAmbiguous, "prefix %q", prefix)
	}
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete messages")
		}
		res := tx.Delete(&Conversation{}, "id = ?", id)
		if res.Error != nil {
			return errors.Wrap(res.Error, "failed to delete conversation")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func title(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= titleLength {
		return content
	}
	return string(runes[:titleLength-3]) + "..."
}
