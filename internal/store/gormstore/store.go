package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/chatcore/internal/chat"
	"gorm.io/gorm"
)

type sessionRow struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID     string    `gorm:"type:varchar(26);uniqueIndex;not null"`
	Provider      string    `gorm:"type:varchar(32);not null"`
	Model         string    `gorm:"type:varchar(64);not null"`
	MaxConcurrent int       `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (sessionRow) TableName() string { return "chat_sessions" }

type messageRow struct {
	ID         uint64  `gorm:"primaryKey;autoIncrement"`
	SessionID  string  `gorm:"type:varchar(26);not null;index:uniq_chat_msg_session_seq,unique,priority:1"`
	Seq        uint64  `gorm:"not null;index:uniq_chat_msg_session_seq,unique,priority:2"`
	Role       string  `gorm:"type:varchar(16);not null"`
	Content    string  `gorm:"type:text;not null"`
	Status     string  `gorm:"type:varchar(16);not null"`
	RespondsTo *uint64
	TokenCount int `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

func (messageRow) TableName() string { return "chat_messages" }

// Store persists session logs through gorm. It implements
// chat.HistoryStore.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&sessionRow{}, &messageRow{})
}

func (s *Store) CreateSession(ctx context.Context, rec chat.SessionRecord) error {
	return s.db.WithContext(ctx).Create(&sessionRow{
		SessionID:     rec.SessionID,
		Provider:      rec.Provider,
		Model:         rec.Model,
		MaxConcurrent: rec.MaxConcurrent,
		CreatedAt:     rec.CreatedAt,
	}).Error
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (*chat.SessionRecord, []chat.Message, error) {
	var row sessionRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, chat.ErrNotFound
		}
		return nil, nil, err
	}

	var rows []messageRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	msgs := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, chat.Message{
			ID:         r.Seq,
			Role:       chat.Role(r.Role),
			Content:    r.Content,
			Status:     chat.MessageStatus(r.Status),
			TokenCount: r.TokenCount,
			CreatedAt:  r.CreatedAt,
			RespondsTo: r.RespondsTo,
		})
	}

	rec := &chat.SessionRecord{
		SessionID:     row.SessionID,
		Provider:      row.Provider,
		Model:         row.Model,
		MaxConcurrent: row.MaxConcurrent,
		CreatedAt:     row.CreatedAt,
	}
	return rec, msgs, nil
}

func (s *Store) AppendMessage(ctx context.Context, sessionID string, m chat.Message) error {
	return s.db.WithContext(ctx).Create(&messageRow{
		SessionID:  sessionID,
		Seq:        m.ID,
		Role:       string(m.Role),
		Content:    m.Content,
		Status:     string(m.Status),
		RespondsTo: m.RespondsTo,
		TokenCount: m.TokenCount,
		CreatedAt:  m.CreatedAt,
	}).Error
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&messageRow{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", sessionID).Delete(&sessionRow{}).Error
	})
}
