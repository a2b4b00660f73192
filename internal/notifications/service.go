package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"thesis-portal/thesis-portal-backend/internal/notifications/websocket"
)

// Service stores notifications and pushes them to delivery channels.
// It implements Dispatcher.
type Service struct {
	db        *gorm.DB
	wsManager *websocket.Manager
	email     *EmailChannel
	logger    *zap.Logger
}

// NewService creates the notification service and migrates its tables
func NewService(db *gorm.DB, wsManager *websocket.Manager, email *EmailChannel, logger *zap.Logger) (*Service, error) {
	if err := db.AutoMigrate(&Notification{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Service{
		db:        db,
		wsManager: wsManager,
		email:     email,
		logger:    logger,
	}, nil
}

// Dispatch stores the notification and pushes it out. All channel failures
// are logged and swallowed; the caller's state transition already happened.
func (s *Service) Dispatch(ctx context.Context, n Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		s.logger.Error("failed to store notification",
			zap.String("recipient", n.RecipientID.String()),
			zap.String("type", string(n.Type)),
			zap.Error(err))
		return
	}

	if s.wsManager != nil {
		msg := websocket.Message{
			Type:      websocket.MessageTypeNotification,
			Payload:   n,
			Timestamp: time.Now(),
			Target:    n.RecipientID.String(),
		}
		if err := s.wsManager.SendToUser(n.RecipientID.String(), msg); err != nil {
			// Recipient simply isn't connected most of the time.
			s.logger.Debug("websocket push skipped",
				zap.String("recipient", n.RecipientID.String()),
				zap.Error(err))
		}
	}

	if s.email != nil {
		if err := s.email.Send(ctx, n); err != nil {
			s.logger.Warn("email delivery failed",
				zap.String("recipient", n.RecipientID.String()),
				zap.Error(err))
		}
	}
}

// ListForUser retrieves a user's notifications, newest first
func (s *Service) ListForUser(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, error) {
	var items []Notification
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

// MarkAsRead marks one of the recipient's notifications as read
func (s *Service) MarkAsRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}

// UnreadCount returns the number of unread notifications for a user
func (s *Service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// Close shuts down the push channels
func (s *Service) Close() error {
	if s.wsManager != nil {
		s.wsManager.Close()
	}
	return nil
}
