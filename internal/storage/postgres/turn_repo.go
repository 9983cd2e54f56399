package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/novusai/novus/internal/history"
)

// Compile-time interface check.
var _ history.TurnStore = (*TurnRepository)(nil)

// TurnRepository implements history.TurnStore on a GORM connection. It is
// shared by the PostgreSQL and SQLite backends.
type TurnRepository struct {
	db *gorm.DB
}

// NewTurnRepository creates a TurnRepository.
func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

// Append inserts one completed turn.
func (r *TurnRepository) Append(ctx context.Context, turn history.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	model, err := toTurnModel(turn)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// ListConversations aggregates the user's turns per conversation, most
// recently updated first.
func (r *TurnRepository) ListConversations(ctx context.Context, userID string) ([]history.ConversationSummary, error) {
	var rows []struct {
		ConversationID string
		TurnCount      int
		UpdatedAt      time.Time
	}
	err := r.db.WithContext(ctx).
		Model(&TurnModel{}).
		Select("conversation_id, COUNT(*) AS turn_count, MAX(created_at) AS updated_at").
		Where("user_id = ?", userID).
		Group("conversation_id").
		Order("updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	out := make([]history.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		var last TurnModel
		err := r.db.WithContext(ctx).
			Where("conversation_id = ? AND user_id = ?", row.ConversationID, userID).
			Order("created_at DESC, id DESC").
			First(&last).Error
		if err != nil {
			return nil, fmt.Errorf("loading last turn of %s: %w", row.ConversationID, err)
		}
		out = append(out, history.ConversationSummary{
			ConversationID: row.ConversationID,
			LastQuestion:   last.Question,
			TurnCount:      row.TurnCount,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return out, nil
}

// Replay returns the conversation's turns in insertion order.
func (r *TurnRepository) Replay(ctx context.Context, conversationID, userID string) ([]history.Turn, error) {
	var models []TurnModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("replaying conversation: %w", err)
	}
	if len(models) == 0 {
		return nil, history.ErrNotFound
	}

	out := make([]history.Turn, 0, len(models))
	for _, m := range models {
		out = append(out, fromTurnModel(m))
	}
	return out, nil
}

// Latest returns the conversation's most recent turn, or (nil, nil) when the
// conversation has none.
func (r *TurnRepository) Latest(ctx context.Context, conversationID string) (*history.Turn, error) {
	var model TurnModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest turn: %w", err)
	}

	turn := fromTurnModel(model)
	return &turn, nil
}
