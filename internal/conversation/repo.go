package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/ducktype/ducktype/internal/common"
	"gorm.io/gorm"
)

type conversationRow struct {
	ID               string       `gorm:"primaryKey;size:26"` // ULID length
	OwnerID          string       `gorm:"type:varchar(64);index"`
	Title            string       `gorm:"type:varchar(255);not null"`
	InsightText      *string      `gorm:"type:text"`
	InsightCreatedAt *time.Time
	Messages         []messageRow `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time
	UpdatedAt        time.Time `gorm:"index"`
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"type:varchar(26);index;not null"`
	User           string    `gorm:"type:text;not null"`
	AI             Reply     `gorm:"type:text;serializer:json"`
	CreatedAt      time.Time
}

func (messageRow) TableName() string { return "conversation_messages" }

type legacyMessageRow struct {
	ID        string    `gorm:"primaryKey;size:26"`
	User      string    `gorm:"type:text;not null"`
	AI        Reply     `gorm:"type:text;serializer:json"`
	CreatedAt time.Time `gorm:"index"`
}

func (legacyMessageRow) TableName() string { return "messages" }

// Models lists the tables Repo needs, for AutoMigrate.
func Models() []any {
	return []any{&conversationRow{}, &messageRow{}, &legacyMessageRow{}}
}

// Repo is the gorm-backed Store.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var _ Store = (*Repo)(nil)

func scoped(q *gorm.DB, id, owner string) *gorm.DB {
	q = q.Where("id = ?", id)
	if owner != "" {
		q = q.Where("owner_id = ?", owner)
	}
	return q
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// ListConversations returns conversations newest-updated first.
func (r *Repo) ListConversations(ctx context.Context, owner string) ([]Conversation, error) {
	q := r.db.WithContext(ctx).Preload("Messages", orderedMessages).Order("updated_at DESC").Order("id DESC")
	if owner != "" {
		q = q.Where("owner_id = ?", owner)
	}
	var rows []conversationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		id, err := common.NewULID()
		if err != nil {
			return err
		}
		c.ID = id
	}
	row := conversationRow{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Insight != nil {
		row.InsightText = &c.Insight.Text
		row.InsightCreatedAt = &c.Insight.CreatedAt
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *Repo) GetConversation(ctx context.Context, id, owner string) (*Conversation, error) {
	var row conversationRow
	err := scoped(r.db.WithContext(ctx), id, owner).
		Preload("Messages", orderedMessages).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := row.toDomain()
	return &c, nil
}

func (r *Repo) UpdateConversation(ctx context.Context, id, owner string, p Patch, now time.Time) (*Conversation, error) {
	updates := map[string]any{"updated_at": now}
	if p.Title != nil {
		updates["title"] = *p.Title
	}
	if p.Insight != nil {
		updates["insight_text"] = p.Insight.Text
		updates["insight_created_at"] = p.Insight.CreatedAt
	}

	var out *Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := scoped(tx.Model(&conversationRow{}), id, owner).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var row conversationRow
		if err := tx.Preload("Messages", orderedMessages).First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		c := row.toDomain()
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendMessage pushes m and bumps updated_at to m.CreatedAt in one transaction.
func (r *Repo) AppendMessage(ctx context.Context, id, owner string, m Message) (*Message, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := scoped(tx.Model(&conversationRow{}), id, owner).Update("updated_at", m.CreatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&messageRow{
			ConversationID: id,
			User:           m.User,
			AI:             m.AI,
			CreatedAt:      m.CreatedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) DeleteConversation(ctx context.Context, id, owner string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := scoped(tx, id, owner).Delete(&conversationRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("conversation_id = ?", id).Delete(&messageRow{}).Error
	})
}

// ListLegacyMessages returns the flat collection newest first.
func (r *Repo) ListLegacyMessages(ctx context.Context) ([]LegacyMessage, error) {
	var rows []legacyMessageRow
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]LegacyMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, LegacyMessage{ID: row.ID, User: row.User, AI: row.AI, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (r *Repo) InsertLegacyMessage(ctx context.Context, m *LegacyMessage) error {
	if m.ID == "" {
		id, err := common.NewULID()
		if err != nil {
			return err
		}
		m.ID = id
	}
	return r.db.WithContext(ctx).Create(&legacyMessageRow{
		ID:        m.ID,
		User:      m.User,
		AI:        m.AI,
		CreatedAt: m.CreatedAt,
	}).Error
}

func (r *Repo) DeleteLegacyMessage(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&legacyMessageRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (row conversationRow) toDomain() Conversation {
	c := Conversation{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Title:     row.Title,
		Messages:  make([]Message, 0, len(row.Messages)),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.InsightText != nil {
		in := &Insight{Text: *row.InsightText}
		if row.InsightCreatedAt != nil {
			in.CreatedAt = *row.InsightCreatedAt
		}
		c.Insight = in
	}
	for _, m := range row.Messages {
		c.Messages = append(c.Messages, Message{User: m.User, AI: m.AI, CreatedAt: m.CreatedAt})
	}
	return c
}
