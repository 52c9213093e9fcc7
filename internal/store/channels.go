package store

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/validate"
)

type channelModel struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)"`
	Type      string         `gorm:"type:varchar(16);not null;index"`
	Name      string         `gorm:"type:varchar(100);not null"`
	Config    datatypes.JSON `gorm:"not null"`
	Events    []string       `gorm:"serializer:json;type:text;not null"`
	Enabled   bool           `gorm:"not null;index"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (channelModel) TableName() string { return "notification_channels" }

func (m channelModel) toDomain() domain.Channel {
	return domain.Channel{
		ID:        m.ID,
		Type:      domain.ChannelType(m.Type),
		Name:      m.Name,
		Config:    json.RawMessage(m.Config),
		Events:    toEvents(m.Events),
		Enabled:   m.Enabled,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// CreateChannel inserts ch, assigning its id and timestamps.
func (s *Store) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	m := channelModel{
		ID:      s.newID(),
		Type:    string(ch.Type),
		Name:    ch.Name,
		Config:  datatypes.JSON(ch.Config),
		Events:  toStrings(ch.Events),
		Enabled: ch.Enabled,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	*ch = m.toDomain()
	return nil
}

// GetChannel returns domain.ErrNotFound for unknown ids.
func (s *Store) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	var m channelModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	ch := m.toDomain()
	return &ch, nil
}

// ListChannels returns every channel in creation order.
func (s *Store) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	var rows []channelModel
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Channel, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// EnabledChannelsFor returns enabled channels subscribed to e, in creation
// order.
func (s *Store) EnabledChannelsFor(ctx context.Context, e domain.Event) ([]domain.Channel, error) {
	var rows []channelModel
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Channel, 0, len(rows))
	for _, m := range rows {
		if subscribed(m.Events, e) {
			out = append(out, m.toDomain())
		}
	}
	return out, nil
}

// UpdateChannel applies p to the channel with id. The type never changes.
func (s *Store) UpdateChannel(ctx context.Context, id string, p validate.ChannelPatch) (*domain.Channel, error) {
	var m channelModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if p.Name != nil {
			m.Name = *p.Name
		}
		if p.Config != nil {
			m.Config = datatypes.JSON(*p.Config)
		}
		if p.Events != nil {
			m.Events = toStrings(*p.Events)
		}
		if p.Enabled != nil {
			m.Enabled = *p.Enabled
		}
		return tx.Save(&m).Error
	})
	if err != nil {
		return nil, err
	}
	ch := m.toDomain()
	return &ch, nil
}

// DeleteChannel removes the channel with id.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&channelModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
