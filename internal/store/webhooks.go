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

type webhookModel struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)"`
	Name            string     `gorm:"type:varchar(100);not null"`
	URL             string     `gorm:"type:text;not null"`
	Events          []string   `gorm:"serializer:json;type:text;not null"`
	Secret          string     `gorm:"type:varchar(255)"`
	Enabled         bool       `gorm:"not null;index"`
	FailureCount    int        `gorm:"not null;default:0"`
	LastTriggeredAt *time.Time `gorm:""`
	LastStatusCode  *int       `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`

	Deliveries []deliveryModel `gorm:"foreignKey:WebhookID;constraint:OnDelete:CASCADE"`
}

func (webhookModel) TableName() string { return "webhooks" }

func (m webhookModel) toDomain() domain.Webhook {
	return domain.Webhook{
		ID:              m.ID,
		Name:            m.Name,
		URL:             m.URL,
		Events:          toEvents(m.Events),
		Secret:          m.Secret,
		Enabled:         m.Enabled,
		FailureCount:    m.FailureCount,
		LastTriggeredAt: m.LastTriggeredAt,
		LastStatusCode:  m.LastStatusCode,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// deliveryModel rows are append-only.
type deliveryModel struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)"`
	WebhookID    string         `gorm:"type:varchar(36);not null;index:idx_delivery_webhook_time"`
	Event        string         `gorm:"type:varchar(64);not null"`
	Payload      datatypes.JSON `gorm:"not null"`
	StatusCode   *int           `gorm:""`
	ResponseBody string         `gorm:"type:text"`
	Success      bool           `gorm:"not null"`
	Error        string         `gorm:"type:text"`
	DurationMs   int64          `gorm:"not null"`
	AttemptedAt  time.Time      `gorm:"not null;index:idx_delivery_webhook_time"`
}

func (deliveryModel) TableName() string { return "webhook_deliveries" }

func (m deliveryModel) toDomain() domain.WebhookDelivery {
	return domain.WebhookDelivery{
		ID:           m.ID,
		WebhookID:    m.WebhookID,
		Event:        domain.Event(m.Event),
		Payload:      json.RawMessage(m.Payload),
		StatusCode:   m.StatusCode,
		ResponseBody: m.ResponseBody,
		Success:      m.Success,
		Error:        m.Error,
		DurationMs:   m.DurationMs,
		AttemptedAt:  m.AttemptedAt,
	}
}

// CreateWebhook inserts wh with a zero failure count.
func (s *Store) CreateWebhook(ctx context.Context, wh *domain.Webhook) error {
	m := webhookModel{
		ID:      s.newID(),
		Name:    wh.Name,
		URL:     wh.URL,
		Events:  toStrings(wh.Events),
		Secret:  wh.Secret,
		Enabled: wh.Enabled,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	*wh = m.toDomain()
	return nil
}

// GetWebhook returns domain.ErrNotFound for unknown ids.
func (s *Store) GetWebhook(ctx context.Context, id string) (*domain.Webhook, error) {
	var m webhookModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	wh := m.toDomain()
	return &wh, nil
}

func (s *Store) ListWebhooks(ctx context.Context) ([]domain.Webhook, error) {
	var rows []webhookModel
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Webhook, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// EnabledWebhooksFor returns enabled webhooks subscribed to e.
func (s *Store) EnabledWebhooksFor(ctx context.Context, e domain.Event) ([]domain.Webhook, error) {
	var rows []webhookModel
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Webhook, 0, len(rows))
	for _, m := range rows {
		if subscribed(m.Events, e) {
			out = append(out, m.toDomain())
		}
	}
	return out, nil
}

// UpdateWebhook applies p. Switching a disabled webhook back on resets its
// failure count in the same transaction.
func (s *Store) UpdateWebhook(ctx context.Context, id string, p validate.WebhookPatch) (*domain.Webhook, error) {
	var m webhookModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if p.Name != nil {
			m.Name = *p.Name
		}
		if p.URL != nil {
			m.URL = *p.URL
		}
		if p.Events != nil {
			m.Events = toStrings(*p.Events)
		}
		if p.Secret != nil {
			m.Secret = *p.Secret
		}
		if p.Enabled != nil {
			if *p.Enabled && !m.Enabled {
				m.FailureCount = 0
			}
			m.Enabled = *p.Enabled
		}
		return tx.Omit("Deliveries").Save(&m).Error
	})
	if err != nil {
		return nil, err
	}
	wh := m.toDomain()
	return &wh, nil
}

// DeleteWebhook removes the webhook and its delivery log.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("webhook_id = ?", id).Delete(&deliveryModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&webhookModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// RecordAttemptOutcome stamps the last attempt on the webhook and bumps the
// failure count on failure.
func (s *Store) RecordAttemptOutcome(ctx context.Context, id string, status *int, success bool, at time.Time) error {
	updates := map[string]interface{}{
		"last_triggered_at": at,
		"last_status_code":  status,
	}
	if !success {
		updates["failure_count"] = gorm.Expr("failure_count + ?", 1)
	}
	return s.db.WithContext(ctx).Model(&webhookModel{}).Where("id = ?", id).Updates(updates).Error
}

// RecordDelivery appends an audit row.
func (s *Store) RecordDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	if d.ID == "" {
		d.ID = s.newID()
	}
	m := deliveryModel{
		ID:           d.ID,
		WebhookID:    d.WebhookID,
		Event:        string(d.Event),
		Payload:      datatypes.JSON(d.Payload),
		StatusCode:   d.StatusCode,
		ResponseBody: domain.Truncate(d.ResponseBody, domain.MaxResponseBody),
		Success:      d.Success,
		Error:        d.Error,
		DurationMs:   d.DurationMs,
		AttemptedAt:  d.AttemptedAt,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListDeliveries returns the newest deliveries for a webhook first.
func (s *Store) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []deliveryModel
	err := s.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("attempted_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.WebhookDelivery, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// PruneDeliveries deletes audit rows attempted before cutoff and returns how
// many were removed.
func (s *Store) PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("attempted_at < ?", cutoff).Delete(&deliveryModel{})
	return res.RowsAffected, res.Error
}
