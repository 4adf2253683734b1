package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/uptrace/bun"
)

type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	repo, err := newRepository(db, subscriptionHandlers(), "subscription")
	if err != nil {
		return nil, err
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

// CreateSubscription stores an active, unverified subscription.
func (s *SubscriptionStore) CreateSubscription(ctx context.Context, in core.NewSubscription, now time.Time) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.EventType = strings.TrimSpace(in.EventType)
	in.CallbackURL = strings.TrimSpace(in.CallbackURL)
	if err := in.Validate(); err != nil {
		return core.Subscription{}, err
	}
	record := &subscriptionRecord{
		EventType:   in.EventType,
		CallbackURL: in.CallbackURL,
		Active:      true,
		Verified:    false,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if _, err := s.db.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

func (s *SubscriptionStore) GetSubscription(ctx context.Context, id int64) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	records, _, err := s.repo.List(ctx, byID(id), repository.SelectPaginate(1, 0))
	if err != nil {
		return core.Subscription{}, err
	}
	if len(records) == 0 {
		return core.Subscription{}, fmt.Errorf("%w: id %d", core.ErrSubscriptionNotFound, id)
	}
	return records[0].toDomain(), nil
}

// ListEligibleSubscriptions returns every active and verified subscription
// for eventType, oldest first.
func (s *SubscriptionStore) ListEligibleSubscriptions(ctx context.Context, eventType string) ([]core.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	var records []subscriptionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.event_type = ?", strings.TrimSpace(eventType)).
		Where("?TableAlias.active = ?", true).
		Where("?TableAlias.verified = ?", true).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return subscriptionsToDomain(records), nil
}

func (s *SubscriptionStore) ListSubscriptions(ctx context.Context, filter core.SubscriptionFilter) ([]core.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	var records []subscriptionRecord
	query := s.db.NewSelect().Model(&records)
	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		query = query.Where("?TableAlias.event_type = ?", eventType)
	}
	if filter.Active != nil {
		query = query.Where("?TableAlias.active = ?", *filter.Active)
	}
	if filter.Verified != nil {
		query = query.Where("?TableAlias.verified = ?", *filter.Verified)
	}
	if err := query.OrderExpr("?TableAlias.id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return subscriptionsToDomain(records), nil
}

func (s *SubscriptionStore) SetSubscriptionActive(ctx context.Context, id int64, active bool, now time.Time) (core.Subscription, error) {
	return s.setFlag(ctx, id, "active", active, now)
}

func (s *SubscriptionStore) SetSubscriptionVerified(ctx context.Context, id int64, verified bool, now time.Time) (core.Subscription, error) {
	return s.setFlag(ctx, id, "verified", verified, now)
}

func (s *SubscriptionStore) setFlag(ctx context.Context, id int64, column string, value bool, now time.Time) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return core.Subscription{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.Subscription{}, fmt.Errorf("%w: id %d", core.ErrSubscriptionNotFound, id)
	}
	return s.GetSubscription(ctx, id)
}

func subscriptionsToDomain(records []subscriptionRecord) []core.Subscription {
	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
