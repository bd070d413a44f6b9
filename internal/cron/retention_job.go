package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 30 * 24 * time.Hour
	defaultNotificationRetention = 90 * 24 * time.Hour
)

// PurgeFunc deletes rows older than cutoff inside tx and reports how many went.
type PurgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionJobParams describe one table purge.
type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	DB        txRunner
	Retention time.Duration
	Purge     PurgeFunc
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type notificationPurger interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	retention time.Duration
	purge     PurgeFunc
	now       func() time.Time
}

func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Name == "":
		return nil, fmt.Errorf("retention job name required")
	case params.Logger == nil:
		return nil, fmt.Errorf("%s: logger required", params.Name)
	case params.DB == nil:
		return nil, fmt.Errorf("%s: db runner required", params.Name)
	case params.Purge == nil:
		return nil, fmt.Errorf("%s: purge func required", params.Name)
	case params.Retention <= 0:
		return nil, fmt.Errorf("%s: retention must be positive", params.Name)
	}
	return &retentionJob{
		name:      params.Name,
		logg:      params.Logger,
		db:        params.DB,
		retention: params.Retention,
		purge:     params.Purge,
		now:       time.Now,
	}, nil
}

// NewOutboxRetentionJob drops relayed outbox rows, plus rows the publisher
// parked after maxAttempts, once they are older than retention.
func NewOutboxRetentionJob(logg *logger.Logger, db txRunner, repo outboxPurger, retention time.Duration, maxAttempts int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return NewRetentionJob(RetentionJobParams{
		Name:      "outbox-retention",
		Logger:    logg,
		DB:        db,
		Retention: orDefault(retention, defaultOutboxRetention),
		Purge: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return repo.DeletePublishedBefore(ctx, tx, cutoff, maxAttempts)
		},
	})
}

// NewNotificationCleanupJob drops read notifications older than retention.
func NewNotificationCleanupJob(logg *logger.Logger, db txRunner, repo notificationPurger, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return NewRetentionJob(RetentionJobParams{
		Name:      "notification-cleanup",
		Logger:    logg,
		DB:        db,
		Retention: orDefault(retention, defaultNotificationRetention),
		Purge:     repo.DeleteOlderThan,
	})
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.purge(ctx, tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff.Format(time.RFC3339),
		"rows_deleted": deleted,
	}), "cron.retention.purged")
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
