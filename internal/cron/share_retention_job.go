package cron

import (
	"context"
	"fmt"

	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
)

type ShareRetentionJobParams struct {
	Logger *logger.Logger
	Shares shareExpirer
}

type shareExpirer interface {
	DeleteExpired(ctx context.Context) (int, error)
}

func NewShareRetentionJob(params ShareRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Shares == nil {
		return nil, fmt.Errorf("share service required")
	}
	return &shareRetentionJob{logg: params.Logger, shares: params.Shares}, nil
}

type shareRetentionJob struct {
	logg   *logger.Logger
	shares shareExpirer
}

func (j *shareRetentionJob) Name() string { return JobShareRetention }

func (j *shareRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.shares.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("share retention: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "shares_deleted", deleted), "share retention complete")
	return nil
}
