package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/mirror"
)

// Distributor is the slice of the ledger engine the distribution job needs.
type Distributor interface {
	GetRewardPool(ctx context.Context) (*ledger.PoolView, error)
	Distribute(ctx context.Context, authority domain.Address) (*ledger.Distribution, error)
}

// DistributionJob triggers a reward distribution as operator whenever the
// pool is due. A pool that is missing or not yet due is not an error, and
// neither is an empty pool.
func DistributionJob(d Distributor, operator domain.Address, interval time.Duration, nowFn func() int64, log *logrus.Entry) Job {
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().Unix() }
	}
	if log == nil {
		log = logrus.WithField("component", "orchestrator")
	}
	return Job{
		Name:       "distribute",
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			view, err := d.GetRewardPool(ctx)
			if err != nil {
				if errors.Is(err, ledger.ErrNotInitialized) {
					log.Debug("reward pool not initialized")
					return nil
				}
				return err
			}
			if now := nowFn(); now < view.NextDistributionAt {
				log.WithField("next", view.NextDistributionAt).Debug("distribution not due")
				return nil
			}

			dist, err := d.Distribute(ctx, operator)
			switch {
			case errors.Is(err, ledger.ErrDistributionTooEarly),
				errors.Is(err, ledger.ErrInsufficientPoolBalance):
				log.WithError(err).Info("distribution skipped")
				return nil
			case err != nil:
				return err
			}
			log.WithFields(logrus.Fields{
				"balance":          dist.Balance,
				"developer_share":  dist.Split.DeveloperShare,
				"user_share":       dist.Split.UserShare,
				"total_developers": dist.TotalDevelopers,
			}).Info("rewards distributed")
			return nil
		},
	}
}

// AccountSyncJob refreshes every mirrored program account.
func AccountSyncJob(s *mirror.AccountSyncer, interval time.Duration, log *logrus.Entry) Job {
	if log == nil {
		log = logrus.WithField("component", "orchestrator")
	}
	return Job{
		Name:       "account-sync",
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			res, err := s.SyncAll(ctx)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"imported": res.Total(),
				"skipped":  res.Skipped,
				"duration": res.Duration,
			}).Info("accounts synced")
			return nil
		},
	}
}
