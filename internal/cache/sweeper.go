package cache

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/contextual-meta-translator/pkg/icron"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

// ScheduleSweep registers a periodic purge of expired entries on c. Stores
// that do not implement Sweeper are left alone; reads already ignore expired
// entries, so sweeping only reclaims space.
func ScheduleSweep(c *cron.Cron, store Store, cronExpr string) error {
	sweeper, ok := store.(Sweeper)
	if !ok || cronExpr == "" {
		return nil
	}
	logger := log.GetLogger().With("cache")

	_, err := c.AddFunc(cronExpr, func() {
		removed, err := sweeper.Sweep(context.Background(), time.Now())
		if err != nil {
			logger.Error("Failed to sweep expired cache entries: %v", err)
			return
		}
		if removed > 0 {
			logger.Info("Swept %d expired cache entries", removed)
		}
	})
	if err != nil {
		return err
	}

	if info, err := icron.GetTriggerInfo(cronExpr, time.Now()); err == nil {
		logger.Info("Cache sweep scheduled (%s), next run in %s", cronExpr, info.TimeUntilNext.Round(time.Second))
	}
	return nil
}
