package workers

import (
	"context"
	"fmt"

	"competition-service/services"

	"github.com/sirupsen/logrus"
)

type prizeFulfiller interface {
	PendingFulfillment(ctx context.Context) ([]string, error)
	FulfillPrizes(ctx context.Context, actor services.Actor, competitionID string) (*services.FulfillmentResult, error)
}

// FulfillmentWorker retries prize grants for announced winners that are
// still unpaid, e.g. after the ledger was unreachable during the admin run.
type FulfillmentWorker struct {
	winners prizeFulfiller
	log     *logrus.Logger
}

func NewFulfillmentWorker(winners prizeFulfiller, log *logrus.Logger) *FulfillmentWorker {
	return &FulfillmentWorker{winners: winners, log: log}
}

// RunOnce processes every competition with pending prizes and returns how
// many identities were granted. A failing competition does not stop the rest.
func (w *FulfillmentWorker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.winners.PendingFulfillment(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending fulfillment: %w", err)
	}
	if len(ids) == 0 {
		w.log.Debug("➡️ no unpaid winners")
		return 0, nil
	}

	granted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return granted, err
		}
		log := w.log.WithField("competition_id", id)
		result, err := w.winners.FulfillPrizes(ctx, services.SystemActor(), id)
		if err != nil {
			log.WithError(err).Error("❌ fulfillment retry failed")
			continue
		}
		granted += result.GrantedCount
		if result.Partial() {
			log.WithField("failures", len(result.Failures)).Warn("⚠️ some prizes still unpaid, will retry")
		}
	}
	w.log.WithFields(logrus.Fields{"competitions": len(ids), "granted": granted}).Info("🎁 fulfillment retry finished")
	return granted, nil
}
