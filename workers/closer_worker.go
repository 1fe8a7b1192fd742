package workers

import (
	"context"

	"github.com/sirupsen/logrus"
)

type expiredCloser interface {
	CloseExpired(ctx context.Context) (int, error)
}

// CompetitionCloser deactivates competitions whose window has ended.
type CompetitionCloser struct {
	competitions expiredCloser
	log          *logrus.Logger
}

func NewCompetitionCloser(competitions expiredCloser, log *logrus.Logger) *CompetitionCloser {
	return &CompetitionCloser{competitions: competitions, log: log}
}

func (c *CompetitionCloser) RunOnce(ctx context.Context) (int, error) {
	n, err := c.competitions.CloseExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.WithField("closed", n).Info("✅ closed expired competitions")
	}
	return n, nil
}
