package services

import "context"

// CreditLedger is the usage ledger prizes are paid into. accountRef is the
// account id linked to a score, or the player's email when none is linked.
// An increase that repeats an idempotencyKey already applied must succeed
// without changing the balance.
type CreditLedger interface {
	ReadAllowance(ctx context.Context, accountRef string) (int64, error)
	IncreaseAllowance(ctx context.Context, accountRef string, amount int64, idempotencyKey string) error
}

// EventPublisher broadcasts domain events (winners announced, prize granted).
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// SnapshotArchiver stores a JSON document under key and returns its URL.
type SnapshotArchiver interface {
	ArchiveJSON(ctx context.Context, key string, v any) (string, error)
}

const (
	EventWinnersAnnounced = "competition.winners_announced"
	EventPrizeGranted     = "competition.prize_granted"
)
