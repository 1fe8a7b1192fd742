package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"competition-service/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WinnerService struct {
	DB                  *gorm.DB
	Log                 *logrus.Logger
	Clock               clockwork.Clock
	Ledger              CreditLedger
	Events              EventPublisher
	Archive             SnapshotArchiver // optional
	DefaultPrizeCredits int
	ClaimTTL            time.Duration // how long a fulfillment run holds a winner's rows

	locks *competitionLocks
}

// NewWinnerService builds the winner workflow. leases may be nil when a
// single instance owns the database.
func NewWinnerService(db *gorm.DB, log *logrus.Logger, clock clockwork.Clock, ledger CreditLedger, events EventPublisher, archive SnapshotArchiver, leases *Leases, defaultPrizeCredits int) *WinnerService {
	return &WinnerService{
		DB:                  db,
		Log:                 log,
		Clock:               clock,
		Ledger:              ledger,
		Events:              events,
		Archive:             archive,
		DefaultPrizeCredits: defaultPrizeCredits,
		ClaimTTL:            DefaultLeaseTTL,
		locks:               newCompetitionLocks(leases),
	}
}

type SelectionResult struct {
	CompetitionID string    `json:"competition_id"`
	Winners       []string  `json:"winners"`
	RowsMarked    int64     `json:"rows_marked"`
	AnnouncedAt   time.Time `json:"announced_at"`
	SnapshotURL   string    `json:"snapshot_url,omitempty"`
}

// FulfillmentFailure is a winner whose prize could not be granted in this run.
type FulfillmentFailure struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason"`
}

type FulfillmentResult struct {
	CompetitionID string               `json:"competition_id"`
	GrantedCount  int                  `json:"granted_count"`
	Failures      []FulfillmentFailure `json:"failures"`
}

// Partial reports a run that left some winners unpaid.
func (r *FulfillmentResult) Partial() bool {
	return len(r.Failures) > 0
}

type Winner struct {
	Identity     string     `json:"identity"`
	Score        int        `json:"score"`
	PrizeClaimed bool       `json:"prize_claimed"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

// SelectWinners validates the candidate set against max_winners and commits
// it, replacing any previous winner set.
func (s *WinnerService) SelectWinners(ctx context.Context, actor Actor, competitionID string, identities []string) (*SelectionResult, error) {
	if err := authorize(actor, CapabilityManageCompetitions); err != nil {
		return nil, err
	}
	candidates, err := normalizeIdentities(identities)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	defer release()

	competition, err := loadCompetition(s.DB.WithContext(ctx), competitionID)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, competition, candidates)
}

// AutoSelectWinners commits the current top max_winners of the leaderboard.
func (s *WinnerService) AutoSelectWinners(ctx context.Context, actor Actor, competitionID string) (*SelectionResult, error) {
	if err := authorize(actor, CapabilityManageCompetitions); err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	defer release()

	db := s.DB.WithContext(ctx)
	competition, err := loadCompetition(db, competitionID)
	if err != nil {
		return nil, err
	}
	standings, err := standingsFor(db, competitionID)
	if err != nil {
		return nil, err
	}
	top := truncate(standings, competition.MaxWinners)
	candidates := make([]string, len(top))
	for i, st := range top {
		candidates[i] = st.Identity
	}
	return s.commit(ctx, actor, competition, candidates)
}

// commit runs with the competition lock held.
func (s *WinnerService) commit(ctx context.Context, actor Actor, competition *models.Competition, candidates []string) (*SelectionResult, error) {
	if len(candidates) > competition.MaxWinners {
		return nil, fmt.Errorf("%w: %d candidates, max_winners is %d", ErrWinnerLimitExceeded, len(candidates), competition.MaxWinners)
	}

	log := s.Log.WithFields(logrus.Fields{
		"competition_id": competition.ID,
		"actor":          actor.ActorID(),
	})
	now := s.Clock.Now().UTC()
	result := &SelectionResult{CompetitionID: competition.ID, Winners: candidates, AnnouncedAt: now}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(candidates) > 0 {
			var ranked []string
			if err := tx.Model(&models.CompetitionScore{}).
				Where("competition_id = ? AND identity IN ?", competition.ID, candidates).
				Distinct().Pluck("identity", &ranked).Error; err != nil {
				return fmt.Errorf("check candidates: %w", err)
			}
			if missing := difference(candidates, ranked); len(missing) > 0 {
				return fmt.Errorf("%w: %w: %v", ErrValidation, ErrIdentityNotRanked, missing)
			}
		}

		keep := append([]string{""}, candidates...)
		var claimed int64
		if err := tx.Model(&models.CompetitionScore{}).
			Where("competition_id = ? AND is_winner = ? AND prize_claimed = ? AND identity NOT IN ?", competition.ID, true, true, keep).
			Count(&claimed).Error; err != nil {
			return fmt.Errorf("count claimed winners: %w", err)
		}
		if claimed > 0 {
			log.WithField("claimed_rows", claimed).Warn("⚠️ superseding winners that already received their prize")
		}

		if err := tx.Model(&models.CompetitionScore{}).
			Where("competition_id = ? AND is_winner = ?", competition.ID, true).
			Update("is_winner", false).Error; err != nil {
			return fmt.Errorf("clear winners: %w", err)
		}
		if len(candidates) > 0 {
			res := tx.Model(&models.CompetitionScore{}).
				Where("competition_id = ? AND identity IN ?", competition.ID, candidates).
				Update("is_winner", true)
			if res.Error != nil {
				return fmt.Errorf("mark winners: %w", res.Error)
			}
			result.RowsMarked = res.RowsAffected
		}
		if err := tx.Model(&models.Competition{}).
			Where("id = ?", competition.ID).
			Updates(map[string]interface{}{
				"winners_announced": true,
				"announced_at":      now,
			}).Error; err != nil {
			return fmt.Errorf("announce winners: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithField("winners", len(candidates)).Info("🏆 winner set committed")

	s.afterCommit(ctx, competition, result)
	return result, nil
}

// afterCommit publishes and archives the new winner set. Failures here are
// logged only; the commit stands.
func (s *WinnerService) afterCommit(ctx context.Context, competition *models.Competition, result *SelectionResult) {
	log := s.Log.WithField("competition_id", competition.ID)

	if s.Events != nil {
		if err := s.Events.Publish(ctx, EventWinnersAnnounced, result); err != nil {
			log.WithError(err).Warn("⚠️ failed to publish winners event")
		}
	}
	if s.Archive == nil {
		return
	}
	standings, err := standingsFor(s.DB.WithContext(ctx), competition.ID)
	if err != nil {
		log.WithError(err).Warn("⚠️ snapshot skipped, leaderboard unavailable")
		return
	}
	snapshot := map[string]any{
		"competition": competition,
		"winners":     result.Winners,
		"announced":   result.AnnouncedAt,
		"leaderboard": standings,
	}
	key := fmt.Sprintf("competitions/%s/winners-%s.json", competition.Slug, result.AnnouncedAt.Format("20060102T150405Z"))
	url, err := s.Archive.ArchiveJSON(ctx, key, snapshot)
	if err != nil {
		log.WithError(err).Warn("⚠️ failed to archive winner snapshot")
		return
	}
	result.SnapshotURL = url
}

// FulfillPrizes grants the prize to every winner not yet paid. Each winning
// identity's rows are first reserved, and only the run holding the
// reservation calls the ledger, with a key that is stable across runs. Ledger
// failures release the reservation, are collected, and the batch carries on.
// Re-running only touches unpaid rows.
func (s *WinnerService) FulfillPrizes(ctx context.Context, actor Actor, competitionID string) (*FulfillmentResult, error) {
	if err := authorize(actor, CapabilityManageCompetitions); err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	defer release()

	db := s.DB.WithContext(ctx)
	competition, err := loadCompetition(db, competitionID)
	if err != nil {
		return nil, err
	}
	amount := int64(competition.PrizeCredits)
	if amount <= 0 {
		amount = int64(s.DefaultPrizeCredits)
	}

	var rows []models.CompetitionScore
	if err := db.Where("competition_id = ? AND is_winner = ? AND prize_claimed = ?", competitionID, true, false).
		Order("identity ASC").Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load unpaid winners: %w", err)
	}

	// Identities paid in an earlier run can hold new unclaimed winner rows
	// (later submissions, re-announced winners). They are never paid twice.
	var paid []string
	if err := db.Model(&models.CompetitionScore{}).
		Where("competition_id = ? AND prize_claimed = ?", competitionID, true).
		Distinct().Pluck("identity", &paid).Error; err != nil {
		return nil, fmt.Errorf("load paid identities: %w", err)
	}
	alreadyPaid := make(map[string]bool, len(paid))
	for _, p := range paid {
		alreadyPaid[p] = true
	}

	result := &FulfillmentResult{CompetitionID: competitionID, Failures: []FulfillmentFailure{}}
	for _, group := range groupByIdentity(rows) {
		if err := ctx.Err(); err != nil {
			s.Log.WithError(err).WithFields(logrus.Fields{
				"competition_id": competitionID,
				"granted":        result.GrantedCount,
				"failed":         len(result.Failures),
				"failures":       result.Failures,
			}).Warn("⏹️ prize fulfillment interrupted")
			return result, err
		}
		if alreadyPaid[group.identity] {
			if err := s.markClaimed(ctx, group); err != nil {
				s.Log.WithError(err).WithField("identity", group.identity).Warn("⚠️ failed to close rows of a paid winner")
			}
			continue
		}
		if s.fulfillOne(ctx, competition, group, amount, result) {
			result.GrantedCount++
		}
	}

	s.Log.WithFields(logrus.Fields{
		"competition_id": competitionID,
		"granted":        result.GrantedCount,
		"failed":         len(result.Failures),
	}).Info("🎁 prize fulfillment finished")
	return result, nil
}

type identityRows struct {
	identity string
	rows     []models.CompetitionScore
}

func groupByIdentity(rows []models.CompetitionScore) []identityRows {
	var groups []identityRows
	for _, r := range rows {
		if n := len(groups); n > 0 && groups[n-1].identity == r.Identity {
			groups[n-1].rows = append(groups[n-1].rows, r)
			continue
		}
		groups = append(groups, identityRows{identity: r.Identity, rows: []models.CompetitionScore{r}})
	}
	return groups
}

func accountFor(group identityRows) string {
	for _, r := range group.rows {
		if r.AccountRef != "" {
			return r.AccountRef
		}
	}
	return group.identity
}

func (s *WinnerService) fulfillOne(ctx context.Context, competition *models.Competition, group identityRows, amount int64, result *FulfillmentResult) bool {
	account := accountFor(group)
	log := s.Log.WithFields(logrus.Fields{
		"competition_id": competition.ID,
		"identity":       group.identity,
		"account":        account,
	})
	fail := func(reason string, err error) bool {
		log.WithError(err).Warn("❌ " + reason)
		result.Failures = append(result.Failures, FulfillmentFailure{
			Identity: group.identity,
			Reason:   fmt.Sprintf("%s: %v", reason, err),
		})
		return false
	}

	// Only the run holding the reservation may call the ledger.
	token := uuid.NewString()
	reserved, err := s.reserveClaim(ctx, group, token)
	if err != nil {
		return fail("claim could not be reserved", err)
	}
	if reserved == 0 {
		log.Info("⏭️ prize reserved by another run")
		return false
	}
	undo := func(reason string, err error) bool {
		if rerr := s.releaseClaim(context.WithoutCancel(ctx), group, token); rerr != nil {
			log.WithError(rerr).Warn("⚠️ reservation not released, it will expire")
		}
		return fail(reason, err)
	}

	before, err := s.Ledger.ReadAllowance(ctx, account)
	if err != nil {
		return undo("account lookup failed", err)
	}
	if err := s.Ledger.IncreaseAllowance(ctx, account, amount, PrizeGrantKey(competition.ID, group.identity)); err != nil {
		return undo("allowance increase failed", err)
	}

	// The grant happened, so record it even if ctx was cancelled meanwhile.
	now, err := s.completeClaim(context.WithoutCancel(ctx), group, token)
	if err != nil {
		// The reservation stays until it expires; the next run replays the
		// same key and the ledger does not apply it twice.
		return fail("allowance granted but claim not recorded", err)
	}

	log.WithFields(logrus.Fields{"amount": amount, "allowance_before": before}).Info("✅ prize granted")
	if s.Events != nil {
		payload := map[string]any{
			"competition_id": competition.ID,
			"identity":       group.identity,
			"account_ref":    account,
			"amount":         amount,
			"granted_at":     now,
		}
		if err := s.Events.Publish(ctx, EventPrizeGranted, payload); err != nil {
			log.WithError(err).Warn("⚠️ failed to publish prize event")
		}
	}
	return true
}

// PrizeGrantKey is the ledger idempotency key of an identity's prize. It is
// the same on every run, so a replayed grant is applied once.
func PrizeGrantKey(competitionID, identity string) string {
	return "prize:" + competitionID + ":" + identity
}

func rowIDs(group identityRows) []string {
	ids := make([]string, len(group.rows))
	for i, r := range group.rows {
		ids[i] = r.ID
	}
	return ids
}

// reserveClaim marks the group's unpaid rows with token unless another run
// holds a reservation that has not expired. It reports the rows reserved.
func (s *WinnerService) reserveClaim(ctx context.Context, group identityRows, token string) (int64, error) {
	now := s.Clock.Now()
	res := s.DB.WithContext(ctx).Model(&models.CompetitionScore{}).
		Where("id IN ? AND is_winner = ? AND prize_claimed = ? AND claim_expires_at <= ?",
			rowIDs(group), true, false, now.UnixMilli()).
		Updates(map[string]interface{}{
			"claim_token":      token,
			"claim_expires_at": now.Add(s.ClaimTTL).UnixMilli(),
		})
	return res.RowsAffected, res.Error
}

// releaseClaim drops token's reservation after a grant that did not go through.
func (s *WinnerService) releaseClaim(ctx context.Context, group identityRows, token string) error {
	return s.DB.WithContext(ctx).Model(&models.CompetitionScore{}).
		Where("id IN ? AND claim_token = ? AND prize_claimed = ?", rowIDs(group), token, false).
		Updates(map[string]interface{}{
			"claim_token":      "",
			"claim_expires_at": 0,
		}).Error
}

// completeClaim flips prize_claimed on the rows token reserved.
func (s *WinnerService) completeClaim(ctx context.Context, group identityRows, token string) (time.Time, error) {
	now := s.Clock.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.CompetitionScore{}).
		Where("id IN ? AND claim_token = ? AND prize_claimed = ?", rowIDs(group), token, false).
		Updates(map[string]interface{}{
			"prize_claimed":    true,
			"claimed_at":       now,
			"claim_token":      "",
			"claim_expires_at": 0,
		})
	if res.Error != nil {
		return now, res.Error
	}
	if res.RowsAffected == 0 {
		s.Log.WithField("identity", group.identity).Warn("⚠️ reservation expired before the claim was recorded")
	}
	return now, nil
}

// markClaimed closes the unpaid winner rows of an identity that was already
// paid in an earlier run, without a ledger call.
func (s *WinnerService) markClaimed(ctx context.Context, group identityRows) error {
	return s.DB.WithContext(ctx).Model(&models.CompetitionScore{}).
		Where("id IN ? AND is_winner = ? AND prize_claimed = ?", rowIDs(group), true, false).
		Updates(map[string]interface{}{
			"prize_claimed": true,
			"claimed_at":    s.Clock.Now().UTC(),
		}).Error
}

// ListWinners returns the current winner set with each winner's best score.
func (s *WinnerService) ListWinners(ctx context.Context, actor Actor, competitionID string) ([]Winner, error) {
	if err := authorize(actor, CapabilityManageCompetitions); err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if _, err := loadCompetition(db, competitionID); err != nil {
		return nil, err
	}
	var rows []models.CompetitionScore
	if err := db.Where("competition_id = ? AND is_winner = ?", competitionID, true).
		Order("identity ASC").Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load winners: %w", err)
	}

	winners := make([]Winner, 0)
	for _, group := range groupByIdentity(rows) {
		w := Winner{Identity: group.identity, PrizeClaimed: true}
		for _, r := range group.rows {
			if r.Score > w.Score {
				w.Score = r.Score
			}
			if !r.PrizeClaimed {
				w.PrizeClaimed = false
			}
			if r.ClaimedAt != nil && (w.ClaimedAt == nil || r.ClaimedAt.Before(*w.ClaimedAt)) {
				w.ClaimedAt = r.ClaimedAt
			}
		}
		winners = append(winners, w)
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].Score > winners[j].Score })
	return winners, nil
}

// PendingFulfillment lists competitions with announced winners still unpaid.
func (s *WinnerService) PendingFulfillment(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.CompetitionScore{}).
		Where("is_winner = ? AND prize_claimed = ?", true, false).
		Distinct().Pluck("competition_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("find pending fulfillment: %w", err)
	}
	return ids, nil
}

func difference(want, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, h := range have {
		present[h] = true
	}
	var missing []string
	for _, w := range want {
		if !present[w] {
			missing = append(missing, w)
		}
	}
	return missing
}
