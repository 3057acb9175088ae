package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconcilerServiceImpl implements ports.Reconciler.
type ReconcilerServiceImpl struct {
	feed        ports.CommissionFeed
	userRepo    ports.UserRepository
	clickRepo   ports.ClickRepository
	commRepo    ports.CommissionRepository
	dlqRepo     ports.DeadLetterRepository
	stateRepo   ports.FeedStateRepository
	ledger      ports.LedgerUpdater
	publisher   ports.EventPublisher
	userPct     float64
	referralPct float64
	log         zerolog.Logger
}

// NewReconcilerService creates a new ReconcilerServiceImpl.
func NewReconcilerService(
	feed ports.CommissionFeed,
	userRepo ports.UserRepository,
	clickRepo ports.ClickRepository,
	commRepo ports.CommissionRepository,
	dlqRepo ports.DeadLetterRepository,
	stateRepo ports.FeedStateRepository,
	ledger ports.LedgerUpdater,
	publisher ports.EventPublisher,
	userPct, referralPct float64,
	log zerolog.Logger,
) *ReconcilerServiceImpl {
	return &ReconcilerServiceImpl{
		feed:        feed,
		userRepo:    userRepo,
		clickRepo:   clickRepo,
		commRepo:    commRepo,
		dlqRepo:     dlqRepo,
		stateRepo:   stateRepo,
		ledger:      ledger,
		publisher:   publisher,
		userPct:     userPct,
		referralPct: referralPct,
		log:         log,
	}
}

// Reconcile fetches the external commission set since the stored watermark,
// attributes each record to a user, diffs against what is persisted and
// writes only what actually changed, cascading wallet updates and referral
// commissions. One user's failure never blocks the others.
func (s *ReconcilerServiceImpl) Reconcile(ctx context.Context) error {
	since, err := s.stateRepo.GetSince(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("load watermark: %w", err))
	}

	feedComms, err := s.feed.FetchCommissions(ctx, since)
	if err != nil {
		return apperror.ErrFeedUnavailable(err)
	}
	if len(feedComms) == 0 {
		s.log.Debug().Msg("no commissions reported by feed")
		return nil
	}

	perUser := s.attributeAll(ctx, feedComms)

	users := 0
	failures := 0
	oldestOpen := time.Time{}
	for userID, incoming := range perUser {
		open, err := s.reconcileUser(ctx, userID, incoming)
		if err != nil {
			failures++
			s.log.Error().Err(err).Str("user_id", userID.String()).Msg("user reconciliation failed")
			continue
		}
		users++
		if !open.IsZero() && (oldestOpen.IsZero() || open.Before(oldestOpen)) {
			oldestOpen = open
		}
	}

	// Advance the watermark to the oldest commission that can still change.
	// When every commission is final the feed no longer needs history at all,
	// so the watermark moves up to now.
	if failures == 0 {
		mark := time.Now().UTC()
		if !oldestOpen.IsZero() {
			mark = oldestOpen
		}
		if err := s.stateRepo.SetSince(ctx, mark); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist feed watermark")
		}
	}

	s.log.Info().
		Int("fetched", len(feedComms)).
		Int("users", users).
		Int("failures", failures).
		Msg("reconciliation run complete")

	if failures > 0 {
		return apperror.InternalError(fmt.Errorf("%d of %d users failed to reconcile", failures, users+failures))
	}
	return nil
}

// attributeAll resolves every feed commission to its owning user, splits the
// user's share, derives referral cascades and groups the results per user.
// Unattributable records are parked in the dead-letter store.
func (s *ReconcilerServiceImpl) attributeAll(ctx context.Context, feedComms []ports.FeedCommission) map[uuid.UUID][]domain.Commission {
	perUser := make(map[uuid.UUID][]domain.Commission)

	for _, fc := range feedComms {
		userID, err := s.attribute(ctx, fc)
		if err != nil {
			s.log.Error().Err(err).Str("origin_id", fc.OriginID).Msg("attribution lookup failed, skipping")
			continue
		}
		if userID == uuid.Nil {
			s.parkDeadLetter(ctx, fc)
			continue
		}

		c := domain.Commission{
			UserID:         userID,
			OriginID:       fc.OriginID,
			OriginalAmount: fc.OriginalAmount,
			Amount:         int64(math.Round(float64(fc.OriginalAmount) * s.userPct)),
			Currency:       fc.Currency,
			Status:         fc.Status,
			Program:        fc.Program,
			Source:         domain.SourceAffiliate,
			Reason:         fc.Reason,
			CreatedAt:      fc.CreatedAt,
			UpdatedAt:      fc.UpdatedAt,
		}
		perUser[userID] = append(perUser[userID], c)

		// Referral cascade: the referrer earns a slice of the same sale,
		// keyed by the same origin id so reruns stay idempotent.
		ref, err := s.userRepo.GetReferral(ctx, userID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", userID.String()).Msg("referral lookup failed")
			continue
		}
		if ref != nil {
			derived := domain.NewReferralCommission(c, ref.ReferrerID, s.referralPct)
			perUser[ref.ReferrerID] = append(perUser[ref.ReferrerID], derived)
		}
	}

	return perUser
}

// attribute resolves the owner of a feed commission: first by the user code
// carried in the click tag, then by unique click source ip. Returns uuid.Nil
// when no owner can be resolved.
func (s *ReconcilerServiceImpl) attribute(ctx context.Context, fc ports.FeedCommission) (uuid.UUID, error) {
	if fc.UserCode != "" {
		user, err := s.userRepo.GetByFeedCode(ctx, fc.UserCode)
		if err != nil {
			return uuid.Nil, fmt.Errorf("lookup by feed code: %w", err)
		}
		if user != nil {
			return user.ID, nil
		}
	}
	if fc.SourceIP != "" {
		click, err := s.clickRepo.FindUnique(ctx, fc.SourceIP, fc.ProgramID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("lookup by click ip: %w", err)
		}
		if click != nil {
			return click.UserID, nil
		}
	}
	return uuid.Nil, nil
}

func (s *ReconcilerServiceImpl) parkDeadLetter(ctx context.Context, fc ports.FeedCommission) {
	payload := fc.Raw
	if len(payload) == 0 {
		payload, _ = json.Marshal(fc)
	}
	dl := &domain.DeadLetterCommission{
		OriginID:  fc.OriginID,
		Payload:   payload,
		Reason:    apperror.ErrUnattributableCommission(fc.OriginID).Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.dlqRepo.Park(ctx, dl); err != nil {
		s.log.Error().Err(err).Str("origin_id", fc.OriginID).Msg("failed to park dead-letter commission")
		return
	}
	s.log.Warn().Str("origin_id", fc.OriginID).Msg("commission parked as unattributable")
}

// reconcileUser diffs incoming commissions against the persisted ones,
// persists the changed subset and applies the wallet cascade. Returns the
// CreatedAt of the oldest commission that is still open for this user.
func (s *ReconcilerServiceImpl) reconcileUser(ctx context.Context, userID uuid.UUID, incoming []domain.Commission) (time.Time, error) {
	previous, err := s.commRepo.ListByUser(ctx, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("list commissions: %w", err)
	}
	prevByOrigin := make(map[string]domain.Commission, len(previous))
	for _, p := range previous {
		prevByOrigin[p.OriginID] = p
	}

	var changed []domain.Commission
	for _, c := range incoming {
		prev, exists := prevByOrigin[c.OriginID]
		if exists && prev.UpdatedAt.Equal(c.UpdatedAt) && prev.Status == c.Status {
			continue
		}
		changed = append(changed, c)
	}

	// Merge for the projection and the watermark regardless of changes.
	merged := make(map[string]domain.Commission, len(previous)+len(changed))
	for _, p := range previous {
		merged[p.OriginID] = p
	}
	for _, c := range changed {
		merged[c.OriginID] = c
	}
	oldestOpen := time.Time{}
	current := make([]domain.Commission, 0, len(merged))
	for _, c := range merged {
		current = append(current, c)
		if c.IsOpen() && (oldestOpen.IsZero() || c.CreatedAt.Before(oldestOpen)) {
			oldestOpen = c.CreatedAt
		}
	}

	if len(changed) == 0 {
		return oldestOpen, nil
	}

	if err := s.commRepo.UpsertBatch(ctx, userID, changed); err != nil {
		return time.Time{}, fmt.Errorf("upsert commissions: %w", err)
	}

	if err := s.ledger.ApplyCommissionChange(ctx, userID, current, previous); err != nil {
		return time.Time{}, fmt.Errorf("apply commission change: %w", err)
	}

	s.publishChangeEvents(ctx, userID, changed, prevByOrigin)

	s.log.Info().
		Str("user_id", userID.String()).
		Int("changed", len(changed)).
		Int("total", len(current)).
		Msg("user commissions reconciled")

	return oldestOpen, nil
}

// publishChangeEvents emits achievement events for commission transitions.
// Publication is best-effort; the queue's consumer dedups by origin id.
func (s *ReconcilerServiceImpl) publishChangeEvents(ctx context.Context, userID uuid.UUID, changed []domain.Commission, prevByOrigin map[string]domain.Commission) {
	for _, c := range changed {
		prev, existed := prevByOrigin[c.OriginID]

		var evType domain.EventType
		switch {
		case c.Status == domain.CommissionPaid && (!existed || prev.Status != domain.CommissionPaid):
			evType = domain.EventCommissionPaid
		case c.IsOpen() && !existed:
			evType = domain.EventCommissionPending
		default:
			continue
		}

		ev := domain.Event{
			Type:     evType,
			UserID:   userID,
			DedupKey: c.OriginID,
		}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.Warn().Err(err).
				Str("origin_id", c.OriginID).
				Str("event", string(evType)).
				Msg("failed to publish commission event")
		}
	}
}
