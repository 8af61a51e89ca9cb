package ledger

import (
	"context"
	"fmt"

	"github.com/Aaditya1273/TrustGraphV7/internal/events"
	"github.com/Aaditya1273/TrustGraphV7/internal/stake"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
)

// RegisterStake sets the issuer's stake and persists it. Negative or
// non-finite amounts fail with stake.ErrInvalidAmount.
func (s *Service) RegisterStake(ctx context.Context, issuer string, amount float64) (stake.Entry, error) {
	if issuer == "" {
		return stake.Entry{}, fmt.Errorf("%w: issuer is required", stake.ErrInvalidAmount)
	}

	s.mu.Lock()
	prev := s.registry.StakeOf(issuer)
	entry, err := s.registry.Register(issuer, amount)
	if err != nil {
		s.mu.Unlock()
		return stake.Entry{}, err
	}
	if err := s.store.SaveStake(ctx, issuer, amount); err != nil {
		s.restore(issuer, prev)
		s.mu.Unlock()
		return stake.Entry{}, fmt.Errorf("save stake: %w", err)
	}
	total := s.registry.Stats().TotalStaked
	s.mu.Unlock()

	s.afterStakeChange(ctx, &store.StakeEvent{
		Issuer:    issuer,
		Kind:      store.StakeRegistered,
		Amount:    amount,
		Remaining: amount,
	}, total, events.SubjectStakeRegistered(issuer), events.StakeChangedEvent{
		Issuer: issuer,
		Kind:   string(store.StakeRegistered),
		Stake:  entry.Stake,
		Weight: entry.Weight,
	})
	s.logger.Info("stake registered", "issuer", issuer, "amount", amount, "weight", entry.Weight)
	return entry, nil
}

// Slash removes fraction of the issuer's stake. Unstaked issuers are left
// untouched and nothing is recorded.
func (s *Service) Slash(ctx context.Context, issuer string, fraction float64, reason string) (stake.SlashResult, error) {
	s.mu.Lock()
	prev := s.registry.StakeOf(issuer)
	res, err := s.registry.Slash(issuer, fraction)
	if err != nil {
		s.mu.Unlock()
		return stake.SlashResult{}, err
	}
	if prev == 0 {
		s.mu.Unlock()
		return res, nil
	}
	if err := s.store.SaveStake(ctx, issuer, res.Remaining); err != nil {
		s.restore(issuer, prev)
		s.mu.Unlock()
		return stake.SlashResult{}, fmt.Errorf("save stake: %w", err)
	}
	total := s.registry.Stats().TotalStaked
	s.mu.Unlock()

	s.afterStakeChange(ctx, &store.StakeEvent{
		Issuer:    issuer,
		Kind:      store.StakeSlashed,
		Amount:    res.Slashed,
		Remaining: res.Remaining,
		Reason:    reason,
	}, total, events.SubjectStakeSlashed(issuer), events.StakeChangedEvent{
		Issuer:  issuer,
		Kind:    string(store.StakeSlashed),
		Stake:   res.Remaining,
		Weight:  stake.WeightFor(res.Remaining),
		Slashed: res.Slashed,
	})
	s.logger.Warn("stake slashed", "issuer", issuer, "slashed", res.Slashed, "remaining", res.Remaining, "reason", reason)
	return res, nil
}

// Dispute resolves a dispute against issuer. A fraudulent outcome slashes at
// the configured slashing rate; otherwise the stake is unchanged.
func (s *Service) Dispute(ctx context.Context, issuer string, fraudulent bool, reason string) (stake.SlashResult, error) {
	if !fraudulent {
		return stake.SlashResult{Issuer: issuer, Remaining: s.StakeOf(issuer)}, nil
	}
	s.mu.RLock()
	rate := s.registry.SlashingRate()
	s.mu.RUnlock()
	return s.Slash(ctx, issuer, rate, reason)
}

// StakeOf returns the issuer's stake, 0 if unregistered.
func (s *Service) StakeOf(issuer string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.StakeOf(issuer)
}

// Weight returns the issuer's stake multiplier.
func (s *Service) Weight(issuer string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Weight(issuer)
}

// CanPublishHighTrust reports whether issuer may publish an atom scoring
// score.
func (s *Service) CanPublishHighTrust(issuer string, score float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.CanPublishHighTrust(issuer, score)
}

// RegistryStats summarises all stakes.
func (s *Service) RegistryStats() stake.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Stats()
}

// Stakes lists every registered issuer.
func (s *Service) Stakes() []stake.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Entries()
}

// StakeHistory returns the most recent stake events for issuer.
func (s *Service) StakeHistory(ctx context.Context, issuer string, limit int) ([]*store.StakeEvent, error) {
	return s.store.GetStakeEvents(ctx, issuer, limit)
}

// restore puts back a previous stake after a failed write. Caller holds mu.
func (s *Service) restore(issuer string, prev float64) {
	// prev came from the registry, so it is always a valid amount
	_, _ = s.registry.Register(issuer, prev)
}

func (s *Service) afterStakeChange(ctx context.Context, evt *store.StakeEvent, total float64, subject string, msg events.StakeChangedEvent) {
	evt.CreatedAt = s.now().UTC()
	if err := s.store.CreateStakeEvent(ctx, evt); err != nil {
		s.logger.Error("failed to record stake event", "issuer", evt.Issuer, "kind", evt.Kind, "error", err)
	}
	s.metrics.IncStakeMutation(string(evt.Kind), total)
	s.invalidate(ctx)
	msg.Timestamp = evt.CreatedAt
	s.emit(subject, msg)
}
