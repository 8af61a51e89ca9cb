package ledger

import (
	"context"
	"encoding/json"

	"github.com/Aaditya1273/TrustGraphV7/internal/events"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

// SetupSubscriptions registers NATS handlers for atoms submitted by
// publishing collaborators and for stake updates from the staking feed.
func (s *Service) SetupSubscriptions() {
	if s.events == nil {
		return
	}

	if err := s.events.Subscribe(events.SubjectAtomSubmit, func(_ string, data []byte) {
		a, err := trust.Decode(data)
		if err != nil {
			s.logger.Warn("invalid submitted atom", "error", err)
			s.metrics.IncPublished(resultInvalid)
			s.emit(events.SubjectAtomRejected("unknown"), events.AtomRejectedEvent{Reason: err.Error()})
			return
		}
		if err := s.Publish(context.Background(), a); err != nil {
			s.logger.Warn("submitted atom rejected", "atom_id", a.ID(), "error", err)
		}
	}); err != nil {
		s.logger.Error("failed to subscribe", "subject", events.SubjectAtomSubmit, "error", err)
	}

	if err := s.events.Subscribe(events.SubjectStakeFeed, func(_ string, data []byte) {
		var evt events.StakeFeedEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Warn("invalid stake feed event", "error", err)
			return
		}
		if _, err := s.RegisterStake(context.Background(), evt.Issuer, evt.Amount); err != nil {
			s.logger.Warn("stake feed update rejected", "issuer", evt.Issuer, "error", err)
		}
	}); err != nil {
		s.logger.Error("failed to subscribe", "subject", events.SubjectStakeFeed, "error", err)
	}
}
