package service

import (
	"context"
	"strings"

	"folio/internal/events"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/validation"
)

const maxReferralCodeLength = 64

// WaitlistInput is the body of POST /api/waitlist.
type WaitlistInput struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	ReferralCode string `json:"referral_code"`
}

type WaitlistService struct {
	entries repository.WaitlistRepository
	events  *events.Dispatcher
}

func NewWaitlistService(entries repository.WaitlistRepository, dispatcher *events.Dispatcher) *WaitlistService {
	return &WaitlistService{entries: entries, events: dispatcher}
}

// Join records the address. Joining twice is not an error; created reports
// whether this call added it.
func (s *WaitlistService) Join(ctx context.Context, in WaitlistInput) (bool, error) {
	in.Email = validation.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return false, err
	}
	entry := &models.WaitlistEntry{
		Email:        in.Email,
		ReferralCode: truncate(strings.TrimSpace(in.ReferralCode), maxReferralCodeLength),
	}
	created, err := s.entries.Add(ctx, entry)
	if err != nil {
		return false, err
	}
	if created {
		s.events.Dispatch(ctx, events.Event{
			Name:       events.WaitlistJoined,
			Properties: map[string]any{"referral": entry.ReferralCode != ""},
		})
	}
	return created, nil
}

func (s *WaitlistService) List(ctx context.Context) ([]models.WaitlistEntry, error) {
	return s.entries.List(ctx)
}
