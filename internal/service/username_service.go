package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"folio/internal/events"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/validation"

	"github.com/google/uuid"
)

const (
	sequentialSuffixAttempts = 50
	randomSuffixAttempts     = 10
)

// Availability is the answer to a username check.
type Availability struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// UsernameService allocates, checks and renames usernames.
type UsernameService struct {
	users  repository.UserRepository
	events *events.Dispatcher
}

func NewUsernameService(users repository.UserRepository, dispatcher *events.Dispatcher) *UsernameService {
	return &UsernameService{users: users, events: dispatcher}
}

// Check normalizes raw and reports whether callerID could take it. The
// caller's current username counts as available; callerID 0 is anonymous.
func (s *UsernameService) Check(ctx context.Context, raw string, callerID uint) (*Availability, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, models.NewValidationError("slug is required")
	}
	handle := validation.NormalizeHandle(raw)
	result := &Availability{Username: handle}

	if err := validation.ValidateHandle(handle); err != nil {
		result.Reason = "Username " + err.Error()
		return result, nil
	}

	taken, err := s.users.UsernameTaken(ctx, handle, callerID)
	if err != nil {
		return nil, err
	}
	if taken {
		result.Reason = "Username is already taken"
		return result, nil
	}
	result.Available = true
	return result, nil
}

// Rename moves userID to a new username, re-slugging pages addressed by the
// old one.
func (s *UsernameService) Rename(ctx context.Context, userID uint, raw string) (*models.User, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, models.NewValidationError("username is required")
	}
	handle := validation.NormalizeHandle(raw)
	if err := validation.ValidateHandle(handle); err != nil {
		return nil, models.NewValidationError("Username " + err.Error())
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Username == handle {
		return user, nil
	}

	taken, err := s.users.UsernameTaken(ctx, handle, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.NewConflictError("Username is already taken")
	}

	previous := user.Username
	moved, err := s.users.Rename(ctx, userID, previous, handle)
	if err != nil {
		return nil, err
	}
	user.Username = handle

	s.events.Dispatch(ctx, events.Event{
		Name:   events.UsernameChanged,
		UserID: userID,
		Properties: map[string]any{
			"from":        previous,
			"to":          handle,
			"pages_moved": moved,
		},
	})
	return user, nil
}

// Allocate derives a free username from candidate for a new account: the
// normalized candidate, then -2, -3, ... and finally random suffixes.
func (s *UsernameService) Allocate(ctx context.Context, candidate string) (string, error) {
	base := validation.NormalizeHandle(candidate)

	for n := 1; n <= sequentialSuffixAttempts; n++ {
		suffix := ""
		if n > 1 {
			suffix = fmt.Sprintf("-%d", n)
		}
		handle := validation.FitHandle(base, suffix)
		ok, err := s.free(ctx, handle)
		if err != nil {
			return "", err
		}
		if ok {
			return handle, nil
		}
	}

	for i := 0; i < randomSuffixAttempts; i++ {
		handle := validation.FitHandle(base, "-"+strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
		ok, err := s.free(ctx, handle)
		if err != nil {
			return "", err
		}
		if ok {
			return handle, nil
		}
	}

	middleware.Logger.ErrorContext(ctx, "username allocation exhausted", slog.String("base", base))
	return "", models.NewConflictError("Could not allocate a username")
}

func (s *UsernameService) free(ctx context.Context, handle string) (bool, error) {
	if validation.ValidateHandle(handle) != nil {
		return false, nil
	}
	taken, err := s.users.UsernameTaken(ctx, handle, 0)
	if err != nil {
		return false, err
	}
	return !taken, nil
}
