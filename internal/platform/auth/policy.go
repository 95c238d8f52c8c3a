package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrForbidden is returned when an actor may not act on a facility.
	ErrForbidden = errors.New("access denied")
	// ErrUnknownPrincipal is returned by a PrincipalResolver when no staff or
	// patient record is linked to the subject.
	ErrUnknownPrincipal = errors.New("unknown principal")
)

// PrincipalResolver finds the home facility of an authenticated subject.
type PrincipalResolver interface {
	FacilityForSubject(ctx context.Context, subject string) (uuid.UUID, error)
}

// FacilityPolicy grants admins every facility and everyone else only the
// facility their staff or patient record belongs to.
type FacilityPolicy struct {
	resolver PrincipalResolver
}

func NewFacilityPolicy(resolver PrincipalResolver) *FacilityPolicy {
	return &FacilityPolicy{resolver: resolver}
}

func (p *FacilityPolicy) CheckFacilityAccess(ctx context.Context, actor Actor, facilityID uuid.UUID) error {
	if !actor.Authenticated() {
		return fmt.Errorf("%w: user not authenticated", ErrForbidden)
	}
	if actor.IsAdmin() {
		return nil
	}
	home, err := p.resolver.FacilityForSubject(ctx, actor.Subject)
	if errors.Is(err, ErrUnknownPrincipal) {
		return fmt.Errorf("%w: user does not have access to facility: %s", ErrForbidden, facilityID)
	}
	if err != nil {
		return fmt.Errorf("resolve facility for %s: %w", actor.Subject, err)
	}
	if home != facilityID {
		return fmt.Errorf("%w: user does not have access to facility: %s", ErrForbidden, facilityID)
	}
	return nil
}

// AllowAll is a policy that only requires an authenticated actor.
type AllowAll struct{}

func (AllowAll) CheckFacilityAccess(_ context.Context, actor Actor, _ uuid.UUID) error {
	if !actor.Authenticated() {
		return fmt.Errorf("%w: user not authenticated", ErrForbidden)
	}
	return nil
}
