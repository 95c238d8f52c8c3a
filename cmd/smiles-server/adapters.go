package main

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lbecken/smiles/internal/domain/directory"
	"github.com/lbecken/smiles/internal/domain/scheduling"
	"github.com/lbecken/smiles/internal/platform/auth"
)

// DirectoryAdapter adapts a directory.Repository to the
// scheduling.ResourceDirectory and auth.PrincipalResolver interfaces, so the
// engine and the policy never import the registry package.
type DirectoryAdapter struct {
	repo directory.Repository
}

func NewDirectoryAdapter(repo directory.Repository) *DirectoryAdapter {
	return &DirectoryAdapter{repo: repo}
}

// GetStaff implements scheduling.ResourceDirectory. Inactive staff cannot be
// booked and are reported as missing.
func (a *DirectoryAdapter) GetStaff(ctx context.Context, id uuid.UUID) (*scheduling.StaffRef, error) {
	s, err := a.repo.GetStaff(ctx, id)
	if err != nil {
		return nil, resourceErr(err)
	}
	if !s.Active {
		return nil, scheduling.ErrResourceNotFound
	}
	return &scheduling.StaffRef{ID: s.ID, FacilityID: s.FacilityID, Role: string(s.Role)}, nil
}

// GetRoom implements scheduling.ResourceDirectory.
func (a *DirectoryAdapter) GetRoom(ctx context.Context, id uuid.UUID) (*scheduling.RoomRef, error) {
	r, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, resourceErr(err)
	}
	if !r.Active {
		return nil, scheduling.ErrResourceNotFound
	}
	return &scheduling.RoomRef{ID: r.ID, FacilityID: r.FacilityID}, nil
}

// GetPatient implements scheduling.ResourceDirectory.
func (a *DirectoryAdapter) GetPatient(ctx context.Context, id uuid.UUID) (*scheduling.PatientRef, error) {
	p, err := a.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, resourceErr(err)
	}
	if !p.Active {
		return nil, scheduling.ErrResourceNotFound
	}
	return &scheduling.PatientRef{ID: p.ID, FacilityID: p.FacilityID}, nil
}

// FacilityForSubject implements auth.PrincipalResolver.
func (a *DirectoryAdapter) FacilityForSubject(ctx context.Context, subject string) (uuid.UUID, error) {
	id, err := a.repo.FacilityForSubject(ctx, subject)
	if errors.Is(err, directory.ErrNotFound) {
		return uuid.Nil, auth.ErrUnknownPrincipal
	}
	return id, err
}

func resourceErr(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return scheduling.ErrResourceNotFound
	}
	return err
}
