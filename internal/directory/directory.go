// Package directory exposes the professional and service profiles the booking core reads.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
)

// Directory resolves professionals and services by id.
type Directory interface {
	GetProfessional(ctx context.Context, id uuid.UUID) (*domain.Professional, error)
	GetService(ctx context.Context, id uuid.UUID) (*domain.Service, error)
}

// Static is an in-memory directory, typically loaded from a JSON seed file.
type Static struct {
	mu            sync.RWMutex
	professionals map[uuid.UUID]domain.Professional
	services      map[uuid.UUID]domain.Service
}

// Seed is the on-disk layout of DIRECTORY_FILE.
type Seed struct {
	Professionals []domain.Professional `json:"professionals"`
	Services      []domain.Service      `json:"services"`
}

func NewStatic() *Static {
	return &Static{
		professionals: make(map[uuid.UUID]domain.Professional),
		services:      make(map[uuid.UUID]domain.Service),
	}
}

// LoadFile builds a Static directory from a JSON seed.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read %s: %w", path, err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("directory: decode %s: %w", path, err)
	}
	d := NewStatic()
	for _, p := range seed.Professionals {
		d.AddProfessional(p)
	}
	for _, s := range seed.Services {
		if err := d.AddService(s); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Static) AddProfessional(p domain.Professional) {
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.professionals[p.ID] = p
}

// AddService registers a service; its professional must already be known.
func (d *Static) AddService(s domain.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.professionals[s.ProfessionalID]; !ok {
		return fmt.Errorf("directory: service %s references unknown professional %s", s.ID, s.ProfessionalID)
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("directory: service %s has no duration", s.ID)
	}
	d.services[s.ID] = s
	return nil
}

func (d *Static) GetProfessional(_ context.Context, id uuid.UUID) (*domain.Professional, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.professionals[id]
	if !ok {
		return nil, apperr.NotFound("professional_not_found", "professional %s not found", id)
	}
	return &p, nil
}

func (d *Static) GetService(_ context.Context, id uuid.UUID) (*domain.Service, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.services[id]
	if !ok {
		return nil, apperr.NotFound("service_not_found", "service %s not found", id)
	}
	return &s, nil
}

// ServiceFor loads a service and verifies it is offered by the professional.
func ServiceFor(ctx context.Context, dir Directory, professionalID, serviceID uuid.UUID) (*domain.Professional, *domain.Service, error) {
	pro, err := dir.GetProfessional(ctx, professionalID)
	if err != nil {
		return nil, nil, err
	}
	if !pro.Active {
		return nil, nil, apperr.Validation("professional_inactive", "professional %s is not accepting bookings", professionalID)
	}
	svc, err := dir.GetService(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}
	if svc.ProfessionalID != professionalID {
		return nil, nil, apperr.Validation("service_mismatch", "service %s is not offered by professional %s", serviceID, professionalID)
	}
	if !svc.Active {
		return nil, nil, apperr.Validation("service_inactive", "service %s is not active", serviceID)
	}
	return pro, svc, nil
}

// Location resolves the professional's timezone, defaulting to UTC.
func Location(p *domain.Professional) *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
