package service

import (
	"sync"

	"bookingdesk/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService serves the bookable services loaded from the catalog file.
type CatalogService struct {
	logger   *zerolog.Logger
	services []models.Service
	byID     map[string]models.Service
	mu       sync.RWMutex
}

func NewCatalogService(services []models.Service, logger *zerolog.Logger) *CatalogService {
	s := &CatalogService{logger: logger}
	s.Replace(services)
	return s
}

// ActiveServices returns the active catalog entries in file order.
func (s *CatalogService) ActiveServices() []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]models.Service, 0, len(s.services))
	for _, svc := range s.services {
		if svc.IsActive {
			active = append(active, svc)
		}
	}
	return active
}

func (s *CatalogService) GetService(id string) (*models.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &svc, true
}

// Replace swaps the whole catalog.
func (s *CatalogService) Replace(services []models.Service) {
	byID := make(map[string]models.Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}

	s.mu.Lock()
	s.services = append([]models.Service(nil), services...)
	s.byID = byID
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info().Int("services", len(services)).Msg("service catalog loaded")
	}
}
