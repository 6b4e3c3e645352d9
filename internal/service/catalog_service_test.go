package service

import (
	"testing"

	"bookingdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_ActiveServices(t *testing.T) {
	logger := zerolog.Nop()
	s := NewCatalogService([]models.Service{
		{ID: "svc1", Name: "Cut", IsActive: true},
		{ID: "svc2", Name: "Color", IsActive: false},
		{ID: "svc3", Name: "Shave", IsActive: true},
	}, &logger)

	active := s.ActiveServices()
	require.Len(t, active, 2)
	assert.Equal(t, "svc1", active[0].ID)
	assert.Equal(t, "svc3", active[1].ID)
}

func TestCatalogService_GetService(t *testing.T) {
	logger := zerolog.Nop()
	s := NewCatalogService([]models.Service{{ID: "svc1", Name: "Cut", IsActive: true}}, &logger)

	svc, ok := s.GetService("svc1")
	require.True(t, ok)
	assert.Equal(t, "Cut", svc.Name)

	_, ok = s.GetService("missing")
	assert.False(t, ok)

	s.Replace([]models.Service{{ID: "svc9", Name: "New", IsActive: true}})
	_, ok = s.GetService("svc1")
	assert.False(t, ok)
	assert.Len(t, s.ActiveServices(), 1)
}
