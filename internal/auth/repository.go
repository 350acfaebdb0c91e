package auth

import (
	"context"
	"sync"
	"time"
)

// DeviceRepository defines the interface for device data operations.
type DeviceRepository interface {
	// Create stores a new device.
	Create(ctx context.Context, device *Device) error

	// FindByID finds a device by its ID.
	FindByID(ctx context.Context, id string) (*Device, error)

	// TouchLastSeen updates a device's last-seen timestamp.
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// InMemoryDeviceRepository is an in-memory implementation of DeviceRepository
// for development and tests.
type InMemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewInMemoryDeviceRepository creates a new in-memory device repository.
func NewInMemoryDeviceRepository() *InMemoryDeviceRepository {
	return &InMemoryDeviceRepository{
		devices: make(map[string]*Device),
	}
}

// Create stores a new device.
func (r *InMemoryDeviceRepository) Create(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deviceCopy := *device
	r.devices[device.ID] = &deviceCopy
	return nil
}

// FindByID finds a device by its ID.
func (r *InMemoryDeviceRepository) FindByID(_ context.Context, id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	deviceCopy := *device
	return &deviceCopy, nil
}

// TouchLastSeen updates a device's last-seen timestamp.
func (r *InMemoryDeviceRepository) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	device.LastSeenAt = at
	return nil
}

// Ensure implementations satisfy the interface.
var _ DeviceRepository = (*InMemoryDeviceRepository)(nil)
