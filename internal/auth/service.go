package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Predefined service errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
)

// Service provides device authentication operations.
type Service struct {
	jwtService *JWTService
	deviceRepo DeviceRepository
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService *JWTService
	DeviceRepo DeviceRepository
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		jwtService: cfg.JWTService,
		deviceRepo: cfg.DeviceRepo,
	}
}

// RegisterDevice registers a new capture device and returns its access token.
func (s *Service) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*TokenResponse, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validation error: %s", errs[0].Message)
	}

	now := time.Now()
	device := &Device{
		ID:         "dev_" + uuid.New().String()[:22],
		Name:       req.Name,
		Platform:   Platform(req.Platform),
		AppVersion: req.AppVersion,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(device)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		Device:      device,
	}, nil
}

// ValidateAccessToken validates an access token and returns the device ID.
// The device's last-seen timestamp is refreshed best-effort.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenString string) (string, error) {
	claims, err := s.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}

	_ = s.deviceRepo.TouchLastSeen(ctx, claims.DeviceID, time.Now())
	return claims.DeviceID, nil
}

// GetDevice retrieves a registered device.
func (s *Service) GetDevice(ctx context.Context, id string) (*Device, error) {
	return s.deviceRepo.FindByID(ctx, id)
}
