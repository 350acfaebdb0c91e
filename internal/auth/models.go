// Package auth provides device authentication for Retrace.
package auth

import "time"

// Platform identifies the kind of device running the capture client.
type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
	PlatformHeadset Platform = "HEADSET"
)

// ValidPlatform reports whether p is a recognized platform.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformHeadset:
		return true
	}
	return false
}

// Device represents a registered capture device.
type Device struct {
	ID         string    `json:"deviceId"`
	Name       string    `json:"name"`
	Platform   Platform  `json:"platform"`
	AppVersion *string   `json:"appVersion,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// RegisterDeviceRequest represents the request body for device registration.
type RegisterDeviceRequest struct {
	Name       string  `json:"name"`
	Platform   string  `json:"platform"`
	AppVersion *string `json:"appVersion,omitempty"`
}

// Validate validates the device registration request.
func (r *RegisterDeviceRequest) Validate() []FieldError {
	var errors []FieldError

	if r.Name == "" {
		errors = append(errors, FieldError{
			Field:   "name",
			Message: "device name is required",
			Code:    "REQUIRED",
		})
	}
	if !ValidPlatform(Platform(r.Platform)) {
		errors = append(errors, FieldError{
			Field:   "platform",
			Message: "platform must be one of IOS, ANDROID, HEADSET",
			Code:    "INVALID",
		})
	}

	return errors
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// TokenResponse represents the response after successful registration.
type TokenResponse struct {
	// AccessToken is the JWT access token for API authentication.
	AccessToken string `json:"accessToken"`

	// TokenType is always "Bearer".
	TokenType string `json:"tokenType"`

	// ExpiresIn is the number of seconds until the access token expires.
	ExpiresIn int64 `json:"expiresIn"`

	// Device contains the registered device's information.
	Device *Device `json:"device"`
}
