package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/poolworks/identity/internal/identity/domain"
	"github.com/poolworks/identity/internal/identity/store"
	"github.com/poolworks/identity/pkg/cryptox"
	"github.com/poolworks/identity/pkg/slogx"
)

var ErrDeviceNotFound = errors.New("trusted device not found")

// DeviceService keeps the trusted device registry. Identity is the random
// device ID alone; IP address and browser info are advisory metadata and a
// change in either never invalidates trust. The set of IDs per user is also
// persisted on the account record so a client can be told which of its stored
// IDs are still honored.
type DeviceService struct {
	store store.Store

	mu      sync.Mutex
	devices map[string]*domain.TrustedDevice
}

func NewDeviceService(st store.Store) *DeviceService {
	return &DeviceService{
		store:   st,
		devices: make(map[string]*domain.TrustedDevice),
	}
}

// Register records a new trusted device for the user and returns its ID,
// which the client stores and presents on later logins.
func (s *DeviceService) Register(ctx context.Context, userID, name, ip, browserInfo string) (domain.TrustedDevice, error) {
	log := slogx.FromContext(ctx)

	if _, err := s.store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TrustedDevice{}, ErrAccountNotFound
		}
		return domain.TrustedDevice{}, err
	}

	deviceID, err := cryptox.RandomID(cryptox.TokenSize128)
	if err != nil {
		return domain.TrustedDevice{}, err
	}

	now := time.Now()
	device := &domain.TrustedDevice{
		ID:          deviceID,
		UserID:      userID,
		Name:        name,
		IPAddress:   ip,
		BrowserInfo: browserInfo,
		LastSeen:    now,
		CreatedAt:   now,
	}

	s.mu.Lock()
	s.devices[deviceID] = device
	ids := s.idsForUserLocked(userID)
	s.mu.Unlock()

	if err := s.store.Users().UpdateDeviceIDs(ctx, userID, ids); err != nil {
		log.Error("failed to persist device ID list", slog.Any("error", err))
	}

	log.Info("trusted device registered",
		slog.String("user_id", userID),
		slog.String("device_id", deviceID),
	)
	return *device, nil
}

// IsTrusted reports whether the device ID belongs to the user. A match
// refreshes LastSeen and the stored IP, so a user on a new network stays
// trusted and the registry shows where they last connected from.
func (s *DeviceService) IsTrusted(ctx context.Context, userID, deviceID, ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok || device.UserID != userID {
		return false
	}

	device.LastSeen = time.Now()
	if ip != "" {
		device.IPAddress = ip
	}
	return true
}

// ListForUser returns the user's devices, most recently seen first.
func (s *DeviceService) ListForUser(ctx context.Context, userID string) []domain.TrustedDevice {
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []domain.TrustedDevice
	for _, d := range s.devices {
		if d.UserID == userID {
			devices = append(devices, *d)
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	return devices
}

// Remove revokes a device. The next login from it will need full 2FA again.
func (s *DeviceService) Remove(ctx context.Context, userID, deviceID string) error {
	log := slogx.FromContext(ctx)

	s.mu.Lock()
	device, ok := s.devices[deviceID]
	if !ok || device.UserID != userID {
		s.mu.Unlock()
		return ErrDeviceNotFound
	}
	delete(s.devices, deviceID)
	ids := s.idsForUserLocked(userID)
	s.mu.Unlock()

	if err := s.store.Users().UpdateDeviceIDs(ctx, userID, ids); err != nil {
		log.Error("failed to persist device ID list", slog.Any("error", err))
	}

	log.Info("trusted device removed",
		slog.String("user_id", userID),
		slog.String("device_id", deviceID),
	)
	return nil
}

// idsForUserLocked collects the user's current device IDs. Caller holds the
// lock.
func (s *DeviceService) idsForUserLocked(userID string) []string {
	var ids []string
	for id, d := range s.devices {
		if d.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
