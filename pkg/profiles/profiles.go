// Package profiles remembers Hosts this instance connected to.
package profiles

import (
	"context"
	"encoding/json"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/store"
)

const (
	// StoreKey is the KV key the list is persisted under.
	StoreKey = "recent_connections"

	// MaxProfiles caps the remembered list.
	MaxProfiles = 20
)

// Profile is a remembered Host address.
type Profile struct {
	IP            string    `json:"ip"`
	Port          int       `json:"port"`
	Name          string    `json:"name"`
	LastConnected time.Time `json:"lastConnected"`
	IsFavorite    bool      `json:"isFavorite"`
}

// Manager persists profiles in a KV store. Every mutation re-sorts
// (favorites first, then most recently connected) and truncates the list.
type Manager struct {
	kv  store.KV
	now func() time.Time
	mu  sync.Mutex
}

func NewManager(kv store.KV) *Manager {
	return &Manager{kv: kv, now: time.Now}
}

// List returns the stored profiles in display order.
func (m *Manager) List(ctx context.Context) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx)
}

// Save upserts the profile for ip:port and marks it as just connected. The
// favorite flag of an existing entry is kept.
func (m *Manager) Save(ctx context.Context, ip string, port int, name string) (Profile, error) {
	if ip == "" {
		return Profile{}, errors.NewValidationError("ip", "ip is required", ip)
	}
	if port <= 0 || port > 65535 {
		return Profile{}, errors.NewValidationError("port", "port must be between 1 and 65535", port)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.load(ctx)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{IP: ip, Port: port, Name: name, LastConnected: m.now()}
	if i := indexOf(list, ip, port); i >= 0 {
		p.IsFavorite = list[i].IsFavorite
		if name == "" {
			p.Name = list[i].Name
		}
		list[i] = p
	} else {
		list = append(list, p)
	}
	return p, m.store(ctx, list)
}

// ToggleFavorite flips the favorite flag of ip:port.
func (m *Manager) ToggleFavorite(ctx context.Context, ip string, port int) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.load(ctx)
	if err != nil {
		return Profile{}, err
	}
	i := indexOf(list, ip, port)
	if i < 0 {
		return Profile{}, errors.NewNotFoundError("connection profile", address(ip, port))
	}
	list[i].IsFavorite = !list[i].IsFavorite
	p := list[i]
	return p, m.store(ctx, list)
}

// Remove deletes ip:port. Removing an unknown profile is a no-op.
func (m *Manager) Remove(ctx context.Context, ip string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(list, ip, port)
	if i < 0 {
		return nil
	}
	list = append(list[:i], list[i+1:]...)
	return m.store(ctx, list)
}

func (m *Manager) load(ctx context.Context) ([]Profile, error) {
	b, err := m.kv.Get(ctx, StoreKey)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []Profile
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, errors.WrapCode(err, errors.CodeSerializationError, "decode connection profiles")
	}
	return list, nil
}

func (m *Manager) store(ctx context.Context, list []Profile) error {
	list = Normalize(list)
	b, err := json.Marshal(list)
	if err != nil {
		return errors.WrapCode(err, errors.CodeSerializationError, "encode connection profiles")
	}
	return m.kv.Set(ctx, StoreKey, b)
}

// Normalize sorts favorites first, then by LastConnected descending, and
// truncates to MaxProfiles.
func Normalize(list []Profile) []Profile {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].IsFavorite != list[j].IsFavorite {
			return list[i].IsFavorite
		}
		return list[i].LastConnected.After(list[j].LastConnected)
	})
	if len(list) > MaxProfiles {
		list = list[:MaxProfiles]
	}
	return list
}

func indexOf(list []Profile, ip string, port int) int {
	for i, p := range list {
		if p.IP == ip && p.Port == port {
			return i
		}
	}
	return -1
}

func address(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
