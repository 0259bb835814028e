package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dbsahdlks/INgress/internal/logger"
)

var (
	ErrNotFound          = errors.New("portal: not found")
	ErrOwnerRequired     = errors.New("portal: owner required")
	ErrFactionRequired   = errors.New("portal: faction required")
	ErrInvalidLocation   = errors.New("portal: invalid location")
	ErrOwnershipMismatch = errors.New("portal: owner and faction must be set together")
)

// Registry：进程内门户集合
// 背景：启动时由种子数据创建，会话期间只通过 Capture 变更，不删除；用户位置只保留最新值。
// 约束：读写并发安全；所有读取返回深拷贝。
type Registry struct {
	mu      sync.RWMutex
	portals []Portal
	index   map[int]int
	user    *LatLng
}

// NewRegistry：校验并载入种子数据
func NewRegistry(seed []Portal) (*Registry, error) {
	r := &Registry{index: make(map[int]int, len(seed))}
	for _, p := range seed {
		if p.ID <= 0 {
			return nil, fmt.Errorf("portal %d: id must be positive", p.ID)
		}
		if _, dup := r.index[p.ID]; dup {
			return nil, fmt.Errorf("portal %d: duplicate id", p.ID)
		}
		if p.Level <= 0 {
			return nil, fmt.Errorf("portal %d: level must be positive", p.ID)
		}
		if (p.Owner == nil) != (p.Faction == nil) {
			return nil, fmt.Errorf("portal %d: %w", p.ID, ErrOwnershipMismatch)
		}
		if p.Faction != nil && !p.Faction.Valid() {
			return nil, fmt.Errorf("portal %d: unknown faction %q", p.ID, *p.Faction)
		}
		r.index[p.ID] = len(r.portals)
		r.portals = append(r.portals, p.clone())
	}
	return r, nil
}

// Seed：内置种子数据（北京城区四个中立门户）
func Seed() []Portal {
	return []Portal{
		{ID: 1, Name: "中央公园", Location: LatLng{Latitude: 39.9042, Longitude: 116.4074}, Level: 1},
		{ID: 2, Name: "科技大厦", Location: LatLng{Latitude: 39.9082, Longitude: 116.4074}, Level: 2},
		{ID: 3, Name: "历史博物馆", Location: LatLng{Latitude: 39.9002, Longitude: 116.4074}, Level: 1},
		{ID: 4, Name: "艺术中心", Location: LatLng{Latitude: 39.9042, Longitude: 116.4114}, Level: 3},
	}
}

// LoadSeedFile：从 JSON 文件读取种子数据（数组，字段与 Portal 一致）
func LoadSeedFile(path string) ([]Portal, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed %s: %w", path, err)
	}
	var out []Portal
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parsing seed %s: %w", path, err)
	}
	return out, nil
}

func (r *Registry) List() []Portal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Portal, len(r.portals))
	for i, p := range r.portals {
		out[i] = p.clone()
	}
	return out
}

func (r *Registry) Get(id int) (Portal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return Portal{}, ErrNotFound
	}
	return r.portals[i].clone(), nil
}

// 文档注释：占领门户
// 背景：唯一的所有权变更点；所有者与阵营在此同时写入，保证“有所有者即有阵营”。
// 约束：owner 为空返回 ErrOwnerRequired；阵营非法返回 ErrFactionRequired；已占领门户允许被重新占领。
func (r *Registry) Capture(id int, owner string, f Faction) (Portal, error) {
	if owner == "" {
		return Portal{}, ErrOwnerRequired
	}
	if !f.Valid() {
		return Portal{}, ErrFactionRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return Portal{}, ErrNotFound
	}
	o := owner
	fa := f
	r.portals[i].Owner = &o
	r.portals[i].Faction = &fa
	logger.L().Info("portal_captured", "id", id, "faction", string(f))
	return r.portals[i].clone(), nil
}

// SetUserLocation：记录最新定位；只在下一次生成文档时生效
func (r *Registry) SetUserLocation(loc LatLng) error {
	if !loc.Valid() {
		return ErrInvalidLocation
	}
	r.mu.Lock()
	r.user = &loc
	r.mu.Unlock()
	return nil
}

// ClearUserLocation：撤销定位（如权限被收回）
func (r *Registry) ClearUserLocation() {
	r.mu.Lock()
	r.user = nil
	r.mu.Unlock()
}

// Snapshot：按种子顺序返回当前门户与最新用户位置
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{Portals: make([]Portal, len(r.portals))}
	for i, p := range r.portals {
		s.Portals[i] = p.clone()
	}
	if r.user != nil {
		loc := *r.user
		s.UserLocation = &loc
	}
	return s
}
