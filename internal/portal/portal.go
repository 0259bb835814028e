// 包 portal：门户（portal）领域数据，提供快照给文档生成器，并承载唯一的占领变更入口
package portal

import "math"

// Faction：两个互斥阵营之一；空值表示中立
type Faction string

const (
	FactionResistance  Faction = "RESISTANCE"
	FactionEnlightened Faction = "ENLIGHTENED"
)

func (f Faction) Valid() bool {
	return f == FactionResistance || f == FactionEnlightened
}

// LatLng：WGS84 经纬度（度）
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid：有限值且在合法范围内
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) || math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Portal：地图上的一个门户
// 约束：Owner 与 Faction 成对出现，只能由 Registry.Capture 同时写入
type Portal struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Location LatLng   `json:"location"`
	Level    int      `json:"level"`
	Owner    *string  `json:"owner"`
	Faction  *Faction `json:"faction"`
}

// Owned：存在非空所有者
func (p Portal) Owned() bool { return p.Owner != nil && *p.Owner != "" }

func (p Portal) clone() Portal {
	out := p
	if p.Owner != nil {
		o := *p.Owner
		out.Owner = &o
	}
	if p.Faction != nil {
		f := *p.Faction
		out.Faction = &f
	}
	return out
}

// Snapshot：一次文档生成的输入；值语义，不与注册表或渲染端共享指针
type Snapshot struct {
	Portals      []Portal `json:"portals"`
	UserLocation *LatLng  `json:"userLocation,omitempty"`
}

// Clone：深拷贝，重新生成文档前调用以避免别名
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Portals: make([]Portal, len(s.Portals))}
	for i, p := range s.Portals {
		out.Portals[i] = p.clone()
	}
	if s.UserLocation != nil {
		loc := *s.UserLocation
		out.UserLocation = &loc
	}
	return out
}
