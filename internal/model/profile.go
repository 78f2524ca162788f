package model

import (
	"sort"
	"time"
)

// HourStat is the activity observed in one hour of the day, across all dates.
type HourStat struct {
	Bytes int64 `json:"bytes"`
	Count int   `json:"count"`
}

// DNSStats summarizes traffic to the DNS port.
type DNSStats struct {
	Queries int   `json:"dns_queries"`
	Bytes   int64 `json:"dns_bytes"`
}

// FeatureBundle is the set of normalized summaries computed for one user.
type FeatureBundle struct {
	CategoryPct   map[string]float64 `json:"category_pct"`
	ActiveHours   map[int]HourStat   `json:"active_hours"`
	ProtocolRatio map[string]float64 `json:"protocol_ratio"`
	PortStats     map[int]int        `json:"port_stats"`
	DNSStats      DNSStats           `json:"dns_stats"`
	DailyBytes    map[string]int64   `json:"daily_bytes"`
	TotalBytes    int64              `json:"total_bytes"`
	BlacklistHits int                `json:"blacklist_hits,omitempty"`
}

// NewFeatureBundle returns a bundle with every feature group empty.
func NewFeatureBundle() FeatureBundle {
	return FeatureBundle{
		CategoryPct:   make(map[string]float64),
		ActiveHours:   make(map[int]HourStat),
		ProtocolRatio: make(map[string]float64),
		PortStats:     make(map[int]int),
		DailyBytes:    make(map[string]int64),
	}
}

// UserProfile is a user's feature bundle plus the tags derived from it.
type UserProfile struct {
	Tags []string `json:"tags"`
	FeatureBundle
}

// HasTag reports whether the profile carries tag.
func (p UserProfile) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ProfileMap maps user identity to profile. It is never mutated after it is
// returned by the engine.
type ProfileMap map[string]UserProfile

// Users returns the user identities in sorted order.
func (m ProfileMap) Users() []string {
	users := make([]string, 0, len(m))
	for u := range m {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// TagIndex groups users by tag. User lists are sorted.
func (m ProfileMap) TagIndex() map[string][]string {
	index := make(map[string][]string)
	for _, user := range m.Users() {
		for _, tag := range m[user].Tags {
			index[tag] = append(index[tag], user)
		}
	}
	return index
}

// Snapshot is the complete output of one analysis run.
type Snapshot struct {
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Source      string     `json:"source"`
	RecordCount int        `json:"record_count"`
	Overview    Overview   `json:"overview"`
	Profiles    ProfileMap `json:"profiles"`
}
