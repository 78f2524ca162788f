// Package feature computes the per-user feature bundle from flow records.
package feature

import (
	"Go2NetProfile/internal/model"
	"math"
	"net"
	"strings"
)

// DefaultWatchedPorts are the destination ports considered sensitive.
var DefaultWatchedPorts = []int{22, 3389, 3306, 8000, 8080, 5000}

// DefaultDNSPort is the destination port counted as a DNS query.
const DefaultDNSPort = 53

// Extractor computes feature bundles. It holds no per-run state and is safe
// for concurrent use.
type Extractor struct {
	synonyms     Synonyms
	watchedPorts []int
	dnsPort      int
	blacklist    *Blacklist
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithSynonyms replaces the category synonym table.
func WithSynonyms(s Synonyms) Option {
	return func(e *Extractor) {
		if len(s) > 0 {
			e.synonyms = s
		}
	}
}

// WithWatchedPorts replaces the watched port list.
func WithWatchedPorts(ports []int) Option {
	return func(e *Extractor) {
		if len(ports) > 0 {
			e.watchedPorts = append([]int(nil), ports...)
		}
	}
}

// WithDNSPort changes the port counted as DNS.
func WithDNSPort(port int) Option {
	return func(e *Extractor) {
		if port > 0 {
			e.dnsPort = port
		}
	}
}

// WithBlacklist counts records sent to blacklisted destinations.
func WithBlacklist(b *Blacklist) Option {
	return func(e *Extractor) { e.blacklist = b }
}

// NewExtractor creates an Extractor with the built-in tables unless
// overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		synonyms:     DefaultSynonyms(),
		watchedPorts: DefaultWatchedPorts,
		dnsPort:      DefaultDNSPort,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WatchedPorts returns the watched port list.
func (e *Extractor) WatchedPorts() []int {
	return append([]int(nil), e.watchedPorts...)
}

// ExtractUser computes the bundle of one user of the table.
func (e *Extractor) ExtractUser(table *model.RecordTable, user string) model.FeatureBundle {
	return e.Extract(table.UserRecords(user))
}

// Extract computes the feature bundle of a record subset. An empty subset
// yields a bundle with every group empty.
func (e *Extractor) Extract(records []model.FlowRecord) model.FeatureBundle {
	b := model.NewFeatureBundle()

	categoryBytes := make(map[string]int64)
	protocolBytes := make(map[string]int64)
	watched := make(map[int]bool, len(e.watchedPorts))
	for _, p := range e.watchedPorts {
		watched[p] = true
	}

	for _, r := range records {
		b.TotalBytes += r.Bytes
		categoryBytes[r.AppCategory] += r.Bytes
		protocolBytes[r.Protocol] += r.Bytes

		hour := b.ActiveHours[r.Hour]
		hour.Bytes += r.Bytes
		hour.Count++
		b.ActiveHours[r.Hour] = hour

		b.DailyBytes[r.Date] += r.Bytes

		if watched[r.DstPort] {
			b.PortStats[r.DstPort]++
		}
		if r.DstPort == e.dnsPort {
			b.DNSStats.Queries++
			b.DNSStats.Bytes += r.Bytes
		}
		if e.blacklist.Contains(r.DstIP) {
			b.BlacklistHits++
		}
	}

	if b.TotalBytes > 0 {
		b.CategoryPct = e.categoryPct(categoryBytes, b.TotalBytes)
		for proto, bytes := range protocolBytes {
			b.ProtocolRatio[proto] = percent(bytes, b.TotalBytes)
		}
	}
	return b
}

// categoryPct folds raw labels into synonym groups. A label counts once per
// group it matches but may count toward several groups; "others" holds the
// bytes of labels no group matched.
func (e *Extractor) categoryPct(categoryBytes map[string]int64, total int64) map[string]float64 {
	groupBytes := make(map[string]int64, len(e.synonyms))
	var accounted int64
	for label, bytes := range categoryBytes {
		matches := e.synonyms.Matches(label)
		for _, name := range matches {
			groupBytes[name] += bytes
		}
		if len(matches) > 0 {
			accounted += bytes
		}
	}

	pct := make(map[string]float64, len(groupBytes)+1)
	for name, bytes := range groupBytes {
		if p := percent(bytes, total); p > 0 {
			pct[name] = p
		}
	}
	if others := percent(total-accounted, total); others > 0 {
		pct[OthersCategory] = others
	}
	return pct
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Blacklist matches destination addresses against IPs and CIDR ranges.
type Blacklist struct {
	ips  map[string]bool
	nets []*net.IPNet
}

// NewBlacklist parses entries that are either plain IPs or CIDR blocks.
func NewBlacklist(entries []string) (*Blacklist, error) {
	b := &Blacklist{ips: make(map[string]bool)}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, err
			}
			b.nets = append(b.nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, &net.ParseError{Type: "IP address", Text: entry}
		}
		b.ips[ip.String()] = true
	}
	return b, nil
}

// Contains reports whether addr is blacklisted. A nil Blacklist contains
// nothing.
func (b *Blacklist) Contains(addr string) bool {
	if b == nil || addr == "" {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if b.ips[ip.String()] {
		return true
	}
	for _, n := range b.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ips) + len(b.nets)
}
