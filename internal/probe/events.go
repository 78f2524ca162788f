package probe

import (
	"Go2NetProfile/internal/model"
	"fmt"
	"sort"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Subject suffixes appended to the configured base subject.
const (
	RunSuffix      = ".run"
	SecuritySuffix = ".security"
)

// RunEvent announces a finished analysis run.
type RunEvent struct {
	RunID       string
	GeneratedAt time.Time
	Source      string
	Records     int
	Users       int
	TotalBytes  int64
	TagCounts   map[string]int
}

// SecurityEvent reports one user carrying security tags after a run.
type SecurityEvent struct {
	RunID         string
	GeneratedAt   time.Time
	User          string
	Tags          []string
	DNSQueries    int
	DistinctPorts int
	BlacklistHits int
}

// BuildEvents derives the events of a snapshot. Only users carrying at least
// one of securityTags produce a SecurityEvent; events are ordered by user.
func BuildEvents(s *model.Snapshot, securityTags []string) (RunEvent, []SecurityEvent) {
	run := RunEvent{
		RunID:       s.RunID,
		GeneratedAt: s.GeneratedAt,
		Source:      s.Source,
		Records:     s.RecordCount,
		Users:       len(s.Profiles),
		TotalBytes:  s.Overview.TotalTraffic.TotalBytes,
		TagCounts:   make(map[string]int),
	}
	for tag, users := range s.Profiles.TagIndex() {
		run.TagCounts[tag] = len(users)
	}

	security := make(map[string]bool, len(securityTags))
	for _, tag := range securityTags {
		security[tag] = true
	}
	var events []SecurityEvent
	for _, user := range s.Profiles.Users() {
		p := s.Profiles[user]
		var tags []string
		for _, tag := range p.Tags {
			if security[tag] {
				tags = append(tags, tag)
			}
		}
		if len(tags) == 0 {
			continue
		}
		events = append(events, SecurityEvent{
			RunID:         s.RunID,
			GeneratedAt:   s.GeneratedAt,
			User:          user,
			Tags:          tags,
			DNSQueries:    p.DNSStats.Queries,
			DistinctPorts: len(p.PortStats),
			BlacklistHits: p.BlacklistHits,
		})
	}
	return run, events
}

// EncodeRunEvent serializes a RunEvent as a protobuf Struct.
func EncodeRunEvent(e RunEvent) ([]byte, error) {
	counts := make(map[string]any, len(e.TagCounts))
	for tag, n := range e.TagCounts {
		counts[tag] = n
	}
	return marshal(map[string]any{
		"run_id":       e.RunID,
		"generated_at": e.GeneratedAt.UTC().Format(time.RFC3339Nano),
		"source":       e.Source,
		"records":      e.Records,
		"users":        e.Users,
		"total_bytes":  e.TotalBytes,
		"tag_counts":   counts,
	})
}

// DecodeRunEvent parses the output of EncodeRunEvent.
func DecodeRunEvent(data []byte) (RunEvent, error) {
	fields, err := unmarshal(data)
	if err != nil {
		return RunEvent{}, err
	}
	e := RunEvent{
		RunID:      fields["run_id"].GetStringValue(),
		Source:     fields["source"].GetStringValue(),
		Records:    int(fields["records"].GetNumberValue()),
		Users:      int(fields["users"].GetNumberValue()),
		TotalBytes: int64(fields["total_bytes"].GetNumberValue()),
		TagCounts:  make(map[string]int),
	}
	if e.GeneratedAt, err = parseTime(fields["generated_at"]); err != nil {
		return RunEvent{}, err
	}
	for tag, v := range fields["tag_counts"].GetStructValue().GetFields() {
		e.TagCounts[tag] = int(v.GetNumberValue())
	}
	return e, nil
}

// EncodeSecurityEvent serializes a SecurityEvent as a protobuf Struct.
func EncodeSecurityEvent(e SecurityEvent) ([]byte, error) {
	tags := make([]any, len(e.Tags))
	for i, tag := range e.Tags {
		tags[i] = tag
	}
	return marshal(map[string]any{
		"run_id":         e.RunID,
		"generated_at":   e.GeneratedAt.UTC().Format(time.RFC3339Nano),
		"user":           e.User,
		"tags":           tags,
		"dns_queries":    e.DNSQueries,
		"distinct_ports": e.DistinctPorts,
		"blacklist_hits": e.BlacklistHits,
	})
}

// DecodeSecurityEvent parses the output of EncodeSecurityEvent.
func DecodeSecurityEvent(data []byte) (SecurityEvent, error) {
	fields, err := unmarshal(data)
	if err != nil {
		return SecurityEvent{}, err
	}
	e := SecurityEvent{
		RunID:         fields["run_id"].GetStringValue(),
		User:          fields["user"].GetStringValue(),
		DNSQueries:    int(fields["dns_queries"].GetNumberValue()),
		DistinctPorts: int(fields["distinct_ports"].GetNumberValue()),
		BlacklistHits: int(fields["blacklist_hits"].GetNumberValue()),
	}
	if e.GeneratedAt, err = parseTime(fields["generated_at"]); err != nil {
		return SecurityEvent{}, err
	}
	for _, v := range fields["tags"].GetListValue().GetValues() {
		e.Tags = append(e.Tags, v.GetStringValue())
	}
	sort.Strings(e.Tags)
	return e, nil
}

func marshal(fields map[string]any) ([]byte, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build event: %w", err)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte) (map[string]*structpb.Value, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return msg.GetFields(), nil
}

func parseTime(v *structpb.Value) (time.Time, error) {
	raw := v.GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event time %q: %w", raw, err)
	}
	return t, nil
}
