// Package codec converts Profile Maps and Snapshots to and from JSON.
package codec

import (
	"Go2NetProfile/internal/model"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const indent = "  "

// Serialize encodes a Profile Map as indented JSON keyed by user. Map keys
// are emitted in sorted order so equal maps produce equal bytes.
func Serialize(profiles model.ProfileMap) ([]byte, error) {
	if profiles == nil {
		profiles = model.ProfileMap{}
	}
	data, err := json.MarshalIndent(profiles, "", indent)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize profiles: %w", err)
	}
	return data, nil
}

// Deserialize decodes the output of Serialize.
func Deserialize(data []byte) (model.ProfileMap, error) {
	var profiles model.ProfileMap
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to deserialize profiles: %w", err)
	}
	if profiles == nil {
		profiles = model.ProfileMap{}
	}
	for user, p := range profiles {
		profiles[user] = normalize(p)
	}
	return profiles, nil
}

// WriteProfiles streams the serialized profiles to w.
func WriteProfiles(w io.Writer, profiles model.ProfileMap) error {
	data, err := Serialize(profiles)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// EncodeSnapshot encodes a complete run.
func EncodeSnapshot(s *model.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", indent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot decodes the output of EncodeSnapshot.
func DecodeSnapshot(data []byte) (*model.Snapshot, error) {
	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Profiles == nil {
		s.Profiles = model.ProfileMap{}
	}
	for user, p := range s.Profiles {
		s.Profiles[user] = normalize(p)
	}
	return &s, nil
}

// normalize restores empty groups that JSON null or omitted keys leave nil.
func normalize(p model.UserProfile) model.UserProfile {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.CategoryPct == nil {
		p.CategoryPct = map[string]float64{}
	}
	if p.ActiveHours == nil {
		p.ActiveHours = map[int]model.HourStat{}
	}
	if p.ProtocolRatio == nil {
		p.ProtocolRatio = map[string]float64{}
	}
	if p.PortStats == nil {
		p.PortStats = map[int]int{}
	}
	if p.DailyBytes == nil {
		p.DailyBytes = map[string]int64{}
	}
	return p
}
