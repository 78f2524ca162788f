package tagging

import (
	"Go2NetProfile/internal/model"
	"math"
	"strings"
	"time"
)

// Metric names understood by rules. Category metrics are written as
// "category:game" or "category:social+chat".
const (
	MetricPortTouches   = "port_touches"
	MetricDistinctPorts = "distinct_ports"
	MetricDNSQueries    = "dns_queries"
	MetricNightRatio    = "night_ratio"
	MetricMorningRatio  = "morning_ratio"
	MetricWeekendRatio  = "weekend_ratio"
	MetricHourlyCV      = "hourly_cv"
	MetricBlacklistHits = "blacklist_hits"

	categoryPrefix = "category:"
)

// signals are the quantities rules are evaluated against, derived once per
// bundle.
type signals struct {
	bundle          model.FeatureBundle
	activeHours     int
	portTouches     int
	nightBytes      int64
	morningBytes    int64
	weekendBytes    int64
	hourlyCV        float64
	hourlyCVDefined bool
}

func deriveSignals(b model.FeatureBundle) signals {
	s := signals{bundle: b, activeHours: len(b.ActiveHours)}

	for _, c := range b.PortStats {
		s.portTouches += c
	}
	s.nightBytes = hourBytes(b, NightHours)
	s.morningBytes = hourBytes(b, MorningHours)

	for date, bytes := range b.DailyBytes {
		day, err := time.Parse(model.DateLayout, date)
		if err != nil {
			continue
		}
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			s.weekendBytes += bytes
		}
	}

	s.hourlyCV, s.hourlyCVDefined = hourlyCV(b)
	return s
}

func hourBytes(b model.FeatureBundle, hours []int) int64 {
	var sum int64
	for _, h := range hours {
		sum += b.ActiveHours[h].Bytes
	}
	return sum
}

// hourlyCV is the coefficient of variation (population standard deviation
// over mean) of the byte totals of all 24 hours, absent hours counted as 0.
func hourlyCV(b model.FeatureBundle) (float64, bool) {
	var totals [24]float64
	var sum float64
	for h, stat := range b.ActiveHours {
		if h < 0 || h > 23 {
			continue
		}
		totals[h] = float64(stat.Bytes)
		sum += float64(stat.Bytes)
	}
	if sum <= 0 {
		return 0, false
	}
	mean := sum / 24
	var variance float64
	for _, v := range totals {
		variance += (v - mean) * (v - mean)
	}
	variance /= 24
	return math.Sqrt(variance) / mean, true
}

// value resolves a metric. The second result is false when the metric is
// undefined for this bundle (unknown name, or a ratio of zero total bytes),
// in which case a rule on it never fires.
func (s signals) value(metric string) (float64, bool) {
	if strings.HasPrefix(metric, categoryPrefix) {
		if s.bundle.TotalBytes <= 0 {
			return 0, false
		}
		var sum float64
		for _, name := range strings.Split(strings.TrimPrefix(metric, categoryPrefix), "+") {
			sum += s.bundle.CategoryPct[strings.TrimSpace(name)]
		}
		return sum, true
	}

	switch metric {
	case MetricPortTouches:
		return float64(s.portTouches), true
	case MetricDistinctPorts:
		return float64(len(s.bundle.PortStats)), true
	case MetricDNSQueries:
		return float64(s.bundle.DNSStats.Queries), true
	case MetricBlacklistHits:
		return float64(s.bundle.BlacklistHits), true
	case MetricNightRatio:
		return s.ratio(s.nightBytes)
	case MetricMorningRatio:
		return s.ratio(s.morningBytes)
	case MetricWeekendRatio:
		return s.ratio(s.weekendBytes)
	case MetricHourlyCV:
		return s.hourlyCV, s.hourlyCVDefined
	}
	return 0, false
}

func (s signals) ratio(part int64) (float64, bool) {
	if s.bundle.TotalBytes <= 0 {
		return 0, false
	}
	return float64(part) / float64(s.bundle.TotalBytes) * 100, true
}
