// Package tagging turns feature bundles into behavioral, temporal and
// security tags by evaluating a table of threshold rules.
package tagging

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/model"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Kind groups rules for reporting.
type Kind string

const (
	KindBehavioral Kind = "behavioral"
	KindTemporal   Kind = "temporal"
	KindSecurity   Kind = "security"
)

// Rule fires Tag when Metric compared to Threshold with Operator holds.
// When Else is set the rule is two-sided and emits Else otherwise. A rule
// with MinActiveHours is skipped for users active in fewer distinct hours.
type Rule struct {
	Tag            string
	Kind           Kind
	Metric         string
	Operator       string
	Threshold      float64
	Else           string
	MinActiveHours int
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: TagGameHeavy, Kind: KindBehavioral, Metric: "category:game", Operator: ">", Threshold: GameHeavyPct},
		{Tag: TagVideoHeavy, Kind: KindBehavioral, Metric: "category:video", Operator: ">", Threshold: VideoHeavyPct},
		{Tag: TagSocial, Kind: KindBehavioral, Metric: "category:social+chat", Operator: ">", Threshold: SocialPct},
		{Tag: TagEduFocused, Kind: KindBehavioral, Metric: "category:edu", Operator: ">", Threshold: EduFocusedPct},
		{Tag: TagTechnical, Kind: KindBehavioral, Metric: MetricPortTouches, Operator: ">", Threshold: TechnicalPortTouches},

		{Tag: TagNightOwl, Kind: KindTemporal, Metric: MetricNightRatio, Operator: ">", Threshold: NightOwlPct},
		{Tag: TagEarlyRiser, Kind: KindTemporal, Metric: MetricMorningRatio, Operator: ">", Threshold: EarlyRiserPct},
		{Tag: TagRegular, Kind: KindTemporal, Metric: MetricHourlyCV, Operator: "<=", Threshold: RegularMaxHourlyCV, Else: TagIrregular, MinActiveHours: RegularMinActiveHours},
		{Tag: TagWeekend, Kind: KindTemporal, Metric: MetricWeekendRatio, Operator: ">", Threshold: WeekendActivePct},

		{Tag: TagPortScan, Kind: KindSecurity, Metric: MetricDistinctPorts, Operator: ">=", Threshold: PortScanDistinctPorts},
		{Tag: TagDNSSuspect, Kind: KindSecurity, Metric: MetricDNSQueries, Operator: ">", Threshold: DNSSuspectQueries},
		{Tag: TagNightAnomaly, Kind: KindSecurity, Metric: MetricNightRatio, Operator: ">", Threshold: AnomalousNightPct},
		{Tag: TagBlacklist, Kind: KindSecurity, Metric: MetricBlacklistHits, Operator: ">=", Threshold: BlacklistMinHits},
	}
}

// Engine evaluates a fixed rule table. It is safe for concurrent use.
type Engine struct {
	rules    []Rule
	disabled map[string]bool
	logger   *zap.Logger
}

// New creates an Engine over rules. A nil logger discards output.
func New(rules []Rule, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rules:    append([]Rule(nil), rules...),
		disabled: make(map[string]bool),
		logger:   logger.Named("tagging"),
	}
}

// NewDefault creates an Engine over the built-in rules.
func NewDefault() *Engine {
	return New(DefaultRules(), nil)
}

// FromConfig builds the built-in table adjusted by cfg: thresholds are
// overridden per tag, disabled tags never fire, extra rules are appended.
func FromConfig(cfg config.TaggingConfig, logger *zap.Logger) (*Engine, error) {
	rules := DefaultRules()
	known := make(map[string]bool, len(rules))
	for i := range rules {
		known[rules[i].Tag] = true
		if v, ok := cfg.Thresholds[rules[i].Tag]; ok {
			rules[i].Threshold = v
		}
	}
	for tag := range cfg.Thresholds {
		if !known[tag] {
			return nil, fmt.Errorf("threshold override for unknown tag %q", tag)
		}
	}

	for _, def := range cfg.Rules {
		kind := Kind(def.Kind)
		if kind == "" {
			kind = KindBehavioral
		}
		rules = append(rules, Rule{
			Tag:            def.Tag,
			Kind:           kind,
			Metric:         def.Metric,
			Operator:       def.Operator,
			Threshold:      def.Threshold,
			Else:           def.Else,
			MinActiveHours: def.MinActiveHours,
		})
	}

	e := New(rules, logger)
	for _, tag := range cfg.Disabled {
		e.disabled[tag] = true
	}
	return e, nil
}

// Rules returns a copy of the rule table.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// KindOf returns the kind of the rule producing tag.
func (e *Engine) KindOf(tag string) (Kind, bool) {
	for _, r := range e.rules {
		if r.Tag == tag || (r.Else != "" && r.Else == tag) {
			return r.Kind, true
		}
	}
	return "", false
}

// TagsOfKind lists the tags the rules of kind can emit, sorted.
func (e *Engine) TagsOfKind(kind Kind) []string {
	var tags []string
	for _, r := range e.rules {
		if r.Kind != kind {
			continue
		}
		tags = append(tags, r.Tag)
		if r.Else != "" {
			tags = append(tags, r.Else)
		}
	}
	sort.Strings(tags)
	return tags
}

// Classify returns the sorted, deduplicated tags the bundle satisfies.
// Rules are independent; an empty bundle satisfies none of the ratio rules.
func (e *Engine) Classify(user string, b model.FeatureBundle) []string {
	s := deriveSignals(b)
	set := make(map[string]bool)

	for _, r := range e.rules {
		if r.MinActiveHours > 0 && s.activeHours < r.MinActiveHours {
			continue
		}
		value, ok := s.value(r.Metric)
		if !ok {
			continue
		}
		tag := r.Else
		if e.check(value, r.Threshold, r.Operator) {
			tag = r.Tag
		}
		if tag != "" && !e.disabled[tag] {
			set[tag] = true
		}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	e.logger.Debug("classified user", zap.String("user", user), zap.Strings("tags", tags))
	return tags
}

// check compares a metric value against a rule threshold.
func (e *Engine) check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		e.logger.Warn("unknown operator in tagging rule", zap.String("operator", operator))
		return false
	}
}
