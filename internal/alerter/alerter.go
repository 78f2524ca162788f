package alerter

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/model"
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"go.uber.org/zap"
)

const maxListedUsers = 50

// Alert is a triggered rule and the users behind it.
type Alert struct {
	Rule     config.AlerterRule
	Observed int
	Users    []string
}

// Alerter evaluates finished runs against tag-count rules and notifies when
// any rule holds.
type Alerter struct {
	rules    []config.AlerterRule
	subject  string
	notifier model.Notifier
	logger   *zap.Logger
}

// NewAlerter creates a new Alerter. A nil notifier makes Notify a no-op
// after evaluation.
func NewAlerter(cfg config.AlerterConfig, notifier model.Notifier, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		rules:    cfg.Rules,
		subject:  cfg.Subject,
		notifier: notifier,
		logger:   logger.Named("alerter"),
	}
}

// Evaluate returns the rules the snapshot triggers, in rule order. The
// observed value of a rule is the number of users carrying its tag.
func (a *Alerter) Evaluate(snapshot *model.Snapshot) []Alert {
	index := snapshot.Profiles.TagIndex()
	var alerts []Alert
	for _, rule := range a.rules {
		users := index[rule.Tag]
		if a.check(float64(len(users)), rule.Threshold, rule.Operator) {
			alerts = append(alerts, Alert{Rule: rule, Observed: len(users), Users: users})
		}
	}
	return alerts
}

// Notify evaluates the snapshot and sends one consolidated HTML report when
// at least one rule triggers.
func (a *Alerter) Notify(snapshot *model.Snapshot) ([]Alert, error) {
	alerts := a.Evaluate(snapshot)
	if len(alerts) == 0 {
		return nil, nil
	}
	a.logger.Info("alert evaluation completed", zap.Int("triggered", len(alerts)))

	if a.notifier == nil {
		return alerts, nil
	}
	subject := fmt.Sprintf("%s (%d Triggered)", a.subject, len(alerts))
	body := string(markdown.ToHTML([]byte(Render(snapshot, alerts)), nil, nil))
	if err := a.notifier.Send(subject, body); err != nil {
		return alerts, fmt.Errorf("failed to send alert notification: %w", err)
	}
	a.logger.Info("alert notification sent", zap.String("subject", subject))
	return alerts, nil
}

// Render formats the alerts as a markdown report.
func Render(snapshot *model.Snapshot, alerts []Alert) string {
	var b strings.Builder
	b.WriteString("# Go2NetProfile Alert Summary\n\n")
	fmt.Fprintf(&b, "Run `%s` generated at %s from `%s` covering %d users.\n\n",
		snapshot.RunID, snapshot.GeneratedAt.UTC().Format(time.RFC3339), snapshot.Source, len(snapshot.Profiles))

	for _, alert := range alerts {
		r := alert.Rule
		fmt.Fprintf(&b, "## Alert: %s\n\n", r.Name)
		fmt.Fprintf(&b, "- **Tag:** `%s`\n", r.Tag)
		fmt.Fprintf(&b, "- **Condition:** `%s %.2f`\n", r.Operator, r.Threshold)
		fmt.Fprintf(&b, "- **Observed Value:** `%d users`\n", alert.Observed)
		if len(alert.Users) > 0 {
			listed := alert.Users
			if len(listed) > maxListedUsers {
				listed = listed[:maxListedUsers]
			}
			b.WriteString("- **Users:** `" + strings.Join(listed, "`, `") + "`")
			if extra := len(alert.Users) - len(listed); extra > 0 {
				fmt.Fprintf(&b, " and %d more", extra)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// check compares a value against a threshold based on an operator.
func (a *Alerter) check(value, threshold float64, operator string) bool {
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
		a.logger.Warn("unknown operator in alerter rule", zap.String("operator", operator))
		return false
	}
}
