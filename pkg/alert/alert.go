package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/deepradar/pkg/opportunity"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	Title        string               `json:"title"`
	Body         string               `json:"body"`
	Slug         string               `json:"slug"`
	Domain       string               `json:"domain"`
	WeekOf       string               `json:"week_of"`
	Rank         int                  `json:"rank"`
	Score        float64              `json:"score"`
	Tier         opportunity.Tier     `json:"recommendation"`
	Components   opportunity.Snapshot `json:"component_scores"`
	Thesis       string               `json:"investment_thesis"`
	KeyPapers    []int64              `json:"key_papers"`
	RelatedRepos []int64              `json:"related_repos"`
}

// FromOpportunity builds the notification of a selected opportunity.
func FromOpportunity(o opportunity.Opportunity) *Notification {
	return &Notification{
		Title:        fmt.Sprintf("%s #%d in %s", o.Tier, o.Rank, o.Domain),
		Body:         o.ExecutiveSummary,
		Slug:         o.Slug,
		Domain:       o.Domain,
		WeekOf:       o.WeekOf.Format("2006-01-02"),
		Rank:         o.Rank,
		Score:        o.Score,
		Tier:         o.Tier,
		Components:   o.Components,
		Thesis:       o.InvestmentThesis,
		KeyPapers:    o.KeyPapers,
		RelatedRepos: o.RelatedRepos,
	}
}

// tierEmoji marks the header of chat notifications.
func tierEmoji(t opportunity.Tier) string {
	switch t {
	case opportunity.TierStrongBuy:
		return "🚀"
	case opportunity.TierBuy:
		return "📈"
	case opportunity.TierWatch:
		return "👀"
	default:
		return "📄"
	}
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
	tiers     map[opportunity.Tier]bool
}

// NewManager creates a new alert manager. Only opportunities of the given
// tiers are announced; with no tiers, only STRONG_BUY.
func NewManager(notifiers []Notifier, tiers []string) *Manager {
	m := &Manager{notifiers: notifiers, tiers: make(map[opportunity.Tier]bool)}
	for _, t := range tiers {
		m.tiers[opportunity.Tier(t)] = true
	}
	if len(m.tiers) == 0 {
		m.tiers[opportunity.TierStrongBuy] = true
	}
	return m
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifyOpportunities broadcasts every opportunity whose tier is alerted on
// and returns how many were sent.
func (m *Manager) NotifyOpportunities(ctx context.Context, opps []opportunity.Opportunity) (int, error) {
	if !m.HasNotifiers() {
		return 0, nil
	}
	var (
		sent int
		errs []error
	)
	for _, o := range opps {
		if !m.tiers[o.Tier] {
			continue
		}
		if err := m.Broadcast(ctx, FromOpportunity(o)); err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", o.Slug, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
