package opportunity

import (
	"fmt"
	"strings"

	"github.com/elonfeng/deepradar/pkg/scoring"
)

const nextSteps = "Next steps: Monitor complementary partners, assess technical feasibility, track commercial traction."

// ExecutiveSummary is a one-paragraph summary of a candidate built from its
// scores and evidence counts.
func ExecutiveSummary(c Candidate) string {
	parts := []string{c.Title}

	switch {
	case c.Score > 0.7:
		parts = append(parts, fmt.Sprintf("shows exceptional potential (score: %.2f)", c.Score))
	case c.Score > 0.65:
		parts = append(parts, fmt.Sprintf("presents strong opportunity (score: %.2f)", c.Score))
	}
	if c.Domain != "" {
		parts = append(parts, "in "+c.Domain)
	}
	if c.Components.Moat > 0.5 && c.Barriers > 0 {
		parts = append(parts, fmt.Sprintf("with %d identified barriers to replication", c.Barriers))
	}
	if c.Components.Scalability > 0.5 && c.Signals > 0 {
		parts = append(parts, fmt.Sprintf("and %d manufacturing scalability indicators", c.Signals))
	}
	return strings.Join(parts, ". ") + "."
}

// InvestmentThesis lists strengths and risks read off the component scores.
func InvestmentThesis(s scoring.Components) string {
	var sections []string

	var strengths []string
	if s.Moat > 0.6 {
		strengths = append(strengths, "Strong barriers to entry")
	}
	if s.Scalability > 0.6 {
		strengths = append(strengths, "High manufacturing scalability")
	}
	if s.AttentionGap > 0.6 {
		strengths = append(strengths, "Undervalued opportunity (high quality, low attention)")
	}
	if len(strengths) > 0 {
		sections = append(sections, "Strengths: "+strings.Join(strengths, ", "))
	}

	var risks []string
	if s.Moat < 0.3 {
		risks = append(risks, "Low barriers to competition")
	}
	if s.Scalability < 0.3 {
		risks = append(risks, "Manufacturing challenges")
	}
	if s.Network < 0.3 {
		risks = append(risks, "Limited research network")
	}
	if len(risks) > 0 {
		sections = append(sections, "Risks: "+strings.Join(risks, ", "))
	}

	return strings.Join(append(sections, nextSteps), " | ")
}
