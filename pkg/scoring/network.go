package scoring

import "math"

const (
	// Authors beyond this count earn the collaboration bonus.
	collaborationAuthors = 5
	collaborationBonus   = 0.1
	// Average coauthor count treated as a fully central author.
	centralityCeiling = 100
)

// NetworkEvidence explains a network score.
type NetworkEvidence struct {
	AuthorCount      int     `json:"author_count"`
	AvgCentrality    float64 `json:"avg_centrality"`
	BaseScore        float64 `json:"base_score"`
	CrossDomainBonus float64 `json:"cross_domain_bonus"`
	Method           string  `json:"method"`
}

// Network approximates how well connected a paper's authors are. With
// coauthorCounts it uses the log-scaled mean coauthor count; without it,
// the raw author count.
func Network(authors []string, coauthorCounts map[string]int) (float64, NetworkEvidence) {
	ev := NetworkEvidence{AuthorCount: len(authors), Method: "none"}
	if len(authors) == 0 {
		return 0, ev
	}

	if coauthorCounts != nil {
		var total int
		for _, a := range authors {
			total += coauthorCounts[a]
		}
		ev.AvgCentrality = float64(total) / float64(len(authors))
		ev.BaseScore = math.Log1p(ev.AvgCentrality) / math.Log1p(centralityCeiling)
		ev.Method = "coauthor_centrality"
	} else {
		ev.BaseScore = math.Min(1, float64(len(authors))/10)
		ev.Method = "author_count"
	}

	if len(authors) > collaborationAuthors {
		ev.CrossDomainBonus = collaborationBonus
	}
	return clamp(ev.BaseScore+ev.CrossDomainBonus, 0, 1), ev
}

// CoauthorCounts maps every author to the number of distinct people they
// have written with across the given author lists.
func CoauthorCounts(authorLists [][]string) map[string]int {
	peers := make(map[string]map[string]struct{})
	for _, list := range authorLists {
		for _, a := range list {
			if _, ok := peers[a]; !ok {
				peers[a] = make(map[string]struct{})
			}
			for _, b := range list {
				if a != b {
					peers[a][b] = struct{}{}
				}
			}
		}
	}
	counts := make(map[string]int, len(peers))
	for a, p := range peers {
		counts[a] = len(p)
	}
	return counts
}
