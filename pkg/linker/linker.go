// Package linker matches papers to code repositories by lexical overlap.
package linker

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// DefaultMinConfidence is the lowest confidence a candidate link may have.
	DefaultMinConfidence = 0.4
	// DefaultMaxMatches caps the links kept per paper.
	DefaultMaxMatches = 3

	minTokenLen      = 3
	topicBase        = 0.45
	topicStep        = 0.1
	topicCeiling     = 0.9
	textOverlapFloor = 0.4
)

// Doc is the text of a paper that takes part in matching.
type Doc struct {
	ID       int64
	Title    string
	Keywords []string
}

// Repo is the text of a repository that takes part in matching.
type Repo struct {
	ID          int64
	FullName    string
	Description string
	Topics      []string
}

// Evidence records why a candidate matched.
type Evidence struct {
	MatchingTopics []string `json:"matching_topics"`
	TitleOverlap   []string `json:"title_overlap"`
	RepoTopics     []string `json:"repo_topics"`
}

// Candidate is a proposed link from a paper to a repository.
type Candidate struct {
	RepoID     int64
	Confidence float64
	Evidence   Evidence
}

// Options tune Match. Zero values take the defaults.
type Options struct {
	MinConfidence float64
	MaxMatches    int
}

func (o Options) withDefaults() Options {
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.MaxMatches <= 0 {
		o.MaxMatches = DefaultMaxMatches
	}
	return o
}

// Tokens splits text into lower-cased runs of letters and digits that are at
// least three characters long.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLen {
			out = append(out, f)
		}
	}
	return out
}

// PaperTokens is the token set a paper is matched with: its title tokens,
// every keyword lower-cased as a whole, and the tokens of each keyword.
func PaperTokens(d Doc) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(d.Title) {
		set[t] = struct{}{}
	}
	for _, kw := range d.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		set[kw] = struct{}{}
		for _, t := range Tokens(kw) {
			set[t] = struct{}{}
		}
	}
	return set
}

// HasText reports whether the paper has anything to match on.
func HasText(d Doc) bool {
	if strings.TrimSpace(d.Title) != "" {
		return true
	}
	for _, kw := range d.Keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}

// Match scores every repository against the paper and returns at most
// MaxMatches candidates at or above MinConfidence, best first. Equal
// confidences keep the order of repos.
func Match(d Doc, repos []Repo, opts Options) []Candidate {
	opts = opts.withDefaults()
	tokens := PaperTokens(d)
	if len(tokens) == 0 {
		return nil
	}

	var out []Candidate
	for _, r := range repos {
		c, ok := score(tokens, r)
		if !ok || c.Confidence < opts.MinConfidence {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > opts.MaxMatches {
		out = out[:opts.MaxMatches]
	}
	return out
}

func score(tokens map[string]struct{}, r Repo) (Candidate, bool) {
	topics := make([]string, 0, len(r.Topics))
	for _, t := range r.Topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			topics = append(topics, t)
		}
	}

	matching := intersect(tokens, topics)
	overlap := intersect(tokens, Tokens(r.FullName+" "+r.Description))

	var confidence float64
	if len(matching) > 0 {
		confidence = topicBase + topicStep*float64(len(matching))
		if confidence > topicCeiling {
			confidence = topicCeiling
		}
	}
	if len(overlap) > 0 && confidence < textOverlapFloor {
		confidence = textOverlapFloor
	}
	if confidence == 0 {
		return Candidate{}, false
	}

	return Candidate{
		RepoID:     r.ID,
		Confidence: confidence,
		Evidence: Evidence{
			MatchingTopics: matching,
			TitleOverlap:   overlap,
			RepoTopics:     topics,
		},
	}, true
}

// intersect returns the distinct members of words found in set, sorted.
func intersect(set map[string]struct{}, words []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, w := range words {
		if _, ok := set[w]; !ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
