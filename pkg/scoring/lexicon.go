package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon holds the keyword categories used by the moat and scalability scorers.
type Lexicon struct {
	MoatBarriers       MoatCategories
	ScalabilitySignals ScalabilityCategories

	patterns sync.Map // keyword -> *regexp.Regexp
}

// MoatCategories are the barrier-to-replication keyword lists.
type MoatCategories struct {
	Equipment []string
	Process   []string
	Materials []string
	Compute   []string
	Openness  []string
}

// ScalabilityCategories are the manufacturing-readiness keyword lists.
type ScalabilityCategories struct {
	Manufacturing []string
	Economic      []string
	Maturity      []string
	Blockers      []string
}

// DefaultLexicon returns the lexicon built into the binary.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in lexicon: %v", err))
	}
	return lex
}

// LoadLexicon reads a lexicon YAML file.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	lex, err := ParseLexicon(data)
	if err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return lex, nil
}

// ParseLexicon decodes lexicon YAML. Only a document that is not a mapping
// is an error: missing sections and categories, or categories that are not
// lists of strings, come back empty.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	moat := section(raw, "moat_barriers")
	scal := section(raw, "scalability_signals")

	return &Lexicon{
		MoatBarriers: MoatCategories{
			Equipment: keywords(moat, "equipment"),
			Process:   keywords(moat, "process"),
			Materials: keywords(moat, "materials"),
			Compute:   keywords(moat, "compute"),
			Openness:  keywords(moat, "openness"),
		},
		ScalabilitySignals: ScalabilityCategories{
			Manufacturing: keywords(scal, "manufacturing"),
			Economic:      keywords(scal, "economic"),
			Maturity:      keywords(scal, "maturity"),
			Blockers:      keywords(scal, "blockers"),
		},
	}, nil
}

func section(raw map[string]any, name string) map[string]any {
	m, _ := raw[name].(map[string]any)
	return m
}

func keywords(sec map[string]any, name string) []string {
	list, _ := sec[name].([]any)
	var out []string
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// matchAll returns the keywords that occur as whole words in text.
// text must already be lower-cased.
func (l *Lexicon) matchAll(text string, kws []string) []string {
	matched := make([]string, 0)
	for _, kw := range kws {
		if l.pattern(kw).MatchString(text) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func (l *Lexicon) pattern(kw string) *regexp.Regexp {
	if re, ok := l.patterns.Load(kw); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`)
	l.patterns.Store(kw, re)
	return re
}

// scoringText joins title, abstract and keywords into one lower-cased string.
func scoringText(title, abstract string, kws []string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(title))
	if abstract != "" {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(abstract))
	}
	if len(kws) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(strings.Join(kws, " ")))
	}
	return b.String()
}
