package service

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed duration_heuristics.yaml
var defaultDurationTable []byte

const maxDurationMinutes = 24 * 60

// DurationCategory maps title keywords to a suggested length.
type DurationCategory struct {
	Name     string   `yaml:"name"`
	Minutes  int      `yaml:"minutes"`
	Keywords []string `yaml:"keywords"`
}

// DurationHeuristics estimates event length from the kind of event named in a title.
type DurationHeuristics struct {
	Default    int                `yaml:"default"`
	Categories []DurationCategory `yaml:"categories"`
}

// LoadDurationHeuristics parses a YAML table. An empty input loads the built-in table.
func LoadDurationHeuristics(raw []byte) (*DurationHeuristics, error) {
	if len(raw) == 0 {
		raw = defaultDurationTable
	}
	var table DurationHeuristics
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse duration heuristics: %w", err)
	}
	if table.Default <= 0 {
		table.Default = 60
	}
	for i, c := range table.Categories {
		if c.Minutes <= 0 || c.Minutes > maxDurationMinutes {
			return nil, fmt.Errorf("duration category %q has invalid minutes %d", c.Name, c.Minutes)
		}
		for j, k := range c.Keywords {
			table.Categories[i].Keywords[j] = strings.ToLower(k)
		}
	}
	return &table, nil
}

// MustDefaultDurationHeuristics returns the built-in table.
func MustDefaultDurationHeuristics() *DurationHeuristics {
	table, err := LoadDurationHeuristics(nil)
	if err != nil {
		panic(err)
	}
	return table
}

// Estimate returns the suggested minutes for title.
func (h *DurationHeuristics) Estimate(title string) int {
	if h == nil {
		return 60
	}
	lower := " " + strings.ToLower(title) + " "
	for _, c := range h.Categories {
		for _, k := range c.Keywords {
			if containsWord(lower, k) {
				return c.Minutes
			}
		}
	}
	return h.Default
}

// containsWord matches keyword on word boundaries so "run" does not hit "brunch".
func containsWord(padded, keyword string) bool {
	idx := 0
	for {
		i := strings.Index(padded[idx:], keyword)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(keyword)
		if !isWordByte(padded[start-1]) && (end >= len(padded) || !isWordByte(padded[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

var explicitDuration = regexp.MustCompile(`(?i)\b(?:for\s+|about\s+|take\s+about\s+|lasting\s+)?(\d+(?:\.\d+)?)\s*(hours|hour|hrs|hr|h)(?:\s*(?:and\s+)?(\d{1,2})\s*(minutes|minute|mins|min|m)?)?\b|\b(?:for\s+|about\s+)?(\d+)\s*(minutes|minute|mins|min|m)\b`)

// ExtractDuration finds an explicit duration such as "for 45m", "1h30m" or "2 hours".
// span is the matched text so callers can strip it.
func ExtractDuration(text string) (minutes int, span string, ok bool) {
	m := explicitDuration.FindStringSubmatchIndex(text)
	if m == nil {
		return 0, "", false
	}
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}
	if h := group(1); h != "" {
		hours, err := strconv.ParseFloat(h, 64)
		if err != nil {
			return 0, "", false
		}
		minutes = int(hours * 60)
		if extra := group(3); extra != "" {
			n, _ := strconv.Atoi(extra)
			minutes += n
		}
	} else {
		minutes, _ = strconv.Atoi(group(5))
	}
	if minutes <= 0 || minutes > maxDurationMinutes {
		return 0, "", false
	}
	return minutes, strings.TrimSpace(text[m[0]:m[1]]), true
}
