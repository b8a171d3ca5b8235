package hub

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rule maps page paths of a site to a feed route.
type Rule struct {
	Title    string  `json:"title"`
	Docs     string  `json:"docs,omitempty"`
	Source   Sources `json:"source"`
	Target   string  `json:"target"`
	Selector string  `json:"selector,omitempty"` // optional: page must contain a match
}

// Sources accepts either a single path pattern or a list of them.
type Sources []string

func (s *Sources) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = Sources{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("rule source: %w", err)
	}
	*s = many
	return nil
}

// Site holds the rules declared for one registrable domain, grouped by
// subdomain ("." for the bare domain).
type Site struct {
	Name       string
	Subdomains map[string][]Rule
}

// Rules is the full rule set keyed by registrable domain.
type Rules map[string]Site

func (r *Rules) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse rules: %w", err)
	}
	out := make(Rules, len(raw))
	for domain, entries := range raw {
		site := Site{Subdomains: make(map[string][]Rule)}
		for key, val := range entries {
			if key == "_name" {
				if err := json.Unmarshal(val, &site.Name); err != nil {
					return fmt.Errorf("parse rules %s: name: %w", domain, err)
				}
				continue
			}
			if strings.HasPrefix(key, "_") {
				continue
			}
			var rules []Rule
			if err := json.Unmarshal(val, &rules); err != nil {
				return fmt.Errorf("parse rules %s/%s: %w", domain, key, err)
			}
			site.Subdomains[key] = rules
		}
		out[domain] = site
	}
	*r = out
	return nil
}

func (r Rules) MarshalJSON() ([]byte, error) {
	raw := make(map[string]map[string]any, len(r))
	for domain, site := range r {
		entries := make(map[string]any, len(site.Subdomains)+1)
		if site.Name != "" {
			entries["_name"] = site.Name
		}
		for sub, rules := range site.Subdomains {
			entries[sub] = rules
		}
		raw[domain] = entries
	}
	return json.Marshal(raw)
}

// Count returns the number of rules across all sites.
func (r Rules) Count() int {
	n := 0
	for _, site := range r {
		for _, rules := range site.Subdomains {
			n += len(rules)
		}
	}
	return n
}
