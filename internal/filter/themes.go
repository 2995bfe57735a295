// Package filter restricts collected records to a thematic scope using the
// category allowlist of a theme and, optionally, its keyword list.
package filter

// Theme pairs the upstream categories that belong to a subject area with the
// keyword phrases used when category metadata is unreliable.
type Theme struct {
	Categories []string `mapstructure:"categories" json:"categories"`
	Keywords   []string `mapstructure:"keywords" json:"keywords"`
}

// DefaultThemes returns the built-in theme table.
func DefaultThemes() map[string]Theme {
	return map[string]Theme{
		"ai_ml": {
			Categories: []string{"cs.AI", "cs.LG", "cs.CL", "cs.CV", "cs.MA", "cs.NE", "stat.ML", "eess.IV"},
			Keywords: []string{
				"machine learning", "deep learning", "llm", "agent",
				"transformer", "multimodal", "computer vision",
			},
		},
		"algo_ds": {
			Categories: []string{"cs.DS", "cs.CC"},
			Keywords:   []string{"algorithm", "data structure", "complexity", "graph", "optimization"},
		},
		"net_sys": {
			Categories: []string{"cs.NI", "cs.DC", "cs.OS"},
			Keywords:   []string{"network", "distributed", "operating system", "cloud", "systems"},
		},
		"cyber_crypto": {
			Categories: []string{"cs.CR"},
			Keywords:   []string{"security", "privacy", "cryptography", "attack", "defense", "malware"},
		},
		"pl_se": {
			Categories: []string{"cs.PL", "cs.SE", "cs.LO"},
			Keywords: []string{
				"programming language", "compiler", "software engineering",
				"static analysis", "type system",
			},
		},
		"hci_data": {
			Categories: []string{"cs.HC", "cs.IR", "cs.DB", "cs.MM"},
			Keywords: []string{
				"human-computer interaction", "information retrieval", "database",
				"multimedia", "ranking", "search",
			},
		},
	}
}
