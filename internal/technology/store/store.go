package store

import "context"

// Store defines the interface for snapshot persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Store interface {
	// Save replaces the persisted snapshot atomically.
	Save(ctx context.Context, snapshot map[string]any) error

	// Load rebuilds the last saved snapshot. An empty store yields an
	// empty snapshot, not an error.
	Load(ctx context.Context) (map[string]any, error)
}

// Component kinds as stored in the kind column.
const (
	kindGroup   = "group"
	kindPairing = "pairing"
	kindRule    = "rule"
	kindTimer   = "timer"
)

// row is one component's persisted state.
type row struct {
	kind  string
	id    string
	state map[string]any
}

// flatten turns a technology snapshot into per-component rows.
func flatten(snapshot map[string]any) []row {
	var rows []row
	rows = appendSection(rows, kindGroup, snapshot["groups"])
	if autos, ok := snapshot["automations"].(map[string]any); ok {
		rows = appendSection(rows, kindPairing, autos["pairings"])
		rows = appendSection(rows, kindRule, autos["rules"])
		rows = appendSection(rows, kindTimer, autos["timers"])
	}
	return rows
}

func appendSection(rows []row, kind string, raw any) []row {
	section, ok := raw.(map[string]any)
	if !ok {
		return rows
	}
	for id, entry := range section {
		state, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, row{kind: kind, id: id, state: state})
	}
	return rows
}

// rebuild reassembles rows into the snapshot shape CopyState produces.
func rebuild(rows []row) map[string]any {
	groups := make(map[string]any)
	pairings := make(map[string]any)
	rules := make(map[string]any)
	timers := make(map[string]any)
	for _, r := range rows {
		switch r.kind {
		case kindGroup:
			groups[r.id] = r.state
		case kindPairing:
			pairings[r.id] = r.state
		case kindRule:
			rules[r.id] = r.state
		case kindTimer:
			timers[r.id] = r.state
		}
	}
	return map[string]any{
		"groups": groups,
		"automations": map[string]any{
			"pairings": pairings,
			"rules":    rules,
			"timers":   timers,
		},
	}
}
