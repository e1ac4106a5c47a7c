package recorder

import (
	"tinking/backend/internal/dom"

	"github.com/PuerkitoBio/goquery"
)

// rawEvent is an event as queued by the capture script.
type rawEvent struct {
	Type string `json:"type"`
	Path []int  `json:"path"`
	Key  string `json:"key"`
}

// drained is the reply of one poll.
type drained struct {
	Missing bool       `json:"missing"`
	Dirty   bool       `json:"dirty"`
	Events  []rawEvent `json:"events"`
}

// resolve maps raw events onto nodes of the page snapshot. Events of an
// unknown type or whose target is not in the snapshot are skipped, and a
// run of mouse moves collapses into its last move.
func resolve(page *dom.Page, raw []rawEvent) []dom.Event {
	out := make([]dom.Event, 0, len(raw))
	page.Inspect(func(doc *goquery.Document) {
		for _, r := range raw {
			kind := dom.EventKind(r.Type)
			switch kind {
			case dom.EventMouseMove, dom.EventClick, dom.EventKeyDown:
			default:
				continue
			}
			node := dom.ElementAt(doc, r.Path)
			if node == nil {
				continue
			}
			ev := dom.Event{Kind: kind, Node: node}
			if kind == dom.EventKeyDown {
				ev.Key = r.Key
			}
			if n := len(out); n > 0 && kind == dom.EventMouseMove && out[n-1].Kind == dom.EventMouseMove {
				out[n-1] = ev
				continue
			}
			out = append(out, ev)
		}
	})
	return out
}
