package engine

import (
	"sort"
	"strings"
	"time"

	"questmetrics/api/models"
)

// MergeRules maps an event type id to the extra identity fields that must
// also agree before two events of that type merge into one tree node. The
// conditionally-mergeable set is data, not scattered conditionals; callers
// may pass their own table.
type MergeRules map[string][]string

// DefaultMergeRules is the standard table for game telemetry: events whose
// occurrences only mean something per crash message, per offer, per
// currency flow, per ad placement or per report.
func DefaultMergeRules() MergeRules {
	return MergeRules{
		"crash":          {"message"},
		"offerPurchased": {"offerID", "price"},
		"offerShown":     {"offerID"},
		"economyEvent":   {"currencyID", "type", "origin"},
		"adEvent":        {"network", "type"},
		"reportEvent":    {"reportID", "severity"},
	}
}

// Key builds the merge-identity discriminator for an event, or "" when its
// type is unconditionally mergeable. Missing identity fields contribute an
// empty segment so that two events missing the same field still merge.
func (r MergeRules) Key(ev models.EventRecord) string {
	fields, ok := r[ev.ID]
	if !ok {
		return ""
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i], _ = ev.Fields.Str(f)
	}
	return strings.Join(parts, "|")
}

// Numeric/categorical fields accumulated on nodes of rule-bearing event
// types. Other event types accumulate every dynamic field they carry.
var statFields = []string{"price", "amount", "timeSpent", "message"}

// AggregationNode is one node of the merged session tree: a prefix trie
// over event identity whose Occurrence counts the sessions that reached
// this exact path. Child occurrence divided by parent occurrence is the
// branching (conversion) probability shown to the analyst.
type AggregationNode struct {
	EventID    string             `json:"eventId"`
	MergeKey   string             `json:"mergeKey,omitempty"`
	Occurrence int                `json:"occurrence"`
	Children   []*AggregationNode `json:"children,omitempty"`
	Values     map[string][]any   `json:"values,omitempty"`
	ClientIDs  []string           `json:"clientIds,omitempty"`
	Times      []time.Time        `json:"times,omitempty"`
}

// ConversionRate is the share of this node's sessions that continued into
// the given child, in percent.
func (n *AggregationNode) ConversionRate(child *AggregationNode) float64 {
	if n.Occurrence == 0 {
		return 0
	}
	return float64(child.Occurrence) / float64(n.Occurrence) * 100
}

// MostCommonValue returns the most frequent accumulated value of a field
// and its count. Ties break to the lexicographically smaller string form,
// so the answer does not depend on map iteration order.
func (n *AggregationNode) MostCommonValue(field string) (string, int) {
	counts := make(map[string]int)
	for _, v := range n.Values[field] {
		counts[models.CoerceString(v)]++
	}
	best, bestCount := "", 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && c > 0 && v < best) {
			best, bestCount = v, c
		}
	}
	return best, bestCount
}

// MedianTime selects the sorted-middle accumulated timestamp, or the zero
// time when nothing has been accumulated.
func (n *AggregationNode) MedianTime() time.Time {
	if len(n.Times) == 0 {
		return time.Time{}
	}
	ts := make([]time.Time, len(n.Times))
	copy(ts, n.Times)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts[len(ts)/2]
}

// treeNode is the arena representation used while building. Children are
// arena indexes, so merging long sessions never recurses.
type treeNode struct {
	eventID  string
	mergeKey string
	occ      int
	children []int32
	values   map[string][]any
	clients  []string
	times    []time.Time
	lastEv   *models.EventRecord
}

// TreeBuilder merges sessions into one occurrence-weighted tree. The
// arena owns every aggregate it produces, so caller-owned sessions are
// never written to. A builder is single-use per Build call; the tree is
// discarded and rebuilt whenever the input batch or funnel changes.
type TreeBuilder struct {
	rules MergeRules
	arena []treeNode
}

// NewTreeBuilder returns a builder using the given merge rules, or the
// default table when rules is nil.
func NewTreeBuilder(rules MergeRules) *TreeBuilder {
	if rules == nil {
		rules = DefaultMergeRules()
	}
	return &TreeBuilder{rules: rules}
}

// Build merges the session batch and returns the tree root, or nil when no
// session contributed an event. If a session starts with a different event
// id than the current root, the tree is re-seeded from that session and
// earlier merges are discarded; feed batches that share a common entry
// event (the usual "newSession" opener) to get a single coherent tree.
func (b *TreeBuilder) Build(sessions []models.Session) *AggregationNode {
	b.arena = b.arena[:0]
	for si := range sessions {
		b.merge(&sessions[si])
	}
	if len(b.arena) == 0 {
		return nil
	}
	return b.export(0)
}

func (b *TreeBuilder) merge(s *models.Session) {
	if len(s.Events) == 0 {
		return
	}
	first := &s.Events[0]
	if len(b.arena) == 0 || b.arena[0].eventID != first.ID {
		b.arena = b.arena[:0]
		b.newNode(first)
	} else {
		b.arena[0].occ++
	}
	b.accumulate(0, first)

	cur := int32(0)
	for i := 1; i < len(s.Events); i++ {
		ev := &s.Events[i]
		key := b.rules.Key(*ev)
		child := b.findChild(cur, ev.ID, key)
		if child < 0 {
			child = b.newNode(ev)
			b.arena[cur].children = append(b.arena[cur].children, child)
		} else {
			b.arena[child].occ++
		}
		b.accumulate(child, ev)
		cur = child
	}
}

func (b *TreeBuilder) newNode(ev *models.EventRecord) int32 {
	b.arena = append(b.arena, treeNode{
		eventID:  ev.ID,
		mergeKey: b.rules.Key(*ev),
		occ:      1,
		values:   make(map[string][]any),
	})
	return int32(len(b.arena) - 1)
}

func (b *TreeBuilder) findChild(parent int32, eventID, key string) int32 {
	for _, ci := range b.arena[parent].children {
		c := &b.arena[ci]
		if c.eventID == eventID && c.mergeKey == key {
			return ci
		}
	}
	return -1
}

// accumulate appends the event's aggregates to the node: client id and
// timestamp always, then either the fixed stat fields (for rule-bearing
// types) or every dynamic field. The lastEv guard keeps the same physical
// event from being appended twice.
func (b *TreeBuilder) accumulate(ni int32, ev *models.EventRecord) {
	n := &b.arena[ni]
	if n.lastEv == ev {
		return
	}
	n.lastEv = ev
	if ev.ClientID != "" {
		n.clients = append(n.clients, ev.ClientID)
	}
	if !ev.Timestamp.IsZero() {
		n.times = append(n.times, ev.Timestamp)
	}
	if _, ruled := b.rules[ev.ID]; ruled {
		for _, f := range statFields {
			if v, ok := ev.Fields[f]; ok && v != nil {
				n.values[f] = append(n.values[f], v)
			}
		}
		return
	}
	for f, v := range ev.Fields {
		if models.IsReservedField(f) || v == nil {
			continue
		}
		n.values[f] = append(n.values[f], v)
	}
}

// export materializes the arena into the nested output shape, iteratively
// so exporting a deep path costs no call stack. Re-seeding truncates the
// arena, so every slot belongs to the current tree.
func (b *TreeBuilder) export(root int32) *AggregationNode {
	out := make([]*AggregationNode, len(b.arena))
	for i := range b.arena {
		n := &b.arena[i]
		out[i] = &AggregationNode{
			EventID:    n.eventID,
			MergeKey:   n.mergeKey,
			Occurrence: n.occ,
			Values:     n.values,
			ClientIDs:  n.clients,
			Times:      n.times,
		}
	}
	for i := range b.arena {
		for _, ci := range b.arena[i].children {
			out[i].Children = append(out[i].Children, out[ci])
		}
	}
	return out[root]
}

// Prune drops descendants whose occurrence share of the root falls below
// minSharePercent. The root itself is always kept.
func Prune(root *AggregationNode, minSharePercent float64) *AggregationNode {
	if root == nil || minSharePercent <= 0 || root.Occurrence == 0 {
		return root
	}
	cutoff := minSharePercent / 100 * float64(root.Occurrence)
	stack := []*AggregationNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		kept := n.Children[:0]
		for _, c := range n.Children {
			if float64(c.Occurrence) >= cutoff {
				kept = append(kept, c)
				stack = append(stack, c)
			}
		}
		n.Children = kept
	}
	return root
}
