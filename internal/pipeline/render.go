package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is a serializable view of a term
type Node struct {
	Kind   string      `json:"kind"`
	Label  string      `json:"label,omitempty"`
	Column string      `json:"column,omitempty"`
	Window int         `json:"window,omitempty"`
	Op     string      `json:"op,omitempty"`
	Value  interface{} `json:"value,omitempty"`
	Mask   *Node       `json:"mask,omitempty"`
	Inputs []*Node     `json:"inputs,omitempty"`
}

// Describe converts a term tree into Nodes
func Describe(t Term) *Node {
	if t == nil {
		return nil
	}

	n := &Node{
		Kind:  t.Kind().String(),
		Label: t.Label(),
	}
	if t.WindowLength() > 1 {
		n.Window = t.WindowLength()
	}

	switch v := t.(type) {
	case *latestFactor:
		n.Column = v.col.Key()
	case *latestClassifier:
		n.Column = v.col.Key()
	case *allPresent:
		n.Column = v.col.Key()
	case *averageDollarVolume:
		n.Column = EquityPricing.Close.Key() + "*" + EquityPricing.Volume.Key()
	case *classifierEq:
		n.Op = "=="
		n.Value = v.value
	case *compare:
		n.Op = string(v.op)
		n.Value = v.value
	}

	n.Mask = Describe(t.Mask())
	for _, in := range t.Inputs() {
		n.Inputs = append(n.Inputs, Describe(in))
	}
	return n
}

// Render prints the term tree, one node per line
func Render(t Term) string {
	var sb strings.Builder
	renderNode(&sb, Describe(t), 0, "")
	return sb.String()
}

func renderNode(sb *strings.Builder, n *Node, depth int, prefix string) {
	if n == nil {
		return
	}

	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(prefix)
	sb.WriteString(n.Kind)
	if n.Column != "" {
		sb.WriteString(" " + n.Column)
	}
	if n.Op != "" {
		sb.WriteString(" " + n.Op + " " + formatValue(n.Value))
	}
	if n.Window > 0 {
		sb.WriteString(" window=" + strconv.Itoa(n.Window))
	}
	if n.Label != "" {
		sb.WriteString(" [" + n.Label + "]")
	}
	sb.WriteString("\n")

	for _, in := range n.Inputs {
		renderNode(sb, in, depth+1, "")
	}
	renderNode(sb, n.Mask, depth+1, "mask: ")
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return strconv.Quote(x)
	default:
		return fmt.Sprint(x)
	}
}
