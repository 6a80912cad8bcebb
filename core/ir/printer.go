package ir

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// PrintOptions tune graph dumps.
type PrintOptions struct {
	// RegisterName names register codes in allocated graphs.
	RegisterName func(int) string
	// BlockHeader decorates block header lines, for example with color.
	BlockHeader func(string) string
	// Allocation includes locations when the graph has been allocated.
	Allocation bool
}

func (o PrintOptions) header(s string) string {
	if o.BlockHeader != nil {
		return o.BlockHeader(s)
	}
	return s
}

// Print writes a textual dump of g.
func Print(w io.Writer, g *Graph, opts PrintOptions) error {
	bw := bufio.NewWriter(w)
	for _, id := range g.order {
		b := g.Block(id)
		fmt.Fprintln(bw, opts.header(blockHeader(b)))
		for _, pid := range b.Phis() {
			fmt.Fprintf(bw, "    %s\n", formatNode(g.Node(pid), opts))
		}
		for _, nid := range b.Nodes {
			fmt.Fprintf(bw, "    %s\n", formatNode(g.Node(nid), opts))
		}
		if b.IsFinished() {
			fmt.Fprintf(bw, "    %s\n", formatNode(g.Node(b.Control), opts))
		}
	}
	return bw.Flush()
}

// String dumps g without allocation details.
func (g *Graph) String() string {
	var buf bytes.Buffer
	Print(&buf, g, PrintOptions{})
	return buf.String()
}

func blockHeader(b *BasicBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Block b%d", b.ID)
	if b.Offset >= 0 {
		fmt.Fprintf(&sb, " @%d", b.Offset)
	} else {
		sb.WriteString(" prologue")
	}
	if b.Function != "" {
		fmt.Fprintf(&sb, " [%s", b.Function)
		if b.Depth > 0 {
			fmt.Fprintf(&sb, " depth=%d", b.Depth)
		}
		sb.WriteString("]")
	}
	if b.IsLoopHeader() {
		sb.WriteString(" loop")
	}
	if b.Deferred {
		sb.WriteString(" deferred")
	}
	if preds := b.Predecessors(); len(preds) > 0 {
		sb.WriteString(" preds")
		for _, p := range preds {
			fmt.Fprintf(&sb, " b%d", p)
		}
	}
	return sb.String()
}

func formatNode(n *Node, opts PrintOptions) string {
	s := n.String()
	if n.Feedback.IsValid() {
		s += " {" + n.Feedback.String() + "}"
	}
	for i, e := range n.Edges {
		if i == 0 {
			s += " ->"
		}
		s += fmt.Sprintf(" b%d", e.Target)
		if opts.Allocation && len(e.Moves) > 0 {
			parts := make([]string, len(e.Moves))
			for j, m := range e.Moves {
				parts[j] = m.To.Format(opts.RegisterName) + "<-" + m.From.Format(opts.RegisterName)
			}
			s += "(" + strings.Join(parts, " ") + ")"
		}
	}
	if !opts.Allocation {
		return s
	}
	if n.Op == OpGapMove {
		m := n.Move()
		return fmt.Sprintf("gap %s <- %s (n%d)", m.To.Format(opts.RegisterName), m.From.Format(opts.RegisterName), m.Value)
	}
	if len(n.InputLocations) > 0 {
		parts := make([]string, len(n.InputLocations))
		for i, l := range n.InputLocations {
			parts[i] = l.Format(opts.RegisterName)
		}
		s += " [" + strings.Join(parts, ", ") + "]"
	}
	if len(n.Temporaries) > 0 {
		parts := make([]string, len(n.Temporaries))
		for i, l := range n.Temporaries {
			parts[i] = l.Format(opts.RegisterName)
		}
		s += " temps(" + strings.Join(parts, ", ") + ")"
	}
	if n.HasResult() {
		s += " → " + n.Result.Format(opts.RegisterName)
		if n.Spill.IsAllocated() && n.Spill != n.Result {
			s += " spill " + n.Spill.Format(opts.RegisterName)
		}
	}
	return s
}

// DOT renders the block graph in Graphviz format.
func DOT(g *Graph, title string) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fmt.Fprintln(w, "digraph Graph {")
	fmt.Fprintln(w, "  node [shape=box, fontname=\"monospace\"];")
	if title != "" {
		fmt.Fprintf(w, "  labelloc=\"t\";\n  label=\"%s\";\n", escapeDOT(title))
	}
	for _, id := range g.order {
		b := g.Block(id)
		lines := []string{blockHeader(b)}
		for _, pid := range b.Phis() {
			lines = append(lines, g.Node(pid).String())
		}
		for _, nid := range b.Nodes {
			lines = append(lines, g.Node(nid).String())
		}
		lines = append(lines, g.Node(b.Control).String())
		style := ""
		if b.Deferred {
			style = ", style=dashed"
		}
		fmt.Fprintf(w, "  b%d [label=\"%s\\l\"%s];\n", id, escapeDOT(strings.Join(lines, "\n")), style)
	}
	for _, id := range g.order {
		ctrl := g.Node(g.Block(id).Control)
		for i, e := range ctrl.Edges {
			attr := ""
			switch {
			case ctrl.Op.IsConditional() && i == 0:
				attr = " [label=\"T\"]"
			case ctrl.Op.IsConditional():
				attr = " [label=\"F\"]"
			case ctrl.Op == OpJumpLoop:
				attr = " [style=dashed, constraint=false]"
			}
			fmt.Fprintf(w, "  b%d -> b%d%s;\n", id, e.Target, attr)
		}
	}
	fmt.Fprintln(w, "}")
	w.Flush()
	return buf.Bytes()
}

func escapeDOT(s string) string {
	// Left-justify lines; Graphviz interprets \l itself.
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\l")
	return s
}
