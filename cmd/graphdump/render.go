package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/bnb-chain/midtier/core/compiler"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/ir"
	"github.com/bnb-chain/midtier/core/regalloc"
)

type renderOptions struct {
	allocation bool
	color      bool
}

type renderer func(w io.Writer, fns []*feedback.JSFunction, outcomes []compiler.Outcome, opts renderOptions) error

var renderers = map[string]renderer{
	"text":  renderText,
	"table": renderTable,
	"dot":   renderDOT,
	"svg":   renderSVG,
}

func renderText(w io.Writer, fns []*feedback.JSFunction, outcomes []compiler.Outcome, opts renderOptions) error {
	title := color.New(color.FgGreen, color.Bold)
	header := color.New(color.FgCyan)
	if !opts.color {
		title.DisableColor()
		header.DisableColor()
	}
	for i, o := range outcomes {
		if o.Artifact == nil {
			continue
		}
		art := o.Artifact
		fmt.Fprintln(w, title.Sprintf("=== %s (%s)", fns[i].Name(), summary(art)))
		if art.Unsupported != nil {
			fmt.Fprintf(w, "partial graph: %v\n", art.Unsupported)
		}
		popts := ir.PrintOptions{
			RegisterName: regalloc.RegisterName,
			BlockHeader:  func(s string) string { return header.Sprint(s) },
			Allocation:   opts.allocation && art.Allocated(),
		}
		if err := ir.Print(w, art.Graph, popts); err != nil {
			return err
		}
	}
	return nil
}

func summary(art *compiler.Artifact) string {
	s := fmt.Sprintf("%d blocks, %d inlined, %s", art.Graph.NumBlocks(), art.InlinedCalls, common.PrettyDuration(art.Elapsed))
	if art.Allocated() {
		s += ", " + art.Stats.String()
	}
	return s
}

func renderTable(w io.Writer, fns []*feedback.JSFunction, outcomes []compiler.Outcome, _ renderOptions) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Function", "Blocks", "Nodes", "Inlined", "Deopts", "Slots", "Gap moves", "Edge moves", "Evictions", "Elapsed", "Status"})
	var ok, total int
	for i, o := range outcomes {
		total++
		row := []string{fns[i].Name(), "", "", "", "", "", "", "", "", "", ""}
		if art := o.Artifact; art != nil {
			row[1] = strconv.Itoa(art.Graph.NumBlocks())
			row[2] = strconv.Itoa(art.Graph.NumNodes())
			row[3] = strconv.Itoa(art.InlinedCalls)
			row[4] = strconv.Itoa(art.UnconditionalDeopts)
			row[9] = common.PrettyDuration(art.Elapsed).String()
			if st := art.Stats; st != nil {
				row[5] = fmt.Sprintf("%d+%d", st.TaggedSlots, st.UntaggedSlots)
				row[6] = strconv.Itoa(st.GapMoves)
				row[7] = strconv.Itoa(st.EdgeMoves)
				row[8] = strconv.Itoa(st.Evictions)
			}
		}
		switch {
		case o.Err != nil:
			row[10] = o.Err.Error()
		case o.Artifact.Unsupported != nil:
			row[10] = "partial"
		default:
			row[10] = "ok"
			ok++
		}
		table.Append(row)
	}
	table.SetFooter([]string{"", "", "", "", "", "", "", "", "", "Compiled", fmt.Sprintf("%d/%d", ok, total)})
	table.Render()
	return nil
}

func buildDOT(fns []*feedback.JSFunction, outcomes []compiler.Outcome) ([]byte, error) {
	var graphs [][]byte
	for i, o := range outcomes {
		if o.Artifact != nil {
			graphs = append(graphs, ir.DOT(o.Artifact.Graph, fns[i].Name()))
		}
	}
	switch len(graphs) {
	case 0:
		return nil, errors.New("no graph to draw")
	case 1:
		return graphs[0], nil
	}
	return nil, fmt.Errorf("dot output needs a single function, got %d graphs (use --function)", len(graphs))
}

func renderDOT(w io.Writer, fns []*feedback.JSFunction, outcomes []compiler.Outcome, _ renderOptions) error {
	dot, err := buildDOT(fns, outcomes)
	if err != nil {
		return err
	}
	_, err = w.Write(dot)
	return err
}

// renderSVG pipes the DOT output through graphviz.
func renderSVG(w io.Writer, fns []*feedback.JSFunction, outcomes []compiler.Outcome, _ renderOptions) error {
	dot, err := buildDOT(fns, outcomes)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath("dot"); err != nil {
		return errors.New("dot not found in PATH; install graphviz or choose --format=dot")
	}
	var svg bytes.Buffer
	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = bytes.NewReader(dot)
	cmd.Stdout = &svg
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dot render: %w", err)
	}
	_, err = w.Write(svg.Bytes())
	return err
}
