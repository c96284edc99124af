package core

import (
	"bufio"
	"fmt"
	"io"

	"microcosm/pkg/domain"
)

// Visualize writes the history tree as ascii art.
func Visualize(w io.Writer, h *History) error {
	return RenderTree(w, h.ToJSON().Tree)
}

// RenderTree writes node and its descendants, one action per line:
//
//	add (resolve)
//	├─ add (resolve)
//	│  └─ remove (open)
//	└─ add (reject) [disabled]
func RenderTree(w io.Writer, node *domain.TreeNodeJSON) error {
	bw := bufio.NewWriter(w)
	if node != nil {
		fmt.Fprintln(bw, nodeLabel(*node))
		renderChildren(bw, node.Children, "")
	}
	return bw.Flush()
}

func renderChildren(w io.Writer, children []domain.TreeNodeJSON, prefix string) {
	for i, child := range children {
		branch, indent := "├─ ", "│  "
		if i == len(children)-1 {
			branch, indent = "└─ ", "   "
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, branch, nodeLabel(child))
		renderChildren(w, child.Children, prefix+indent)
	}
}

func nodeLabel(n domain.TreeNodeJSON) string {
	label := fmt.Sprintf("%s (%s)", n.Command, n.Status)
	if n.Disabled {
		label += " [disabled]"
	}
	return label
}
