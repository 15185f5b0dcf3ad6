package liveness

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/xlab/treeprint"
)

func setString(s *bitset.BitSet) string {
	var parts []string
	for v, ok := s.NextSet(0); ok; v, ok = s.NextSet(v + 1) {
		parts = append(parts, fmt.Sprintf("%%%d", v))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Dump renders the block layout with live sets, the value intervals and
// the fixed register intervals as a tree.
func (r *Result) Dump() string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("liveness @%s (%d positions)", r.Func.Name, r.NumPositions))

	blocks := tree.AddBranch("blocks")
	for _, bi := range r.Order {
		b := blocks.AddBranch(fmt.Sprintf("%s [%d,%d)", bi.Block.ID, bi.From, bi.To))
		b.AddNode("in  " + setString(bi.LiveIn))
		b.AddNode("out " + setString(bi.LiveOut))
	}

	values := tree.AddBranch("intervals")
	for _, iv := range r.Intervals() {
		values.AddNode(iv.String())
	}

	if len(r.Fixed) > 0 {
		fixed := tree.AddBranch("fixed")
		for _, reg := range sortedRegs(r.Fixed) {
			iv := r.Fixed[reg]
			parts := make([]string, len(iv.Ranges))
			for i, rg := range iv.Ranges {
				parts[i] = rg.String()
			}
			fixed.AddNode(fmt.Sprintf("%s %s", reg, strings.Join(parts, " ")))
		}
	}
	return tree.String()
}
