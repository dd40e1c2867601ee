package plan

import "github.com/orneryd/runegraph/pkg/storage"

// Per-row weights of the cost model. Scans are cheap per row, expansions
// and materializations cost more.
const (
	costScanRow      = 1.0
	costExpandRow    = 3.0
	costFilterRow    = 0.5
	costMaterialize  = 2.0
	costDefaultRow   = 1.0
	expandFanOut     = 4.0
	filterSelectvity = 0.5
)

// EstimateCost walks the tree bottom-up, estimating output cardinality
// from accessor statistics and accumulating expected rows x per-row
// weight.
func EstimateCost(op Operator, acc *storage.Accessor) float64 {
	cost, _ := estimate(op, acc)
	return cost
}

func estimate(op Operator, acc *storage.Accessor) (cost, rows float64) {
	var inCost, inRows float64
	switch len(op.Inputs()) {
	case 0:
		inCost, inRows = 0, 1
	default:
		for _, in := range op.Inputs() {
			c, r := estimate(in, acc)
			inCost += c
			if inRows == 0 {
				inRows = r
			} else {
				inRows *= r
			}
		}
	}

	switch o := op.(type) {
	case *Once:
		return 0, 1
	case *ScanAll:
		rows = inRows * float64(acc.VertexCount())
		return inCost + rows*costScanRow, rows
	case *ScanAllByLabel:
		rows = inRows * float64(acc.VertexCountByLabel(o.Label))
		return inCost + rows*costScanRow, rows
	case *ScanAllByLabelPropertyValue:
		card := float64(acc.IndexCardinality(o.Label, o.Property))
		// Equality on an index hits a small slice of its entries.
		rows = inRows * max1(card/10)
		return inCost + rows*costScanRow, rows
	case *ScanAllByLabelPropertyRange:
		card := float64(acc.IndexCardinality(o.Label, o.Property))
		rows = inRows * max1(card/4)
		return inCost + rows*costScanRow, rows
	case *Expand:
		rows = inRows * expandFanOut
		return inCost + rows*costExpandRow, rows
	case *ExpandVariable, *ExpandBFS:
		rows = inRows * expandFanOut * expandFanOut
		return inCost + rows*costExpandRow, rows
	case *Filter, *NodeFilter, *EdgeFilter:
		rows = max1(inRows * filterSelectvity)
		return inCost + inRows*costFilterRow, rows
	case *EdgeUniquenessFilter:
		rows = max1(inRows * filterSelectvity)
		return inCost + inRows*costFilterRow, rows
	case *OrderBy, *Aggregate, *Accumulate, *Distinct:
		return inCost + inRows*costMaterialize, max1(inRows)
	case *Cartesian:
		return inCost + inRows*costMaterialize, max1(inRows)
	case *Limit:
		return inCost, max1(inRows / 2)
	}
	return inCost + inRows*costDefaultRow, max1(inRows)
}

func max1(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}
