// Package pass implements the ordered transformations of §4.4 step 3-5:
// SSA construction, the IR optimizations, and Leave-SSA. Each pass is a
// plain function over an *ir.Builder, run in the fixed order the Method
// Compiler's stage pipeline (compiler package) calls them in.
package pass

import "github.com/stjordanis/MOSA-Project/ir"

// Dominance computes immediate dominators, dominance frontiers, and loop
// headers for every reachable block in b, using the "Simple, Fast
// Dominance Algorithm" of Cooper, Harvey & Kennedy — the same algorithm
// and reverse-postorder worklist structure as the teacher's
// passCalculateImmediateDominators, generalized here to also compute
// dominance frontiers (needed for classical phi placement in
// placePhis, where the teacher instead relies on incremental
// block-parameter construction and has no explicit frontier step).
func Dominance(b *ir.Builder) {
	rpo := reversePostOrder(b)
	for i, blk := range rpo {
		blk.SetReversePostOrder(i)
	}

	doms := make(map[ir.BasicBlockID]*ir.BasicBlock, len(rpo))
	if len(rpo) == 0 {
		return
	}
	entry := rpo[0]
	doms[entry.ID()] = entry

	changed := true
	for changed {
		changed = false
		for _, blk := range rpo[1:] {
			var newIdom *ir.BasicBlock
			for _, pred := range blk.Preds() {
				if !pred.Valid() {
					continue
				}
				if _, ok := doms[pred.ID()]; !ok {
					continue
				}
				if newIdom == nil {
					newIdom = pred
					continue
				}
				newIdom = intersect(doms, newIdom, pred)
			}
			if cur, ok := doms[blk.ID()]; !ok || cur != newIdom {
				doms[blk.ID()] = newIdom
				changed = true
			}
		}
	}

	for _, blk := range rpo {
		idom := doms[blk.ID()]
		blk.SetIDom(idom)
		if idom != nil && idom != blk {
			idom.AddDomChild(blk)
		}
	}

	computeDominanceFrontiers(rpo, doms)
	detectLoops(b)
}

func intersect(doms map[ir.BasicBlockID]*ir.BasicBlock, a, bb *ir.BasicBlock) *ir.BasicBlock {
	for a != bb {
		for a.ReversePostOrder() > bb.ReversePostOrder() {
			a = doms[a.ID()]
		}
		for bb.ReversePostOrder() > a.ReversePostOrder() {
			bb = doms[bb.ID()]
		}
	}
	return a
}

// computeDominanceFrontiers implements the standard Cytron-et-al algorithm:
// for every block with >=2 predecessors, walk up each predecessor's
// dominator chain (stopping at the block's own idom) adding the block to
// every node visited's frontier.
func computeDominanceFrontiers(rpo []*ir.BasicBlock, doms map[ir.BasicBlockID]*ir.BasicBlock) {
	for _, blk := range rpo {
		if blk.PredCount() < 2 {
			continue
		}
		idom := doms[blk.ID()]
		for _, pred := range blk.Preds() {
			if _, ok := doms[pred.ID()]; !ok {
				continue
			}
			runner := pred
			for runner != idom && runner != nil {
				runner.AddDomFrontier(blk)
				runner = doms[runner.ID()]
			}
		}
	}
}

func detectLoops(b *ir.Builder) {
	for _, blk := range b.Blocks() {
		if !blk.Valid() {
			continue
		}
		for _, pred := range blk.Preds() {
			if !pred.Valid() {
				continue
			}
			if isDominatedBy(pred, blk) {
				blk.MarkLoopHeader()
			}
		}
	}
}

func isDominatedBy(blk, possibleDom *ir.BasicBlock) bool {
	for cur := blk; cur != nil; cur = cur.IDom() {
		if cur == possibleDom {
			return true
		}
		if cur.IDom() == cur {
			break
		}
	}
	return false
}

// reversePostOrder computes a reverse-postorder traversal from the
// builder's entry block, skipping invalidated blocks, matching the
// teacher's passCalculateImmediateDominators traversal.
func reversePostOrder(b *ir.Builder) []*ir.BasicBlock {
	visited := make(map[ir.BasicBlockID]bool)
	var postorder []*ir.BasicBlock
	var visit func(*ir.BasicBlock)
	visit = func(blk *ir.BasicBlock) {
		if !blk.Valid() || visited[blk.ID()] {
			return
		}
		visited[blk.ID()] = true
		for _, succ := range blk.Succs() {
			visit(succ)
		}
		postorder = append(postorder, blk)
	}
	visit(b.EntryBlock())
	// Reverse in place.
	for i, j := 0, len(postorder)-1; i < j; i, j = i+1, j-1 {
		postorder[i], postorder[j] = postorder[j], postorder[i]
	}
	return postorder
}
