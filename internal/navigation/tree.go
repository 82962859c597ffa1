// Package navigation assembles the role-filtered menu forest from the feature registry.
package navigation

import (
	"cmp"
	"slices"

	"github.com/medcore/gateway-reconciler/internal/storage"
)

// Node is one feature in the navigation forest.
type Node struct {
	ID         int64    `json:"id"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Icon       string   `json:"icon,omitempty"`
	Route      string   `json:"route,omitempty"`
	ParentID   *int64   `json:"parentId,omitempty"`
	OrderIndex int      `json:"orderIndex"`
	RoleCodes  []string `json:"roleCodes"`
	Children   []*Node  `json:"children"`
}

// Build turns flat (feature, matched role) rows into an ordered forest.
//
// Rows for the same feature are merged and their role codes unioned. A feature
// whose parent is not among the rows is dropped together with its subtree.
// Siblings are ordered by OrderIndex, then ID. Parent cycles terminate: nodes are
// placed at most once and nodes reachable only through a cycle are dropped.
func Build(rows []*storage.Feature) []*Node {
	arena := make(map[int64]*Node, len(rows))
	roleSets := make(map[int64]map[string]struct{}, len(rows))
	var order []int64

	for _, f := range rows {
		n, ok := arena[f.ID]
		if !ok {
			n = &Node{
				ID:         f.ID,
				Code:       f.Code,
				Name:       f.Name,
				Icon:       f.Icon,
				Route:      f.Route,
				ParentID:   f.ParentID,
				OrderIndex: f.OrderIndex,
				Children:   []*Node{},
			}
			arena[f.ID] = n
			roleSets[f.ID] = make(map[string]struct{})
			order = append(order, f.ID)
		}
		for _, code := range f.RoleCodes {
			roleSets[f.ID][code] = struct{}{}
		}
	}

	roots := make([]*Node, 0)
	children := make(map[int64][]*Node)
	for _, id := range order {
		n := arena[id]
		n.RoleCodes = make([]string, 0, len(roleSets[id]))
		for code := range roleSets[id] {
			n.RoleCodes = append(n.RoleCodes, code)
		}
		slices.Sort(n.RoleCodes)

		switch {
		case n.ParentID == nil:
			roots = append(roots, n)
		case arena[*n.ParentID] != nil:
			children[*n.ParentID] = append(children[*n.ParentID], n)
		}
	}

	visited := make(map[int64]bool, len(arena))
	var attach func(n *Node)
	attach = func(n *Node) {
		visited[n.ID] = true
		for _, c := range children[n.ID] {
			if visited[c.ID] {
				continue
			}
			n.Children = append(n.Children, c)
			attach(c)
		}
		sortNodes(n.Children)
	}

	sortNodes(roots)
	for _, r := range roots {
		attach(r)
	}
	return roots
}

func sortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		if c := cmp.Compare(a.OrderIndex, b.OrderIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
