// Package hierarchy 把一棵分类树的 parent 指针整理成邻接表（parentID -> children），
// 在其上提供后代、祖先、长辈（祖先 + 各层兄弟）查询。
//
// 邻接表每次查询重建一次，之后的遍历都是线性的。
// 所有遍历都带 visited 集合：正常数据不会成环，但修复工具可能在脏数据上调用这里。
package hierarchy

import (
	"sort"
	"taxonomy_admin/internal/model"
)

// IDSet 是节点 id 集合
type IDSet map[uint]struct{}

func NewIDSet(ids ...uint) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id uint) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id uint) bool {
	_, ok := s[id]
	return ok
}

// Union 把 other 合并进 s
func (s IDSet) Union(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Sorted 返回升序的 id 列表，方便测试和日志输出
func (s IDSet) Sorted() []uint {
	ids := make([]uint, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tree 是一棵分类树的只读邻接表快照。
type Tree struct {
	nodes    IDSet
	parent   map[uint]uint
	children map[uint][]uint
	roots    []uint
}

// Build 由节点列表构建邻接表。
// parent 指向的节点不在列表里时（悬挂引用），该节点按根节点处理，避免节点从树上丢失。
func Build(nodes []model.Node) *Tree {
	t := &Tree{
		nodes:    make(IDSet, len(nodes)),
		parent:   make(map[uint]uint, len(nodes)),
		children: make(map[uint][]uint),
	}
	for _, n := range nodes {
		t.nodes.Add(n.ID)
	}

	for _, n := range nodes {
		if n.ParentID != nil && *n.ParentID != n.ID && t.nodes.Has(*n.ParentID) {
			t.parent[n.ID] = *n.ParentID
			t.children[*n.ParentID] = append(t.children[*n.ParentID], n.ID)
			continue
		}
		t.roots = append(t.roots, n.ID)
	}
	return t
}

// Has 判断节点是否在树中
func (t *Tree) Has(id uint) bool {
	return t.nodes.Has(id)
}

// IDs 返回全部节点 id，升序
func (t *Tree) IDs() []uint {
	return t.nodes.Sorted()
}

// Roots 返回所有根节点 id
func (t *Tree) Roots() []uint {
	return append([]uint(nil), t.roots...)
}

// Children 返回直接子节点 id
func (t *Tree) Children(id uint) []uint {
	return append([]uint(nil), t.children[id]...)
}

// Parent 返回父节点 id，根节点返回 false
func (t *Tree) Parent(id uint) (uint, bool) {
	p, ok := t.parent[id]
	return p, ok
}

// HasChildren 判断节点当前是否有直接子节点
func (t *Tree) HasChildren(id uint) bool {
	return len(t.children[id]) > 0
}

// NodesWithChildren 返回所有至少有一个子节点的节点集合，树查询时只计算一次。
func (t *Tree) NodesWithChildren() IDSet {
	s := make(IDSet, len(t.children))
	for id, kids := range t.children {
		if len(kids) > 0 {
			s.Add(id)
		}
	}
	return s
}

// DescendantsAndSelf 收集节点自身及其全部后代。
// firstLevelOnly 为 true 时只收集直接子节点和自身。
// 未知 id 返回空集合。
func (t *Tree) DescendantsAndSelf(id uint, firstLevelOnly bool) IDSet {
	result := make(IDSet)
	if !t.Has(id) {
		return result
	}
	result.Add(id)

	if firstLevelOnly {
		for _, child := range t.children[id] {
			result.Add(child)
		}
		return result
	}

	stack := []uint{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range t.children[current] {
			if result.Has(child) {
				continue
			}
			result.Add(child)
			stack = append(stack, child)
		}
	}
	return result
}

// AncestorsAndSelf 沿 parent 向上走到根，返回 根 -> 自身 顺序的 id 列表。
// 未知 id 返回空列表。
func (t *Tree) AncestorsAndSelf(id uint) []uint {
	if !t.Has(id) {
		return nil
	}

	chain := []uint{id}
	visited := NewIDSet(id)
	current := id
	for {
		p, ok := t.parent[current]
		if !ok || visited.Has(p) {
			break
		}
		visited.Add(p)
		chain = append(chain, p)
		current = p
	}

	// 逆序成 根 -> 自身
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// EldersAndSelf 返回自身、全部祖先，以及每个祖先的全部直接子节点（即每一层的兄弟）。
// 这是树形控件自动展开到某节点时，为了让每层兄弟行可见而必须加载的最小集合。
func (t *Tree) EldersAndSelf(id uint) IDSet {
	result := make(IDSet)
	chain := t.AncestorsAndSelf(id)
	for i, ancestor := range chain {
		result.Add(ancestor)
		if i == len(chain)-1 {
			break
		}
		for _, child := range t.children[ancestor] {
			result.Add(child)
		}
	}
	return result
}

// IsDescendantOrSelf 判断 candidate 是否是 id 自身或其后代。
func (t *Tree) IsDescendantOrSelf(id, candidate uint) bool {
	for _, a := range t.AncestorsAndSelf(candidate) {
		if a == id {
			return true
		}
	}
	return false
}
