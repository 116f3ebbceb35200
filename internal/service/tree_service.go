package service

import (
	"fmt"
	"sort"
	"strconv"
	"taxonomy_admin/internal/hierarchy"
	"taxonomy_admin/internal/model"
	"taxonomy_admin/internal/repository"
	"taxonomy_admin/pkg/log"
)

// TreeMode 是树查询的模式，每种模式只携带自己需要的参数。
// 模式集合是封闭的：只有本包内的类型能实现它。
type TreeMode interface {
	isTreeMode()
}

// NormalMode 返回整棵树，不做过滤。
type NormalMode struct{}

// NoChildrenMode 返回除 Anchor 整棵子树（含自身）以外的所有节点，
// 用于给节点挑选新父节点时排除它自己的子树。
type NoChildrenMode struct {
	Anchor uint
}

// OnlyChildrenMode 返回 Anchor 的直接子节点（不含 Anchor 与 Skip），用于懒加载展开一层。
type OnlyChildrenMode struct {
	Anchor uint
	Skip   *uint
}

// TopLevelMode 只返回根节点，可排除一个 Skip（比如正在移动的节点）。
type TopLevelMode struct {
	Skip *uint
}

// MinimalMode 返回能让每个已选节点可见且可展开的最小节点集合：
// 所有根节点 ∪ 每个已选节点的祖先链 ∪ 每个已选节点的直接子节点。
type MinimalMode struct {
	AlreadyPicked []uint
}

func (NormalMode) isTreeMode()       {}
func (NoChildrenMode) isTreeMode()   {}
func (OnlyChildrenMode) isTreeMode() {}
func (TopLevelMode) isTreeMode()     {}
func (MinimalMode) isTreeMode()      {}

// TreeRequest 描述一次树查询
type TreeRequest struct {
	TaxonomyID uint
	// LanguageID 为 0 时使用默认语言
	LanguageID uint
	// ExcludeDisabled 为 true 时不可选或已归档节点的标题替换为禁用文案
	ExcludeDisabled bool
	// Mode 为 nil 时按 NormalMode 处理
	Mode TreeMode
}

// TreeOptions 是树查询的运行参数，来自配置
type TreeOptions struct {
	DefaultLanguageID uint
	DisabledLabel     string
}

// TreeService 是树查询引擎：根据模式产出渲染树形控件所需的最小、有序节点列表，
// 同时对外暴露祖先/后代/长辈查询。
type TreeService interface {
	QueryNodes(req TreeRequest) ([]model.NodeView, error)
	Ancestors(taxonomyID, nodeID uint) ([]uint, error)
	Elders(taxonomyID, nodeID uint) ([]uint, error)
	Descendants(taxonomyID, nodeID uint, firstLevelOnly bool) ([]uint, error)
	Describe(taxonomyID, nodeID, languageID uint, excludeDisabled bool) (*model.NodeDetail, error)
}

type treeService struct {
	nodeRepo repository.NodeRepository
	opts     TreeOptions
}

func NewTreeService(nodeRepo repository.NodeRepository, opts TreeOptions) TreeService {
	if opts.DefaultLanguageID == 0 {
		opts.DefaultLanguageID = 1
	}
	return &treeService{nodeRepo: nodeRepo, opts: opts}
}

// QueryNodes 执行树查询。
// 过期的 Anchor / AlreadyPicked（节点可能已被并发删除）不会报错，只会让结果变窄：
//   - NoChildrenMode 的未知 Anchor 不排除任何节点（等同 NormalMode）
//   - OnlyChildrenMode 的未知 Anchor 退化为 TopLevelMode
//   - MinimalMode 忽略未知的已选 id
//
// 结果按 "父节点 id（根为 0）+ 显示名称" 拼成的键排序，同一父节点下的兄弟聚在一起。
func (s *treeService) QueryNodes(req TreeRequest) ([]model.NodeView, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if req.TaxonomyID == 0 {
		return nil, ErrInvalidInput
	}
	languageID := req.LanguageID
	if languageID == 0 {
		languageID = s.opts.DefaultLanguageID
	}

	nodes, err := s.nodeRepo.FindAllByTaxonomy(req.TaxonomyID)
	if err != nil {
		return nil, err
	}
	tree := hierarchy.Build(nodes)
	keep := selectNodes(tree, req.Mode)

	rows, err := s.nodeRepo.FindAttributeRows(req.TaxonomyID, languageID)
	if err != nil {
		return nil, err
	}
	labels := groupAttributeRows(rows)
	withChildren := tree.NodesWithChildren()

	views := make([]model.NodeView, 0, len(nodes))
	keys := make(map[uint]string, len(nodes))
	for _, n := range nodes {
		if keep != nil && !keep.Has(n.ID) {
			continue
		}
		var displayName string
		var attrs []AttributeValues
		if l, ok := labels[n.ID]; ok {
			displayName = l.displayName
			attrs = l.attrs
		}
		views = append(views, model.NodeView{
			ID:          n.ID,
			ParentID:    n.ParentID,
			DisplayName: displayName,
			Title:       BuildTitle(attrs, n.Selectable, n.StatusID, req.ExcludeDisabled, s.opts.DisabledLabel),
			HasChildren: withChildren.Has(n.ID),
			Selectable:  n.Selectable,
			StatusID:    n.StatusID,
		})
		keys[n.ID] = sortKey(n.ParentID, displayName)
	}

	sort.SliceStable(views, func(i, j int) bool {
		ki, kj := keys[views[i].ID], keys[views[j].ID]
		if ki != kj {
			return ki < kj
		}
		return views[i].ID < views[j].ID
	})

	log.Debugw("taxonomy tree query", "taxonomy_id", req.TaxonomyID, "mode", fmt.Sprintf("%T", req.Mode),
		"language_id", languageID, "total", len(nodes), "returned", len(views))
	return views, nil
}

// selectNodes 返回模式选中的节点集合，nil 表示不过滤。
func selectNodes(tree *hierarchy.Tree, mode TreeMode) hierarchy.IDSet {
	switch m := mode.(type) {
	case nil, NormalMode:
		return nil

	case NoChildrenMode:
		excluded := tree.DescendantsAndSelf(m.Anchor, false)
		if len(excluded) == 0 {
			return nil
		}
		keep := hierarchy.NewIDSet()
		for _, id := range tree.IDs() {
			if !excluded.Has(id) {
				keep.Add(id)
			}
		}
		return keep

	case OnlyChildrenMode:
		if !tree.Has(m.Anchor) {
			return topLevel(tree, m.Skip)
		}
		keep := tree.DescendantsAndSelf(m.Anchor, true)
		delete(keep, m.Anchor)
		if m.Skip != nil {
			delete(keep, *m.Skip)
		}
		return keep

	case TopLevelMode:
		return topLevel(tree, m.Skip)

	case MinimalMode:
		keep := hierarchy.NewIDSet(tree.Roots()...)
		for _, picked := range m.AlreadyPicked {
			for _, id := range tree.AncestorsAndSelf(picked) {
				keep.Add(id)
			}
			keep.Union(tree.DescendantsAndSelf(picked, true))
		}
		return keep

	default:
		return nil
	}
}

func topLevel(tree *hierarchy.Tree, skip *uint) hierarchy.IDSet {
	keep := hierarchy.NewIDSet(tree.Roots()...)
	if skip != nil {
		delete(keep, *skip)
	}
	return keep
}

func sortKey(parentID *uint, displayName string) string {
	if parentID == nil {
		return "0" + displayName
	}
	return strconv.FormatUint(uint64(*parentID), 10) + displayName
}

func (s *treeService) loadTree(taxonomyID, nodeID uint) (*hierarchy.Tree, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return nil, ErrInvalidInput
	}
	nodes, err := s.nodeRepo.FindAllByTaxonomy(taxonomyID)
	if err != nil {
		return nil, err
	}
	tree := hierarchy.Build(nodes)
	if !tree.Has(nodeID) {
		return nil, ErrNodeNotFound
	}
	return tree, nil
}

// Ancestors 返回 根 -> 自身 的 id 链
func (s *treeService) Ancestors(taxonomyID, nodeID uint) ([]uint, error) {
	tree, err := s.loadTree(taxonomyID, nodeID)
	if err != nil {
		return nil, err
	}
	return tree.AncestorsAndSelf(nodeID), nil
}

// Elders 返回自身、祖先和每层兄弟，升序
func (s *treeService) Elders(taxonomyID, nodeID uint) ([]uint, error) {
	tree, err := s.loadTree(taxonomyID, nodeID)
	if err != nil {
		return nil, err
	}
	return tree.EldersAndSelf(nodeID).Sorted(), nil
}

// Descendants 返回自身和后代，升序
func (s *treeService) Descendants(taxonomyID, nodeID uint, firstLevelOnly bool) ([]uint, error) {
	tree, err := s.loadTree(taxonomyID, nodeID)
	if err != nil {
		return nil, err
	}
	return tree.DescendantsAndSelf(nodeID, firstLevelOnly).Sorted(), nil
}

// Describe 返回单个节点的详情，标题规则与树查询一致。
// HasChildren 按实时子节点数计算，不读 NotLeaf 缓存。
func (s *treeService) Describe(taxonomyID, nodeID, languageID uint, excludeDisabled bool) (*model.NodeDetail, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return nil, ErrInvalidInput
	}
	if languageID == 0 {
		languageID = s.opts.DefaultLanguageID
	}

	node, err := s.nodeRepo.FindByID(taxonomyID, nodeID)
	if err != nil {
		return nil, mapNodeError(err)
	}
	rows, err := s.nodeRepo.FindNodeAttributeRows(taxonomyID, nodeID, languageID)
	if err != nil {
		return nil, err
	}
	childCount, err := s.nodeRepo.CountChildren(taxonomyID, nodeID)
	if err != nil {
		return nil, err
	}

	detail := &model.NodeDetail{Node: *node, HasChildren: childCount > 0}
	if l, ok := groupAttributeRows(rows)[nodeID]; ok {
		detail.DisplayName = l.displayName
		detail.Title = BuildTitle(l.attrs, node.Selectable, node.StatusID, excludeDisabled, s.opts.DisabledLabel)
	} else {
		detail.Title = BuildTitle(nil, node.Selectable, node.StatusID, excludeDisabled, s.opts.DisabledLabel)
	}
	return detail, nil
}
