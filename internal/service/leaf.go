package service

import (
	"taxonomy_admin/internal/hierarchy"
	"taxonomy_admin/internal/model"
	"taxonomy_admin/internal/repository"
)

// 叶子标记维护：NotLeaf 是"至少有一个直接子节点"的缓存。
// 仓库层不维护它，每个改变邻接关系的操作在同一事务里调用下面的函数。
//
//   - 新建子节点：父节点原来是叶子则置 true
//   - 移动节点：旧父节点没有剩余子节点则置 false；新父节点原来是叶子则置 true
//   - 删除节点：父节点没有剩余子节点则置 false

// markHasChild 在 parent 新增了一个子节点后调用。
func markHasChild(repo repository.NodeRepository, parent *model.Node) error {
	if parent == nil || parent.NotLeaf {
		return nil
	}
	if err := repo.UpdateNotLeaf(parent.TaxonomyID, parent.ID, true); err != nil {
		return err
	}
	parent.NotLeaf = true
	return nil
}

// repairAfterChildRemoved 在 parentID 失去一个子节点后调用（移走或删除）。
func repairAfterChildRemoved(repo repository.NodeRepository, taxonomyID uint, parentID *uint) error {
	if parentID == nil {
		return nil
	}
	remaining, err := repo.CountChildren(taxonomyID, *parentID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return repo.UpdateNotLeaf(taxonomyID, *parentID, false)
}

// repairAllLeafFlags 按当前邻接关系重算整棵树的 NotLeaf，返回被修正的节点数。
// 供修复工具在不一致的数据上使用。
func repairAllLeafFlags(repo repository.NodeRepository, taxonomyID uint) (int, error) {
	nodes, err := repo.FindAllByTaxonomy(taxonomyID)
	if err != nil {
		return 0, err
	}
	tree := hierarchy.Build(nodes)

	fixed := 0
	for _, n := range nodes {
		want := tree.HasChildren(n.ID)
		if n.NotLeaf == want {
			continue
		}
		if err := repo.UpdateNotLeaf(taxonomyID, n.ID, want); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}
