package service

import (
	"strings"
	"taxonomy_admin/internal/hierarchy"
	"taxonomy_admin/internal/repository"
	"taxonomy_admin/pkg/log"
)

// EditorService 管理节点的编辑者角色，可选地级联到全部后代。
// 级联需要的分类树管理员权限由调用方（handler）校验。
type EditorService interface {
	SetEditors(taxonomyID, nodeID uint, roles []string, applyToChildren bool) error
	Editors(taxonomyID, nodeID uint) ([]string, error)
}

type editorService struct {
	nodeRepo repository.NodeRepository
	// atomic 为 true 时级联在一个事务里完成，任一失败整体回滚
	atomic bool
}

func NewEditorService(nodeRepo repository.NodeRepository, atomicCascade bool) EditorService {
	return &editorService{nodeRepo: nodeRepo, atomic: atomicCascade}
}

func (s *editorService) Editors(taxonomyID, nodeID uint) ([]string, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.nodeRepo.FindByID(taxonomyID, nodeID); err != nil {
		return nil, mapNodeError(err)
	}
	roles, err := s.nodeRepo.FindEditors(nodeID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}

// SetEditors 用 roles 整体替换节点的编辑者集合，空列表表示清空。
// applyToChildren 为 true 时按深度优先先序把同样的集合写到每个后代。
// 非事务模式下单个节点失败不会中断级联，最后返回 *CascadeError。
func (s *editorService) SetEditors(taxonomyID, nodeID uint, roles []string, applyToChildren bool) error {
	if s.nodeRepo == nil {
		return ErrInternal
	}
	if taxonomyID == 0 || nodeID == 0 {
		return ErrInvalidInput
	}
	roles = normalizeRoles(roles)

	if _, err := s.nodeRepo.FindByID(taxonomyID, nodeID); err != nil {
		return mapNodeError(err)
	}

	if !applyToChildren {
		if err := s.nodeRepo.ReplaceEditors(nodeID, roles); err != nil {
			return err
		}
		log.Infow("taxonomy node editors set", "taxonomy_id", taxonomyID, "node_id", nodeID, "roles", roles)
		return nil
	}

	if s.atomic {
		err := s.nodeRepo.Transaction(func(repo repository.NodeRepository) error {
			return cascadeEditors(repo, taxonomyID, nodeID, roles, true)
		})
		if err != nil {
			log.Warnw("taxonomy editor cascade rolled back", "taxonomy_id", taxonomyID, "node_id", nodeID, "error", err)
			return err
		}
	} else if err := cascadeEditors(s.nodeRepo, taxonomyID, nodeID, roles, false); err != nil {
		log.Warnw("taxonomy editor cascade partially applied", "taxonomy_id", taxonomyID, "node_id", nodeID, "error", err)
		return err
	}

	log.Infow("taxonomy node editors cascaded", "taxonomy_id", taxonomyID, "node_id", nodeID, "roles", roles)
	return nil
}

// cascadeEditors 对 root 及其后代逐个写入编辑者。
// stopOnError 为 true 时（事务内）遇错立即返回，由事务回滚。
func cascadeEditors(repo repository.NodeRepository, taxonomyID, root uint, roles []string, stopOnError bool) error {
	nodes, err := repo.FindAllByTaxonomy(taxonomyID)
	if err != nil {
		return err
	}
	order := preOrder(hierarchy.Build(nodes), root)

	var cerr *CascadeError
	applied := make([]uint, 0, len(order))
	for _, id := range order {
		if err := repo.ReplaceEditors(id, roles); err != nil {
			if cerr == nil {
				cerr = &CascadeError{NodeID: id, Err: err}
			}
			cerr.Failed = append(cerr.Failed, id)
			if stopOnError {
				return cerr
			}
			continue
		}
		applied = append(applied, id)
	}
	if cerr != nil {
		cerr.Applied = applied
		return cerr
	}
	return nil
}

// preOrder 返回深度优先先序（父节点先于子节点）的 id 列表。
func preOrder(tree *hierarchy.Tree, root uint) []uint {
	var order []uint
	visited := hierarchy.NewIDSet()
	stack := []uint{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Has(id) {
			continue
		}
		visited.Add(id)
		order = append(order, id)

		children := tree.Children(id)
		// 逆序入栈，保证按子节点原顺序访问
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return order
}

// normalizeRoles 去掉首尾空白、丢弃空值并去重，保留首次出现的顺序。
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
