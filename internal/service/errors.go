package service

import (
	"errors"
	"fmt"
	"taxonomy_admin/internal/repository"

	"gorm.io/gorm"
)

// 哨兵错误：对外统一语义，隐藏底层实现细节
var (
	// ErrInvalidInput 必填字段缺失或取值非法
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal 内部错误（对外不暴露细节）
	ErrInternal = errors.New("internal server error")

	ErrTaxonomyNotFound      = errors.New("taxonomy not found")
	ErrTaxonomyAlreadyExists = errors.New("taxonomy already exists")
	// ErrTaxonomyNotEmpty 分类树下仍有节点，不能删除
	ErrTaxonomyNotEmpty = errors.New("taxonomy still has nodes")

	ErrNodeNotFound = errors.New("node not found")
	// ErrCrossTaxonomy 节点 id 属于另一棵分类树
	ErrCrossTaxonomy = errors.New("node belongs to another taxonomy")
	// ErrCyclicParent 把节点挂到自己或自己的后代下
	ErrCyclicParent = errors.New("would create a self-referencing ancestor")
	// ErrNodeHasChildren 保护删除时节点仍有子节点
	ErrNodeHasChildren = errors.New("node has children")
	// ErrNodeInUse 节点（或其子树中的节点）仍被内容引用，需要先解除引用
	ErrNodeInUse = errors.New("node is in use")
	// ErrInvalidEdge 关联类型非法、自关联或跨树关联
	ErrInvalidEdge = errors.New("invalid node edge")
)

// CascadeError 表示级联设置编辑者时有节点写入失败。
// 级联不会在第一个失败处停下：NodeID/Err 是第一个失败，Failed 是全部失败节点，
// Applied 是已经生效的节点，这些修改不会被回滚。
// 事务模式下整体回滚，Applied 为空。
type CascadeError struct {
	NodeID  uint
	Applied []uint
	Failed  []uint
	Err     error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade failed at node %d (%d failed, %d applied): %v",
		e.NodeID, len(e.Failed), len(e.Applied), e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

// mapNodeError 把 gorm/repository 错误转换为 service 哨兵错误。
func mapNodeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNodeNotFound
	case errors.Is(err, repository.ErrCrossTaxonomy):
		return ErrCrossTaxonomy
	case errors.Is(err, repository.ErrInvalidNodeID):
		return ErrInvalidInput
	default:
		return err
	}
}
