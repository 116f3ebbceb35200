package repository

import (
	"errors"
	"fmt"
	"taxonomy_admin/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrTaxonomyHasNodes 表示分类树下仍有节点，禁止直接删除。
	ErrTaxonomyHasNodes = errors.New("taxonomy still has nodes")
)

// TaxonomyRepository 分类树及其属性定义的持久化接口
type TaxonomyRepository interface {
	Create(taxonomy *model.Taxonomy) error
	FindAll() ([]model.Taxonomy, error)
	FindByID(id uint) (*model.Taxonomy, error)
	FindByName(name string) (*model.Taxonomy, error)

	// Delete 保护删除：树下还有节点时返回 ErrTaxonomyHasNodes。
	// 使用事务保证"检查节点 + 删除属性定义 + 删除树"的原子性。
	Delete(id uint) error

	// CreateAttribute 新增属性定义。新属性是显示名称属性时，
	// 同一事务里先清掉旧的显示名称标记，保证每棵树至多一个。
	CreateAttribute(attr *model.TaxonomyAttribute) error
	FindAttributes(taxonomyID uint) ([]model.TaxonomyAttribute, error)
}

type taxonomyRepository struct {
	db *gorm.DB
}

func NewTaxonomyRepository(db *gorm.DB) TaxonomyRepository {
	return &taxonomyRepository{db: db}
}

func (r *taxonomyRepository) Create(taxonomy *model.Taxonomy) error {
	if taxonomy == nil {
		return fmt.Errorf("taxonomy is nil")
	}
	return r.db.Create(taxonomy).Error
}

func (r *taxonomyRepository) FindAll() ([]model.Taxonomy, error) {
	var taxonomies []model.Taxonomy
	if err := r.db.Order("id ASC").Find(&taxonomies).Error; err != nil {
		return nil, err
	}
	return taxonomies, nil
}

func (r *taxonomyRepository) FindByID(id uint) (*model.Taxonomy, error) {
	if id == 0 {
		return nil, fmt.Errorf("taxonomy id is required")
	}

	var taxonomy model.Taxonomy
	if err := r.db.Where("id = ?", id).First(&taxonomy).Error; err != nil {
		return nil, err
	}
	return &taxonomy, nil
}

func (r *taxonomyRepository) FindByName(name string) (*model.Taxonomy, error) {
	var taxonomy model.Taxonomy
	if err := r.db.Where("name = ?", name).First(&taxonomy).Error; err != nil {
		return nil, err
	}
	return &taxonomy, nil
}

func (r *taxonomyRepository) Delete(id uint) error {
	if id == 0 {
		return fmt.Errorf("taxonomy id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var current model.Taxonomy
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			return err
		}

		var nodeCount int64
		if err := tx.Model(&model.Node{}).
			Where("taxonomy_id = ?", id).
			Count(&nodeCount).Error; err != nil {
			return err
		}
		if nodeCount > 0 {
			return ErrTaxonomyHasNodes
		}

		if err := tx.Where("taxonomy_id = ?", id).Delete(&model.TaxonomyAttribute{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", id).Delete(&model.Taxonomy{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *taxonomyRepository) CreateAttribute(attr *model.TaxonomyAttribute) error {
	if attr == nil {
		return fmt.Errorf("attribute is nil")
	}
	if attr.TaxonomyID == 0 {
		return fmt.Errorf("taxonomy id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if attr.IsNodeName {
			if err := tx.Model(&model.TaxonomyAttribute{}).
				Where("taxonomy_id = ? AND is_node_name = ?", attr.TaxonomyID, true).
				Update("is_node_name", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(attr).Error
	})
}

func (r *taxonomyRepository) FindAttributes(taxonomyID uint) ([]model.TaxonomyAttribute, error) {
	var attrs []model.TaxonomyAttribute
	if err := r.db.Where("taxonomy_id = ?", taxonomyID).Order("id ASC").Find(&attrs).Error; err != nil {
		return nil, err
	}
	return attrs, nil
}
