package service

import (
	"errors"
	"strings"
	"taxonomy_admin/internal/model"
	"taxonomy_admin/internal/repository"
	"taxonomy_admin/pkg/log"

	"gorm.io/gorm"
)

// TaxonomyService 管理分类树本身及其属性定义。
// 节点相关的变更在 NodeService 中，这里只负责"树"这一级。
type TaxonomyService interface {
	Create(name, description, actor string) (*model.Taxonomy, error)
	List() ([]model.Taxonomy, error)
	FindByID(id uint) (*model.Taxonomy, error)
	Delete(id uint) error
	AddAttribute(taxonomyID uint, name string, isNodeName, isMultiple bool) (*model.TaxonomyAttribute, error)
	ListAttributes(taxonomyID uint) ([]model.TaxonomyAttribute, error)
}

type taxonomyService struct {
	taxonomyRepo repository.TaxonomyRepository
}

func NewTaxonomyService(taxonomyRepo repository.TaxonomyRepository) TaxonomyService {
	return &taxonomyService{taxonomyRepo: taxonomyRepo}
}

// Create 创建分类树，名称去除首尾空白后不能为空，也不能与已有的树重名。
func (s *taxonomyService) Create(name, description, actor string) (*model.Taxonomy, error) {
	if s.taxonomyRepo == nil {
		return nil, ErrInternal
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	// 先查重，避免唯一键报错直接外泄
	_, err := s.taxonomyRepo.FindByName(name)
	if err == nil {
		return nil, ErrTaxonomyAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	actor = normalizeActor(actor)
	taxonomy := &model.Taxonomy{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   actor,
		UpdatedBy:   actor,
	}
	if err := s.taxonomyRepo.Create(taxonomy); err != nil {
		return nil, err
	}

	log.Infow("taxonomy created", "taxonomy_id", taxonomy.ID, "name", name, "actor", actor)
	return taxonomy, nil
}

func (s *taxonomyService) List() ([]model.Taxonomy, error) {
	if s.taxonomyRepo == nil {
		return nil, ErrInternal
	}
	return s.taxonomyRepo.FindAll()
}

func (s *taxonomyService) FindByID(id uint) (*model.Taxonomy, error) {
	if s.taxonomyRepo == nil {
		return nil, ErrInternal
	}
	if id == 0 {
		return nil, ErrInvalidInput
	}

	taxonomy, err := s.taxonomyRepo.FindByID(id)
	if err != nil {
		return nil, mapTaxonomyError(err)
	}
	return taxonomy, nil
}

// Delete 保护删除：树下还有节点时返回 ErrTaxonomyNotEmpty。
func (s *taxonomyService) Delete(id uint) error {
	if s.taxonomyRepo == nil {
		return ErrInternal
	}
	if id == 0 {
		return ErrInvalidInput
	}

	if err := s.taxonomyRepo.Delete(id); err != nil {
		return mapTaxonomyError(err)
	}
	log.Infow("taxonomy deleted", "taxonomy_id", id)
	return nil
}

// AddAttribute 新增属性定义。每棵树至多一个显示名称属性，新的会取代旧的。
func (s *taxonomyService) AddAttribute(taxonomyID uint, name string, isNodeName, isMultiple bool) (*model.TaxonomyAttribute, error) {
	if s.taxonomyRepo == nil {
		return nil, ErrInternal
	}
	name = strings.TrimSpace(name)
	if taxonomyID == 0 || name == "" {
		return nil, ErrInvalidInput
	}
	// 显示名称只取第一个值，不允许多值
	if isNodeName && isMultiple {
		return nil, ErrInvalidInput
	}

	if _, err := s.FindByID(taxonomyID); err != nil {
		return nil, err
	}

	attr := &model.TaxonomyAttribute{
		TaxonomyID: taxonomyID,
		Name:       name,
		IsNodeName: isNodeName,
		IsMultiple: isMultiple,
	}
	if err := s.taxonomyRepo.CreateAttribute(attr); err != nil {
		return nil, err
	}
	return attr, nil
}

func (s *taxonomyService) ListAttributes(taxonomyID uint) ([]model.TaxonomyAttribute, error) {
	if _, err := s.FindByID(taxonomyID); err != nil {
		return nil, err
	}
	return s.taxonomyRepo.FindAttributes(taxonomyID)
}

func mapTaxonomyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrTaxonomyNotFound
	case errors.Is(err, repository.ErrTaxonomyHasNodes):
		return ErrTaxonomyNotEmpty
	default:
		return err
	}
}
