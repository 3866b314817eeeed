package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CatalogService 产品目录服务：组件展开、成本查询、环检测
type CatalogService struct {
	catalogRepo *repository.CatalogRepository
	logger      *zap.Logger
}

// NewCatalogService 创建目录服务
func NewCatalogService(catalogRepo *repository.CatalogRepository, logger *zap.Logger) *CatalogService {
	return &CatalogService{catalogRepo: catalogRepo, logger: logger}
}

// ExpandedComponent 展开后的直接组件
type ExpandedComponent struct {
	ComponentID     string          `json:"component_id"`
	ComponentType   string          `json:"component_type"`
	PartNumber      string          `json:"part_number"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	BaseQuantity    decimal.Decimal `json:"base_quantity"`
	WasteFactor     decimal.Decimal `json:"waste_factor"`
	Optional        bool            `json:"optional"`
	SubstituteGroup string          `json:"substitute_group"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	UnitWeight      decimal.Decimal `json:"unit_weight"`
	IsCustom        bool            `json:"is_custom"`
}

// Expand 展开装配体在指定时间生效的直接组件
// 展开只展一层：子装配体作为单行出现，携带自身的标准成本/重量。
// 展开前做环检测，发现环返回ErrDataIntegrity。
func (s *CatalogService) Expand(ctx context.Context, tx *gorm.DB, assemblyID string, at time.Time) ([]ExpandedComponent, error) {
	if _, err := s.catalogRepo.FindAssemblyByID(ctx, tx, assemblyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("assembly %s: %w", assemblyID, ErrNotFound)
		}
		return nil, fmt.Errorf("find assembly: %w", err)
	}

	if err := s.CheckAcyclic(ctx, tx, assemblyID); err != nil {
		return nil, err
	}

	edges, err := s.catalogRepo.EffectiveComponents(ctx, tx, assemblyID, at)
	if err != nil {
		return nil, fmt.Errorf("load components: %w", err)
	}

	components := make([]ExpandedComponent, 0, len(edges))
	for _, edge := range edges {
		comp := ExpandedComponent{
			ComponentID:     edge.ComponentID,
			ComponentType:   edge.ComponentType,
			BaseQuantity:    edge.BaseQuantity,
			WasteFactor:     edge.WasteFactor,
			Optional:        edge.Optional,
			SubstituteGroup: edge.SubstituteGroup,
		}

		switch edge.ComponentType {
		case entity.ComponentTypePart:
			part, err := s.catalogRepo.FindPartByID(ctx, tx, edge.ComponentID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, fmt.Errorf("assembly %s references missing part %s: %w",
						assemblyID, edge.ComponentID, ErrDataIntegrity)
				}
				return nil, fmt.Errorf("find part: %w", err)
			}
			comp.PartNumber = part.PartNumber
			comp.Name = part.Name
			comp.Unit = part.Unit
			comp.UnitCost = part.UnitCost
			comp.UnitWeight = part.UnitWeight
			comp.IsCustom = part.IsCustom
		case entity.ComponentTypeAssembly:
			sub, err := s.catalogRepo.FindAssemblyByID(ctx, tx, edge.ComponentID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, fmt.Errorf("assembly %s references missing sub-assembly %s: %w",
						assemblyID, edge.ComponentID, ErrDataIntegrity)
				}
				return nil, fmt.Errorf("find sub-assembly: %w", err)
			}
			comp.PartNumber = sub.Code
			comp.Name = sub.Name
			comp.Unit = "pcs"
			comp.UnitCost = sub.StandardCost
			comp.UnitWeight = sub.StandardWeight
		default:
			return nil, fmt.Errorf("assembly %s has component %s with unknown type %q: %w",
				assemblyID, edge.ComponentID, edge.ComponentType, ErrDataIntegrity)
		}

		components = append(components, comp)
	}

	return components, nil
}

// UnitCost 组件单位成本与重量
func (s *CatalogService) UnitCost(ctx context.Context, tx *gorm.DB, componentID, componentType string) (cost, weight decimal.Decimal, err error) {
	switch componentType {
	case entity.ComponentTypePart:
		part, ferr := s.catalogRepo.FindPartByID(ctx, tx, componentID)
		if ferr != nil {
			if errors.Is(ferr, repository.ErrNotFound) {
				return decimal.Zero, decimal.Zero, fmt.Errorf("part %s: %w", componentID, ErrNotFound)
			}
			return decimal.Zero, decimal.Zero, ferr
		}
		return part.UnitCost, part.UnitWeight, nil
	case entity.ComponentTypeAssembly:
		assembly, ferr := s.catalogRepo.FindAssemblyByID(ctx, tx, componentID)
		if ferr != nil {
			if errors.Is(ferr, repository.ErrNotFound) {
				return decimal.Zero, decimal.Zero, fmt.Errorf("assembly %s: %w", componentID, ErrNotFound)
			}
			return decimal.Zero, decimal.Zero, ferr
		}
		return assembly.StandardCost, assembly.StandardWeight, nil
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("unknown component type %q: %w", componentType, ErrDataIntegrity)
	}
}

// CheckAcyclic 检查以root为起点的装配体图无环
// 不信任数据无环：每次展开前显式DFS，发现环返回ErrDataIntegrity。
func (s *CatalogService) CheckAcyclic(ctx context.Context, tx *gorm.DB, rootAssemblyID string) error {
	edges, err := s.catalogRepo.AllAssemblyEdges(ctx, tx)
	if err != nil {
		return fmt.Errorf("load assembly edges: %w", err)
	}

	adjacency := make(map[string][]string, len(edges))
	for _, edge := range edges {
		adjacency[edge.AssemblyID] = append(adjacency[edge.AssemblyID], edge.ComponentID)
	}

	if cycle := detectCycle(adjacency, rootAssemblyID); cycle != nil {
		s.logger.Error("assembly graph cycle detected",
			zap.String("root", rootAssemblyID),
			zap.Strings("cycle", cycle),
		)
		return fmt.Errorf("assembly graph contains cycle %v: %w", cycle, ErrDataIntegrity)
	}
	return nil
}

// detectCycle 从root出发做DFS，visited/inProgress双标记
// 返回发现的环路径，无环返回nil。
func detectCycle(adjacency map[string][]string, root string) []string {
	const (
		stateInProgress = 1
		stateDone       = 2
	)
	state := make(map[string]int)
	var path []string

	var visit func(node string) []string
	visit = func(node string) []string {
		state[node] = stateInProgress
		path = append(path, node)

		for _, next := range adjacency[node] {
			switch state[next] {
			case stateInProgress:
				// 回边：截取path中环的部分
				for i, n := range path {
					if n == next {
						return append(append([]string{}, path[i:]...), next)
					}
				}
				return []string{next, next}
			case stateDone:
				continue
			default:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		state[node] = stateDone
		path = path[:len(path)-1]
		return nil
	}

	return visit(root)
}

// 以下为目录维护操作，供handler层使用

// ListCategories 类别列表
func (s *CatalogService) ListCategories(ctx context.Context) ([]entity.Category, error) {
	return s.catalogRepo.ListCategories(ctx)
}

// CreateCategory 创建类别
func (s *CatalogService) CreateCategory(ctx context.Context, category *entity.Category) error {
	return s.catalogRepo.CreateCategory(ctx, category)
}

// GetAssembly 装配体详情（含组件边）
func (s *CatalogService) GetAssembly(ctx context.Context, id string) (*entity.Assembly, error) {
	assembly, err := s.catalogRepo.FindAssemblyByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("assembly %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	components, err := s.catalogRepo.ComponentsOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load components: %w", err)
	}
	assembly.Components = components
	return assembly, nil
}

// ListAssemblies 装配体列表
func (s *CatalogService) ListAssemblies(ctx context.Context, categoryID string) ([]entity.Assembly, error) {
	return s.catalogRepo.ListAssemblies(ctx, categoryID)
}

// CreateAssembly 创建装配体
func (s *CatalogService) CreateAssembly(ctx context.Context, assembly *entity.Assembly) error {
	return s.catalogRepo.CreateAssembly(ctx, assembly)
}

// ListParts 零件列表
func (s *CatalogService) ListParts(ctx context.Context, categoryID string, customOnly bool) ([]entity.Part, error) {
	return s.catalogRepo.ListParts(ctx, categoryID, customOnly)
}

// CreatePart 创建零件
func (s *CatalogService) CreatePart(ctx context.Context, part *entity.Part) error {
	return s.catalogRepo.CreatePart(ctx, nil, part)
}

// AddComponent 给装配体添加组件边，添加后验证无环
func (s *CatalogService) AddComponent(ctx context.Context, component *entity.AssemblyComponent) error {
	if _, err := s.catalogRepo.FindAssemblyByID(ctx, nil, component.AssemblyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("assembly %s: %w", component.AssemblyID, ErrNotFound)
		}
		return err
	}

	switch component.ComponentType {
	case entity.ComponentTypePart:
		if _, err := s.catalogRepo.FindPartByID(ctx, nil, component.ComponentID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("part %s: %w", component.ComponentID, ErrNotFound)
			}
			return err
		}
	case entity.ComponentTypeAssembly:
		if _, err := s.catalogRepo.FindAssemblyByID(ctx, nil, component.ComponentID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("assembly %s: %w", component.ComponentID, ErrNotFound)
			}
			return err
		}
		// 新边不能引入环
		edges, err := s.catalogRepo.AllAssemblyEdges(ctx, nil)
		if err != nil {
			return fmt.Errorf("load assembly edges: %w", err)
		}
		adjacency := make(map[string][]string, len(edges)+1)
		for _, edge := range edges {
			adjacency[edge.AssemblyID] = append(adjacency[edge.AssemblyID], edge.ComponentID)
		}
		adjacency[component.AssemblyID] = append(adjacency[component.AssemblyID], component.ComponentID)
		if cycle := detectCycle(adjacency, component.AssemblyID); cycle != nil {
			return fmt.Errorf("adding component would create cycle %v: %w", cycle, ErrDataIntegrity)
		}
	default:
		return fmt.Errorf("unknown component type %q: %w", component.ComponentType, ErrDataIntegrity)
	}

	return s.catalogRepo.CreateComponent(ctx, component)
}
