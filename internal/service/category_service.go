package service

import (
	"context"
	"sort"

	"github.com/dujiao-next/checkout/internal/cache"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/repository"
)

// CategoryService 分类树解析
type CategoryService struct {
	repo repository.CategoryRepository
}

// NewCategoryService 创建分类服务
func NewCategoryService(repo repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

// Descendants 返回分类的全部后代 ID（不含自身，升序）
func (s *CategoryService) Descendants(ctx context.Context, categoryID uint) ([]uint, error) {
	if categoryID == 0 {
		return []uint{}, nil
	}
	if ids, hit, err := cache.GetCategoryDescendants(ctx, categoryID); err != nil {
		logger.Warnw("category_descendants_cache_get_failed", "category_id", categoryID, "error", err)
	} else if hit {
		return ids, nil
	}

	visited := map[uint]struct{}{categoryID: {}}
	result := make([]uint, 0)
	frontier := []uint{categoryID}
	for len(frontier) > 0 {
		children, err := s.repo.ListChildIDs(frontier)
		if err != nil {
			return nil, err
		}
		next := make([]uint, 0, len(children))
		for _, id := range children {
			// 分类树理论上无环，重复访问的节点直接跳过
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			result = append(result, id)
			next = append(next, id)
		}
		frontier = next
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })

	if err := cache.SetCategoryDescendants(ctx, categoryID, result); err != nil {
		logger.Warnw("category_descendants_cache_set_failed", "category_id", categoryID, "error", err)
	}
	return result, nil
}

// ExpandWithDescendants 返回分类集合及其后代的并集（升序）
func (s *CategoryService) ExpandWithDescendants(ctx context.Context, categoryIDs []uint) ([]uint, error) {
	set := make(map[uint]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		if id == 0 {
			continue
		}
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		descendants, err := s.Descendants(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range descendants {
			set[child] = struct{}{}
		}
	}
	result := make([]uint, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}
