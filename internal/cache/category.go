package cache

import (
	"context"
	"fmt"
	"time"
)

const categoryDescendantsTTL = 5 * time.Minute

func categoryDescendantsKey(categoryID uint) string {
	return fmt.Sprintf("category:descendants:%d", categoryID)
}

// GetCategoryDescendants 读取分类后代缓存
func GetCategoryDescendants(ctx context.Context, categoryID uint) ([]uint, bool, error) {
	if categoryID == 0 {
		return nil, false, nil
	}
	var ids []uint
	hit, err := GetJSON(ctx, categoryDescendantsKey(categoryID), &ids)
	if err != nil || !hit {
		return nil, hit, err
	}
	return ids, true, nil
}

// SetCategoryDescendants 写入分类后代缓存
func SetCategoryDescendants(ctx context.Context, categoryID uint, ids []uint) error {
	if categoryID == 0 {
		return nil
	}
	if ids == nil {
		ids = []uint{}
	}
	return SetJSON(ctx, categoryDescendantsKey(categoryID), ids, categoryDescendantsTTL)
}

// DelCategoryDescendants 删除分类后代缓存
func DelCategoryDescendants(ctx context.Context, categoryID uint) error {
	if categoryID == 0 {
		return nil
	}
	return Del(ctx, categoryDescendantsKey(categoryID))
}
