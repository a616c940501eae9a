package shared

import (
	"strconv"

	"github.com/dujiao-next/checkout/internal/repository"

	"github.com/gin-gonic/gin"
)

// ParsePagination 从查询参数读取并归一化分页参数。
func ParsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return repository.NormalizePagination(page, pageSize)
}
