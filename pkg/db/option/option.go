package option

import (
	"strings"
	"time"

	"github.com/hormisur/backoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm statement before execution.
type Option interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type paginationOption struct {
	page pagination.Pagination
}

// ApplyPagination decodes the cursor token and limits the statement to one
// page plus a lookahead row.
func ApplyPagination(page pagination.Pagination) Option {
	return paginationOption{page: page}
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	if token := strings.TrimSpace(o.page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err == nil && cursor != nil {
			if createdAt, parseErr := time.Parse(time.RFC3339, cursor.CreatedAt); parseErr == nil {
				stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
					createdAt,
					createdAt,
					cursor.ID,
				)
			}
		}
	}

	size := o.page.PageSize
	if size <= 0 {
		size = 20
	}
	return stmt.Limit(size + 1)
}
