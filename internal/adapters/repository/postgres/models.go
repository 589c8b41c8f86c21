package postgres

import "github.com/uptrace/bun"

// SheetRow is one header or data row of a resource.
type SheetRow struct {
	bun.BaseModel `bun:"table:sheet_rows,alias:sr"`

	ID       int64    `bun:"id,pk,autoincrement"`
	Resource string   `bun:"resource,notnull"`
	IsHeader bool     `bun:"is_header,notnull,default:false"`
	Cells    []string `bun:"cells,array"`
}
