// Package migrations 内嵌 SQL 迁移文件，二进制不依赖工作目录。
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
