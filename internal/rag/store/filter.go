package store

import (
	"strconv"
	"strings"
)

// Milvus 集合中的标量字段名。
const (
	FieldTopic      = "topic"
	FieldSourceFile = "source_file"
	FieldChunkIndex = "chunk_index"
	FieldCharStart  = "char_start"
	FieldCharEnd    = "char_end"
	FieldUploadedAt = "uploaded_at"
	FieldText       = "text"
)

// quote 生成 Milvus 表达式中的字符串字面量。
func quote(s string) string {
	return strconv.Quote(s)
}

// Expr 把过滤条件转换为 Milvus 布尔表达式，无条件时返回空串。
func (f Filter) Expr() string {
	var parts []string

	switch len(f.Topics) {
	case 0:
	case 1:
		parts = append(parts, FieldTopic+" == "+quote(f.Topics[0]))
	default:
		quoted := make([]string, len(f.Topics))
		for i, t := range f.Topics {
			quoted[i] = quote(t)
		}
		parts = append(parts, FieldTopic+" in ["+strings.Join(quoted, ", ")+"]")
	}
	if f.SourceFile != "" {
		parts = append(parts, FieldSourceFile+" == "+quote(f.SourceFile))
	}

	return strings.Join(parts, " && ")
}

// scanExpr 在过滤条件之上追加主键游标。
func scanExpr(f Filter, idField, cursor string) string {
	expr := idField + " > " + quote(cursor)
	if fe := f.Expr(); fe != "" {
		expr = fe + " && " + expr
	}
	return expr
}
