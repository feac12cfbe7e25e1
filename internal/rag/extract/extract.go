// Package extract 把上传文件转换为纯文本。
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupported 不支持的文件扩展名。
	ErrUnsupported = errors.New("unsupported file type")
	// ErrEmpty 文件为空或没有可提取的文本。
	ErrEmpty = errors.New("no extractable text")
)

// Func 从文件内容提取文本。
type Func func(data []byte) (string, error)

var extractors = map[string]Func{
	".pdf":      PDF,
	".txt":      Text,
	".text":     Text,
	".md":       Text,
	".markdown": Text,
}

// Extensions 返回支持的扩展名（已排序）。
func Extensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supported 判断文件名的扩展名是否受支持（不区分大小写）。
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extract 按扩展名选择提取器，结果去除首尾空白后不能为空。
func Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupported, ext, strings.Join(Extensions(), ", "))
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}

	text, err := fn(data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text 读取 UTF-8 文本，去掉 BOM 并统一换行符。
func Text(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8 text")
	}
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return s, nil
}

// PDF 逐页提取纯文本，页之间以空行分隔，无法解析的页跳过。
func PDF(data []byte) (text string, err error) {
	// 解析器遇到损坏的文件可能 panic
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(content)
	}
	return sb.String(), nil
}
