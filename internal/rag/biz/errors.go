package biz

import (
	"errors"
	"strings"

	"github.com/kart-io/learning-rag/internal/rag/store"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
	"github.com/kart-io/learning-rag/pkg/utils/validator"
)

// storeError 将向量库错误映射为错误码。
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var e *errno.Errno
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, store.ErrDimensionMismatch):
		return errno.ErrDimensionMismatch.WithCause(err)
	case errors.Is(err, store.ErrUnavailable):
		return errno.ErrStoreUnavailable.WithCause(err)
	default:
		return errno.ErrVectorStore.WithCause(err)
	}
}

// normalizeTopic 去除首尾空白，空主题返回校验错误。
func normalizeTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if !validator.IsTopic(topic) {
		return "", errno.ErrValidation.WithMessagef("invalid topic %q", topic)
	}
	return topic, nil
}

// normalizeTopics 去空白、去重并丢弃空项，保持原有顺序。
func normalizeTopics(topics []string) []string {
	if len(topics) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func checkCollection(collection string) error {
	if !validator.IsCollection(collection) {
		return errno.ErrValidation.WithMessagef("invalid collection name %q", collection)
	}
	return nil
}

func checkFilename(filename string) error {
	if !validator.IsFilename(filename) {
		return errno.ErrValidation.WithMessagef("invalid filename %q", filename)
	}
	return nil
}
