package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/learning-rag/internal/rag/biz"
	"github.com/kart-io/learning-rag/internal/rag/extract"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
	"github.com/kart-io/learning-rag/pkg/utils/response"
)

// UploadResponse is the result of a single file upload.
type UploadResponse struct {
	Message       string   `json:"message"`
	ChunksIndexed int      `json:"chunks_indexed"`
	Filename      string   `json:"filename"`
	Topic         string   `json:"topic"`
	Collection    string   `json:"collection"`
	Errors        []string `json:"errors,omitempty"`
}

// FileUploadResult is the result of one file in a multi-file upload.
type FileUploadResult struct {
	Filename      string   `json:"filename"`
	Topic         string   `json:"topic"`
	Collection    string   `json:"collection"`
	ChunksIndexed int      `json:"chunks_indexed"`
	Success       bool     `json:"success"`
	Error         string   `json:"error,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// MultiUploadResponse is the result of a multi-file upload.
type MultiUploadResponse struct {
	Results []FileUploadResult `json:"results"`
	Count   int                `json:"count"`
}

// Upload indexes multipart uploads sent in the repeatable file or files fields.
func (h *RAGHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Fail(c, errno.ErrValidation.WithMessage("expected a multipart form with at least one file"))
		return
	}

	headers := append(form.File["file"], form.File["files"]...)
	if len(headers) == 0 {
		response.Fail(c, errno.ErrValidation.WithMessage("no file uploaded"))
		return
	}
	topic := c.PostForm("topic")
	collection := c.PostForm("collection_name")
	now := time.Now()

	uploads := make([]biz.FileUpload, 0, len(headers))
	var readErrs []error
	for _, fh := range headers {
		data, err := h.readFile(fh)
		readErrs = append(readErrs, err)
		uploads = append(uploads, biz.FileUpload{
			Filename:   fh.Filename,
			Data:       data,
			Topic:      topic,
			Collection: collection,
			UploadedAt: now,
		})
	}

	if len(uploads) == 1 {
		if readErrs[0] != nil {
			response.Fail(c, readErrs[0])
			return
		}
		res, err := h.deps.Indexer.IndexUpload(c.Request.Context(), uploads[0])
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, UploadResponse{
			Message:       fmt.Sprintf("Indexed %d chunks from %s", res.ChunksIndexed, res.Filename),
			ChunksIndexed: res.ChunksIndexed,
			Filename:      res.Filename,
			Topic:         res.Topic,
			Collection:    res.Collection,
			Errors:        res.Errors,
		})
		return
	}

	// Files that could not be read keep their position in the results.
	var pending []biz.FileUpload
	var pendingIdx []int
	results := make([]FileUploadResult, len(uploads))
	for i, u := range uploads {
		if readErrs[i] != nil {
			results[i] = FileUploadResult{Filename: u.Filename, Topic: strings.TrimSpace(topic), Error: errno.FromError(readErrs[i]).Detail()}
			continue
		}
		pending = append(pending, u)
		pendingIdx = append(pendingIdx, i)
	}

	for j, r := range h.deps.Indexer.IndexFiles(c.Request.Context(), pending) {
		out := FileUploadResult{
			Filename:      r.Filename,
			Topic:         r.Topic,
			Collection:    r.Collection,
			ChunksIndexed: r.ChunksIndexed,
			Success:       r.Err == nil,
			Errors:        r.Errors,
		}
		if r.Err != nil {
			out.Error = errno.FromError(r.Err).Detail()
		}
		results[pendingIdx[j]] = out
	}

	response.OK(c, MultiUploadResponse{Results: results, Count: len(results)})
}

func (h *RAGHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	if !extract.Supported(fh.Filename) {
		return nil, errno.ErrValidation.WithMessagef("unsupported file type %q, supported: %s",
			fh.Filename, strings.Join(extract.Extensions(), ", "))
	}
	if fh.Size > h.deps.MaxUploadSize {
		return nil, errno.ErrValidation.WithMessagef("file %q exceeds the maximum upload size of %d bytes",
			fh.Filename, h.deps.MaxUploadSize)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errno.ErrValidation.WithCause(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.deps.MaxUploadSize+1))
	if err != nil {
		return nil, errno.ErrValidation.WithCause(err)
	}
	if int64(len(data)) > h.deps.MaxUploadSize {
		return nil, errno.ErrValidation.WithMessagef("file %q exceeds the maximum upload size of %d bytes",
			fh.Filename, h.deps.MaxUploadSize)
	}
	return data, nil
}
