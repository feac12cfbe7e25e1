package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/learning-rag/internal/rag/biz"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
	"github.com/kart-io/learning-rag/pkg/utils/response"
)

// ListCollections lists all collections.
func (h *RAGHandler) ListCollections(c *gin.Context) {
	names, err := h.deps.Registry.ListCollections(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	response.OK(c, gin.H{"collections": names, "count": len(names)})
}

// DropCollection drops a collection.
func (h *RAGHandler) DropCollection(c *gin.Context) {
	name := c.Param("name")
	if err := h.deps.Registry.DropCollection(c.Request.Context(), name); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"message": fmt.Sprintf("Collection %s deleted", name)})
}

// ListTopics lists the topics of a collection with document and chunk counts.
func (h *RAGHandler) ListTopics(c *gin.Context) {
	collection := h.deps.Registry.Collection(c.Query("collection_name"))
	topics, err := h.deps.Registry.ListTopics(c.Request.Context(), collection)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"topics": topics, "count": len(topics), "collection": collection})
}

// ListFiles lists the files of a topic.
func (h *RAGHandler) ListFiles(c *gin.Context) {
	topic := c.Param("topic")
	collection := h.deps.Registry.Collection(c.Query("collection_name"))
	files, err := h.deps.Registry.ListFiles(c.Request.Context(), topic, collection)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if files == nil {
		files = []biz.FileInfo{}
	}
	response.OK(c, gin.H{"topic": topic, "files": files, "count": len(files), "collection": collection})
}

// DeleteFile deletes every chunk of one file in a topic.
func (h *RAGHandler) DeleteFile(c *gin.Context) {
	topic, filename := c.Param("topic"), c.Param("filename")
	collection := h.deps.Registry.Collection(c.Query("collection_name"))
	n, err := h.deps.Registry.DeleteFile(c.Request.Context(), topic, filename, collection)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{
		"message":    fmt.Sprintf("Deleted %d chunks of %s from topic %s", n, filename, topic),
		"deleted":    n,
		"topic":      topic,
		"filename":   filename,
		"collection": collection,
	})
}

// DeleteTopic deletes every chunk of a topic.
func (h *RAGHandler) DeleteTopic(c *gin.Context) {
	topic := c.Param("topic")
	collection := h.deps.Registry.Collection(c.Query("collection_name"))
	n, err := h.deps.Registry.DeleteTopic(c.Request.Context(), topic, collection)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{
		"message":    fmt.Sprintf("Deleted %d chunks from topic %s", n, topic),
		"deleted":    n,
		"topic":      topic,
		"collection": collection,
	})
}

// RenameTopic renames a topic to the new_name query parameter.
func (h *RAGHandler) RenameTopic(c *gin.Context) {
	oldName := c.Param("topic")
	newName, ok := c.GetQuery("new_name")
	if !ok {
		response.Fail(c, errno.ErrValidation.WithMessage("new_name is required"))
		return
	}
	collection := h.deps.Registry.Collection(c.Query("collection_name"))
	n, err := h.deps.Registry.RenameTopic(c.Request.Context(), oldName, newName, collection)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{
		"message":       fmt.Sprintf("Renamed topic %s to %s", oldName, newName),
		"old_name":      oldName,
		"new_name":      newName,
		"updated_count": n,
		"collection":    collection,
	})
}
