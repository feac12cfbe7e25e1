package errors

import "net/http"

// RAG 服务错误码，服务代码 20。
var (
	// 请求参数错误 (类别 01)
	ErrValidation = Register(New(MakeCode(ServiceRAG, CategoryRequest, 1), http.StatusBadRequest, "Invalid request", "请求参数无效"))

	// 文档解析错误 (类别 01, 422)
	ErrExtraction = Register(New(MakeCode(ServiceRAG, CategoryRequest, 2), http.StatusUnprocessableEntity, "Document text extraction failed", "文档文本提取失败"))

	// 外部服务错误 (类别 10)
	ErrEmbeddingFailure = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 1), http.StatusBadGateway, "Embedding service failed", "向量嵌入服务失败"))
	ErrLLMGeneration    = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 2), http.StatusBadGateway, "LLM generation failed", "大模型生成失败"))
	ErrStoreUnavailable = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 3), http.StatusServiceUnavailable, "Vector store unavailable", "向量库不可用"))

	// 超时错误 (类别 11)
	ErrLLMTimeout = Register(New(MakeCode(ServiceRAG, CategoryTimeout, 1), http.StatusGatewayTimeout, "LLM generation timed out", "大模型生成超时"))

	// 向量库错误 (类别 08)
	ErrVectorStore       = Register(New(MakeCode(ServiceRAG, CategoryDatabase, 1), http.StatusInternalServerError, "Vector store operation failed", "向量库操作失败"))
	ErrDimensionMismatch = Register(New(MakeCode(ServiceRAG, CategoryDatabase, 2), http.StatusInternalServerError, "Embedding dimension does not match collection", "向量维度与集合不匹配"))
)
