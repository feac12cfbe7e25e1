// Package biz 提供 RAG 服务的业务逻辑层。
//
// 该包将业务逻辑拆分为以下组件：
//   - Chunker: 递归字符分块
//   - Embedder: 分批并发向量化（带重试）
//   - Indexer: 分块、向量化并写入向量库
//   - Retriever: 按主题过滤的相似度检索
//   - Registry: 主题与文件管理，重命名和删除以可恢复的批量任务执行
//   - Generator: 构建带预算的提示词，生成答案并返回引用来源
package biz
