// Package store 提供 RAG 服务的向量存储层。
//
// 该包定义了向量存储的接口抽象，以及基于 Milvus 和进程内存的两种实现。
// 存储按主键 upsert，不提供跨记录事务；批量一致性由上层的可恢复任务保证。
package store
