// Package metrics 提供 RAG 服务的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// durationCounter 累计调用次数与耗时。
type durationCounter struct {
	total  atomic.Uint64
	errors atomic.Uint64
	nanos  atomic.Int64
}

func (d *durationCounter) record(duration time.Duration, err error) {
	d.total.Add(1)
	if err != nil {
		d.errors.Add(1)
		return
	}
	d.nanos.Add(int64(duration))
}

// CallStats 调用统计快照。
type CallStats struct {
	Total           uint64  `json:"total"`
	Errors          uint64  `json:"errors"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`
}

func (d *durationCounter) snapshot() CallStats {
	total := d.total.Load()
	errs := d.errors.Load()
	s := CallStats{Total: total, Errors: errs}
	if ok := total - errs; ok > 0 {
		s.AvgDurationSecs = time.Duration(d.nanos.Load()).Seconds() / float64(ok)
	}
	return s
}

// RAGMetrics RAG 服务业务指标，由 Server 创建并注入各组件。
type RAGMetrics struct {
	startTime time.Time

	// 检索与问答
	search     durationCounter
	chat       durationCounter
	llm        durationCounter
	llmTimeout atomic.Uint64
	streams    atomic.Uint64
	cancelled  atomic.Uint64

	// 向量化
	embedBatches durationCounter
	embedRetries atomic.Uint64

	// 索引
	documentsIndexed atomic.Uint64
	chunksIndexed    atomic.Uint64
	staleRemoved     atomic.Uint64
	indexErrors      atomic.Uint64

	// 主题批量任务
	jobsCompleted atomic.Uint64
	jobsResumed   atomic.Uint64
	jobsFailed    atomic.Uint64
	jobRecords    atomic.Uint64
}

// New 创建指标实例。
func New() *RAGMetrics {
	return &RAGMetrics{startTime: time.Now()}
}

// RecordSearch 记录一次检索。
func (m *RAGMetrics) RecordSearch(duration time.Duration, err error) {
	m.search.record(duration, err)
}

// RecordChat 记录一次问答，stream 表示流式请求。
func (m *RAGMetrics) RecordChat(duration time.Duration, stream bool, err error) {
	m.chat.record(duration, err)
	if stream {
		m.streams.Add(1)
	}
}

// RecordStreamCancelled 记录被客户端中止的流。
func (m *RAGMetrics) RecordStreamCancelled() {
	m.cancelled.Add(1)
}

// RecordLLMCall 记录 LLM 调用。
func (m *RAGMetrics) RecordLLMCall(duration time.Duration, timeout bool, err error) {
	m.llm.record(duration, err)
	if timeout {
		m.llmTimeout.Add(1)
	}
}

// RecordEmbeddingBatch 记录一个向量化批次，retries 为重试次数。
func (m *RAGMetrics) RecordEmbeddingBatch(duration time.Duration, retries int, err error) {
	m.embedBatches.record(duration, err)
	if retries > 0 {
		m.embedRetries.Add(uint64(retries))
	}
}

// RecordIndexing 记录文档索引结果。
func (m *RAGMetrics) RecordIndexing(chunks, staleRemoved int, err error) {
	if err != nil {
		m.indexErrors.Add(1)
		return
	}
	m.documentsIndexed.Add(1)
	m.chunksIndexed.Add(uint64(chunks))
	m.staleRemoved.Add(uint64(staleRemoved))
}

// RecordJob 记录主题任务结束，resumed 表示从检查点恢复。
func (m *RAGMetrics) RecordJob(records int, resumed bool, err error) {
	if resumed {
		m.jobsResumed.Add(1)
	}
	if err != nil {
		m.jobsFailed.Add(1)
		return
	}
	m.jobsCompleted.Add(1)
	m.jobRecords.Add(uint64(records))
}

// Snapshot 指标快照（用于 /stats）。
type Snapshot struct {
	Search    CallStats     `json:"search"`
	Chat      ChatStats     `json:"chat"`
	LLM       LLMStats      `json:"llm"`
	Embedding EmbedStats    `json:"embedding"`
	Indexing  IndexingStats `json:"indexing"`
	Jobs      JobStats      `json:"jobs"`
	Uptime    float64       `json:"uptime_seconds"`
}

// ChatStats 问答统计。
type ChatStats struct {
	CallStats
	Streams   uint64 `json:"streams"`
	Cancelled uint64 `json:"cancelled"`
}

// LLMStats LLM 调用统计。
type LLMStats struct {
	CallStats
	Timeouts uint64 `json:"timeouts"`
}

// EmbedStats 向量化统计。
type EmbedStats struct {
	Batches CallStats `json:"batches"`
	Retries uint64    `json:"retries"`
}

// IndexingStats 索引统计。
type IndexingStats struct {
	Documents    uint64 `json:"documents_indexed"`
	Chunks       uint64 `json:"chunks_indexed"`
	StaleRemoved uint64 `json:"stale_chunks_removed"`
	Errors       uint64 `json:"errors"`
}

// JobStats 主题任务统计。
type JobStats struct {
	Completed uint64 `json:"completed"`
	Resumed   uint64 `json:"resumed"`
	Failed    uint64 `json:"failed"`
	Records   uint64 `json:"records"`
}

// Snapshot 返回当前统计信息。
func (m *RAGMetrics) Snapshot() Snapshot {
	return Snapshot{
		Search: m.search.snapshot(),
		Chat: ChatStats{
			CallStats: m.chat.snapshot(),
			Streams:   m.streams.Load(),
			Cancelled: m.cancelled.Load(),
		},
		LLM: LLMStats{
			CallStats: m.llm.snapshot(),
			Timeouts:  m.llmTimeout.Load(),
		},
		Embedding: EmbedStats{
			Batches: m.embedBatches.snapshot(),
			Retries: m.embedRetries.Load(),
		},
		Indexing: IndexingStats{
			Documents:    m.documentsIndexed.Load(),
			Chunks:       m.chunksIndexed.Load(),
			StaleRemoved: m.staleRemoved.Load(),
			Errors:       m.indexErrors.Load(),
		},
		Jobs: JobStats{
			Completed: m.jobsCompleted.Load(),
			Resumed:   m.jobsResumed.Load(),
			Failed:    m.jobsFailed.Load(),
			Records:   m.jobRecords.Load(),
		},
		Uptime: time.Since(m.startTime).Seconds(),
	}
}

type sample struct {
	name, help, typ string
	value           float64
}

// Export 导出 Prometheus 文本格式指标。
func (m *RAGMetrics) Export(namespace string) string {
	s := m.Snapshot()
	samples := []sample{
		{"search_total", "Total number of searches.", "counter", float64(s.Search.Total)},
		{"search_errors_total", "Number of failed searches.", "counter", float64(s.Search.Errors)},
		{"chat_total", "Total number of chat requests.", "counter", float64(s.Chat.Total)},
		{"chat_errors_total", "Number of failed chat requests.", "counter", float64(s.Chat.Errors)},
		{"chat_streams_total", "Number of streamed chat requests.", "counter", float64(s.Chat.Streams)},
		{"chat_streams_cancelled_total", "Number of streams stopped by the client.", "counter", float64(s.Chat.Cancelled)},
		{"llm_calls_total", "Total number of LLM calls.", "counter", float64(s.LLM.Total)},
		{"llm_calls_errors_total", "Number of LLM call errors.", "counter", float64(s.LLM.Errors)},
		{"llm_calls_timeouts_total", "Number of LLM call timeouts.", "counter", float64(s.LLM.Timeouts)},
		{"llm_call_avg_duration_seconds", "Average successful LLM call duration.", "gauge", s.LLM.AvgDurationSecs},
		{"embedding_batches_total", "Total number of embedding batches.", "counter", float64(s.Embedding.Batches.Total)},
		{"embedding_batches_errors_total", "Number of failed embedding batches.", "counter", float64(s.Embedding.Batches.Errors)},
		{"embedding_retries_total", "Number of embedding batch retries.", "counter", float64(s.Embedding.Retries)},
		{"documents_indexed_total", "Total documents indexed.", "counter", float64(s.Indexing.Documents)},
		{"chunks_indexed_total", "Total chunks indexed.", "counter", float64(s.Indexing.Chunks)},
		{"stale_chunks_removed_total", "Chunks removed by shrinking re-index.", "counter", float64(s.Indexing.StaleRemoved)},
		{"index_errors_total", "Number of indexing errors.", "counter", float64(s.Indexing.Errors)},
		{"jobs_completed_total", "Topic jobs completed.", "counter", float64(s.Jobs.Completed)},
		{"jobs_resumed_total", "Topic jobs resumed from a checkpoint.", "counter", float64(s.Jobs.Resumed)},
		{"jobs_failed_total", "Topic jobs failed.", "counter", float64(s.Jobs.Failed)},
		{"uptime_seconds", "Service uptime in seconds.", "gauge", s.Uptime},
	}

	var sb strings.Builder
	for _, smp := range samples {
		name := smp.name
		if namespace != "" {
			name = namespace + "_" + name
		}
		fmt.Fprintf(&sb, "# HELP %s %s\n", name, smp.help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", name, smp.typ)
		fmt.Fprintf(&sb, "%s %g\n", name, smp.value)
	}
	return sb.String()
}
