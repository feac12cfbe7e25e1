package pool

import (
	"context"
	"sync"
)

// Group 在池上运行一组任务并等待全部结束，记录第一个错误。
type Group struct {
	pool *Pool
	ctx  context.Context

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// NewGroup 创建任务组，ctx 取消后尚未开始的任务会被跳过。
func NewGroup(ctx context.Context, p *Pool) *Group {
	return &Group{pool: p, ctx: ctx}
}

// Go 提交任务。提交失败视为任务失败，ctx 已取消时任务不再执行。
func (g *Group) Go(task func(ctx context.Context) error) {
	if err := g.ctx.Err(); err != nil {
		g.setErr(err)
		return
	}

	g.wg.Add(1)
	err := g.pool.Submit(func() {
		defer g.wg.Done()
		if err := g.ctx.Err(); err != nil {
			g.setErr(err)
			return
		}
		if err := task(g.ctx); err != nil {
			g.setErr(err)
		}
	})
	if err != nil {
		g.wg.Done()
		g.setErr(err)
	}
}

// Wait 等待全部任务完成，返回第一个错误。
func (g *Group) Wait() error {
	g.wg.Wait()
	if g.err == nil && g.ctx.Err() != nil {
		return g.ctx.Err()
	}
	return g.err
}

func (g *Group) setErr(err error) {
	g.errOnce.Do(func() { g.err = err })
}
