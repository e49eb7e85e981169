package engine

// Task 一条待重新生成的任务
type Task struct {
	Source Source
	// Attempts 已提交的次数（含首次）
	Attempts int
}

// Coordinator 语义重试协调器
//
// 收集被裁决为 Regenerate 的任务，未达提交上限的进入下一轮重试队列，
// 达到上限的计为永久失败。每个批次使用独立的协调器，
// 重试轮次始终在批次屏障内完成。
type Coordinator struct {
	maxAttempts int
	pending     []Task
	exhausted   int
}

// NewCoordinator 创建协调器
//
// maxAttempts 为单条任务的提交总次数上限（含首次请求）。
func NewCoordinator(maxAttempts int) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Coordinator{maxAttempts: maxAttempts}
}

// Reject 登记一条被拒绝的任务
//
// attempts 为该任务已提交的次数。未达上限时入队重试，
// 否则计为永久失败。返回是否会再次重试。
func (c *Coordinator) Reject(src Source, attempts int) bool {
	if attempts >= c.maxAttempts {
		c.exhausted++
		return false
	}
	c.pending = append(c.pending, Task{Source: src, Attempts: attempts})
	return true
}

// Drain 取出并清空当前重试队列
func (c *Coordinator) Drain() []Task {
	tasks := c.pending
	c.pending = nil
	return tasks
}

// Exhausted 返回重试耗尽的任务数
func (c *Coordinator) Exhausted() int {
	return c.exhausted
}
