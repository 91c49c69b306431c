// Package worker 实现单连接工作者及其上下文
//
// 每个被 accept 的连接对应一个 Context，由协调器创建、由唯一的 Worker 消费：
//
//	wctx, _ := worker.NewContext(conn, shared, clk.Now())
//	task := w.Task(abortCtx, wctx)
//	go task()
//	<-wctx.Exited()
//	if wctx.State().Terminal() { ... }
//
// # 完成标志
//
// Completion 是三态原子单元：Pending → {Success, Failed}，只能单调变化。
// 工作者在终态写入之前完成全部连接操作并关闭句柄，因此读到终态的协调器
// 一定能看到句柄已关闭。
//
// # 失败隔离
//
// 握手失败、会话错误、panic 都在工作者内部捕获并映射为 Failed，
// 不会传播到协调器或其他工作者。
package worker
