// Package tcp 实现 TLS 工作者使用的 TCP 传输层
//
// 提供两个类型：
//   - Listener: 监听套接字，Accept 返回连接句柄，区分临时/致命错误
//   - Conn: 连接句柄，带持有者标识和一次性关闭语义
//
// # 所有权
//
// 连接句柄在 accept 后由协调器（OwnerCoordinator）持有，分派时通过
// Claim 原子地转移给唯一的工作者。之后协调器只在工作者报告终态后，
// 或在中止时调用幂等的 Close。
//
//	ln, err := tcp.Listen(ctx, "tcp", "127.0.0.1:0", tcp.DefaultListenOptions())
//	conn, err := ln.Accept()
//	owner := tcp.NextOwner()
//	if err := conn.Claim(owner); err != nil {
//	    // 已被其他工作者持有
//	}
//	defer conn.Close()
package tcp
