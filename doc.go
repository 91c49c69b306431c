// Package tlsworker 提供多工作者 TLS 服务核心
//
// tlsworker 面向受限的可信执行环境（enclave）：一个协调器接受 TCP 连接，
// 把每个连接交给独立的工作者完成 TLS 握手和会话，工作者通过原子完成标志
// 报告结果，协调器在确认句柄已关闭后回收上下文。
//
// # 核心概念
//
//   - Server: 服务入口，组装全部组件并管理生命周期
//   - Coordinator: accept、分派、回收，维护有界的未完成上下文表
//   - Worker: 拥有一个连接句柄，完成握手、会话后设置完成标志
//   - SharedConfig: 进程级不可变 TLS 配置，所有工作者无锁共享
//
// # 快速开始
//
//	import "github.com/dep2p/go-tlsworker"
//
//	srv, err := tlsworker.Start(ctx, nil,
//	    tlsworker.WithListenAddress("0.0.0.0:8443"),
//	    tlsworker.WithCertFiles("server.crt", "server.key"),
//	    tlsworker.WithTLSVersions("1.2", ""),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Shutdown(context.Background())
//
//	fmt.Println("listening on", srv.Addr())
//
// # 连接生命周期
//
//	accept ──> Context(Pending) ──> Worker.Run ──> handle closed ──> Success/Failed
//	                                                                      │
//	                                   Reap: join, verify closed, free <──┘
//
// 完成标志只会从 Pending 变为 Success 或 Failed 一次，之后不再变化。
// 工作者的错误（握手失败、会话错误、panic）只体现为 Failed，不会向上传播。
//
// # 背压
//
// 未完成上下文表容量为 Pool.MaxOutstanding，默认按主机内存推导。
// 表满时 block 策略暂停 accept，reject 策略接受后立即关闭并计为拒绝。
//
// # 文件组织
//
//	tlsworker/
//	├── doc.go       # 包文档
//	├── version.go   # 版本信息
//	├── server.go    # Server、New、Start、Shutdown、查询与证据
//	├── options.go   # 函数式选项
//	├── presets.go   # 预设配置
//	├── fx.go        # Fx 模块组装
//	├── types.go     # 状态与类型别名
//	└── errors.go    # 公共错误
package tlsworker
