// Package tls 实现共享 TLS 配置与握手引擎
//
// # 共享配置
//
// SharedConfig 由 ConfigBuilder 构建，构建后不可变：
//
//	cert, _ := tls.GenerateSelfSigned([]string{"localhost"}, 0)
//	shared, err := tls.NewConfigBuilder().
//	    WithCertificate(cert).
//	    WithMinVersion(cryptotls.VersionTLS12).
//	    Build()
//
// 所有工作者读取同一个 SharedConfig，无需加锁。协调器为每个工作者上下文
// Retain 一次，回收时 Release；Verify 可随时检查配置是否被修改。
//
// # 握手引擎
//
//   - StdEngine: crypto/tls
//   - MintEngine: github.com/bifurcation/mint（仅 TLS 1.3）
//
// 引擎只负责握手，连接的所有权与关闭由工作者负责。
package tls
