// Package main 提供 tlsworker 命令行入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-tlsworker"
	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/util/logger"
)

var log = logger.Logger("tlsworker/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//	命令行参数：运行时覆盖 / 快速测试
//	JSON 配置文件：持久化配置（证书、版本范围、池容量、证明标签等）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 运行时参数
	// ─────────────────────────────────────────────────────────────────────
	configFile = flag.String("config", "", "配置文件路径（JSON）")
	preset     = flag.String("preset", tlsworker.PresetNameDefault, "预设配置 (default/enclave/strict/dev)")
	listenAddr = flag.String("listen", "", "监听地址，例如 0.0.0.0:8443")

	// ─────────────────────────────────────────────────────────────────────
	// TLS 参数
	// ─────────────────────────────────────────────────────────────────────
	certFile   = flag.String("cert", "", "PEM 证书文件（为空时使用自签名证书）")
	keyFile    = flag.String("key", "", "PEM 私钥文件")
	engine     = flag.String("engine", "", "握手引擎 (std/mint)")
	minVersion = flag.String("min-version", "", "最低 TLS 版本 (1.2/1.3)")

	// ─────────────────────────────────────────────────────────────────────
	// 工作者池参数
	// ─────────────────────────────────────────────────────────────────────
	maxOutstanding = flag.Int("max-outstanding", 0, "未完成连接上限（0 = 按内存推算）")
	backpressure   = flag.String("backpressure", "", "表满策略 (block/reject)")
	shutdownGrace  config.Duration

	// ─────────────────────────────────────────────────────────────────────
	// 观测
	// ─────────────────────────────────────────────────────────────────────
	metricsAddr = flag.String("metrics-addr", "", "Prometheus 指标 HTTP 地址（为空不启动）")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func init() {
	flag.Var(&shutdownGrace, "shutdown-grace", "关闭时等待在途连接的时间，例如 5s")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(tlsworker.VersionInfo())
		return nil
	}
	if *showHelp {
		printHelp()
		return nil
	}

	reg := prometheus.NewRegistry()
	opts, err := buildOptions(reg)
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	log.Info("启动 tlsworker", "version", tlsworker.Version, "commit", tlsworker.GitCommit, "buildDate", tlsworker.BuildDate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := tlsworker.Start(ctx, nil, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	metricsSrv := startMetrics(reg)

	printServerInfo(srv)

	// 等待退出信号或 accept 循环意外停止
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	var exitErr error
	select {
	case sig := <-signals:
		log.Info("收到退出信号", "signal", sig.String())
	case <-srv.AcceptDone():
		exitErr = errors.New("accept 循环已停止")
		log.Error("accept 循环已停止，准备退出")
	}

	fmt.Println("\n正在关闭服务...")
	grace := srv.Config().Pool.ShutdownGrace.Duration()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace+10*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(exitErr, fmt.Errorf("关闭失败: %w", err))
	}

	st := srv.Stats()
	fmt.Printf("已关闭：accepted=%d succeeded=%d failed=%d rejected=%d\n",
		st.Accepted, st.Succeeded, st.Failed, st.Rejected)
	return exitErr
}

// startMetrics 在 -metrics-addr 上暴露指标
func startMetrics(reg *prometheus.Registry) *http.Server {
	if *metricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	hs := &http.Server{
		Addr:              *metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "error", err)
		}
	}()
	return hs
}

// printServerInfo 打印服务信息
func printServerInfo(srv *tlsworker.Server) {
	cfg := srv.Config()
	maxVersion := cfg.TLS.MaxVersion
	if maxVersion == "" {
		maxVersion = "any"
	}

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", tlsworker.VersionInfo())
	fmt.Println("───────────────────────────────────────────────────────────────")
	fmt.Printf("  监听地址:   %s\n", srv.Addr())
	fmt.Printf("  握手引擎:   %s\n", srv.Engine())
	fmt.Printf("  TLS 版本:   %s - %s\n", cfg.TLS.MinVersion, maxVersion)
	fmt.Printf("  配置指纹:   %s\n", srv.Fingerprint())
	fmt.Printf("  容量/策略:  %d / %s (%s)\n", cfg.Pool.MaxOutstanding, cfg.Pool.Backpressure, cfg.Pool.Mode)
	if *metricsAddr != "" {
		fmt.Printf("  指标地址:   http://%s/metrics\n", *metricsAddr)
	}
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("服务已启动，按 Ctrl+C 退出")
}

// printHelp 打印帮助
func printHelp() {
	fmt.Println("tlsworker - 多工作者 TLS 服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  tlsworker [参数]")
	fmt.Println()
	fmt.Println("参数:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("预设:")
	for _, p := range tlsworker.AvailablePresets() {
		fmt.Printf("  %-10s %s\n", p.Name, p.Description)
	}
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Printf("  %s%s, %s%s, %s%s, %s%s\n",
		envPrefix, envPreset, envPrefix, envListen, envPrefix, envCertFile, envPrefix, envKeyFile)
	fmt.Println("  TLSWORKER_LOG_LEVEL, TLSWORKER_LOG_FORMAT")
}
