package main

import (
	"flag"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-tlsworker"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// 环境变量
const (
	envPrefix   = "TLSWORKER_"
	envPreset   = "PRESET"
	envListen   = "LISTEN"
	envCertFile = "CERT_FILE"
	envKeyFile  = "KEY_FILE"
)

// runtimeConfig 来自环境变量的运行时配置
type runtimeConfig struct {
	preset   string
	listen   string
	certFile string
	keyFile  string
}

// loadEnv 读取环境变量
func loadEnv() runtimeConfig {
	return runtimeConfig{
		preset:   os.Getenv(envPrefix + envPreset),
		listen:   os.Getenv(envPrefix + envListen),
		certFile: os.Getenv(envPrefix + envCertFile),
		keyFile:  os.Getenv(envPrefix + envKeyFile),
	}
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（TLSWORKER_* 前缀）
//  3. 预设（覆盖配置文件中的同名字段）
//  4. 配置文件
//  5. 默认值
func buildOptions(reg prometheus.Registerer) ([]tlsworker.Option, error) {
	var opts []tlsworker.Option
	env := loadEnv()

	// 配置文件替换整份配置，必须排在最前
	if *configFile != "" {
		opts = append(opts, tlsworker.WithConfigFile(*configFile))
	}

	presetName := *preset
	if env.preset != "" && !isFlagSet("preset") {
		presetName = env.preset
	}
	if isFlagSet("preset") || env.preset != "" {
		opts = append(opts, tlsworker.WithPreset(presetName))
	}

	if addr := pick("listen", *listenAddr, env.listen); addr != "" {
		opts = append(opts, tlsworker.WithListenAddress(addr))
	}

	cert := pick("cert", *certFile, env.certFile)
	key := pick("key", *keyFile, env.keyFile)
	if cert != "" || key != "" {
		opts = append(opts, tlsworker.WithCertFiles(cert, key))
	}

	if *engine != "" {
		opts = append(opts, tlsworker.WithEngine(*engine))
	}
	if *minVersion != "" {
		opts = append(opts, tlsworker.WithMinTLSVersion(*minVersion))
	}
	if *maxOutstanding > 0 {
		opts = append(opts, tlsworker.WithMaxOutstanding(*maxOutstanding))
	}
	if *backpressure != "" {
		opts = append(opts, tlsworker.WithBackpressure(*backpressure))
	}
	if isFlagSet("shutdown-grace") {
		opts = append(opts, tlsworker.WithShutdownGrace(shutdownGrace.Duration()))
	}

	opts = append(opts, tlsworker.WithPrometheusRegisterer(reg))
	return opts, nil
}

// pick 命令行参数优先于环境变量
func pick(name, flagValue, envValue string) string {
	if isFlagSet(name) {
		return flagValue
	}
	return envValue
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
