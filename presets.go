package tlsworker

import (
	"fmt"
	"sort"
	"time"

	"github.com/dep2p/go-tlsworker/config"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设配置常量
// ════════════════════════════════════════════════════════════════════════════

// 预设名称常量
const (
	// PresetNameDefault 默认预设
	PresetNameDefault = "default"

	// PresetNameEnclave enclave 预设
	PresetNameEnclave = "enclave"

	// PresetNameStrict 仅 TLS 1.3 预设
	PresetNameStrict = "strict"

	// PresetNameDev 开发预设
	PresetNameDev = "dev"
)

// presets 名称到配置修改函数
var presets = map[string]struct {
	description string
	apply       func(cfg *config.Config)
}{
	PresetNameDefault: {
		description: "默认配置：TLS 1.2+，协程池，表满阻塞",
		apply:       func(*config.Config) {},
	},
	PresetNameEnclave: {
		description: "受限环境：表满直接拒绝，较短的空闲与握手超时",
		apply: func(cfg *config.Config) {
			cfg.Pool.Backpressure = config.BackpressureReject
			cfg.Pool.ShutdownGrace = config.Duration(2 * time.Second)
			cfg.TLS.HandshakeTimeout = config.Duration(5 * time.Second)
			cfg.Session.IdleTimeout = config.Duration(10 * time.Second)
		},
	},
	PresetNameStrict: {
		description: "仅 TLS 1.3",
		apply: func(cfg *config.Config) {
			cfg.TLS.MinVersion = "1.3"
			cfg.TLS.MaxVersion = "1.3"
			cfg.TLS.CipherSuites = nil
		},
	},
	PresetNameDev: {
		description: "开发调试：每连接一个 goroutine，关闭指标，问候语处理器",
		apply: func(cfg *config.Config) {
			cfg.Pool.Mode = config.ModeSpawn
			cfg.Metrics.Enable = false
			cfg.Session.Handler = config.HandlerGreeting
		},
	},
}

// PresetInfo 预设描述
type PresetInfo struct {
	Name        string
	Description string
}

// GetConfigByPreset 返回应用了预设的新配置，未知名称返回 nil
func GetConfigByPreset(name string) *config.Config {
	cfg := config.NewConfig()
	if err := ApplyPresetToConfig(cfg, name); err != nil {
		return nil
	}
	return cfg
}

// ApplyPresetToConfig 把预设应用到已有配置
func ApplyPresetToConfig(cfg *config.Config, presetName string) error {
	p, ok := presets[presetName]
	if !ok {
		return fmt.Errorf("unknown preset %q", presetName)
	}
	p.apply(cfg)
	return nil
}

// AvailablePresets 返回所有预设，按名称排序
func AvailablePresets() []PresetInfo {
	out := make([]PresetInfo, 0, len(presets))
	for name, p := range presets {
		out = append(out, PresetInfo{Name: name, Description: p.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsValidPreset 检查预设名称是否有效
func IsValidPreset(name string) bool {
	_, ok := presets[name]
	return ok
}
