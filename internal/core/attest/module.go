package attest

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-tlsworker/config"
	"github.com/dep2p/go-tlsworker/internal/core/security/tls"
)

// Params 签发器依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Shared     *tls.SharedConfig
}

// Module 证明模块
var Module = fx.Module("attest",
	fx.Provide(ProvideIssuer),
)

// ProvideIssuer 从统一配置提供签发器
//
// 未启用时仍返回签发器，Issue 返回 ErrDisabled。
func ProvideIssuer(p Params) (*Issuer, error) {
	cfg := config.DefaultAttestationConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Attestation
	}
	return NewIssuer(p.Shared, cfg)
}
