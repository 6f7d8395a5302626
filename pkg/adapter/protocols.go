package adapter

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spantoken/bridge-hub/pkg/bridge"
)

// DefaultConfig returns the stock fee schedule, delivery estimate and
// security level for a protocol. Trusted remotes and chain bindings are
// deployment configuration and stay empty here.
func DefaultConfig(protocol bridge.Protocol) (Config, error) {
	cfg := Config{
		Protocol:  protocol,
		MinAmount: decimal.NewFromInt(1),
		MaxAmount: decimal.NewFromInt(1000000),
	}

	switch protocol {
	case bridge.ProtocolGuardian:
		// Threshold validator set: strong, mid-priced, moderately slow.
		cfg.SecurityLevel = 9
		cfg.BaseFee = decimal.RequireFromString("0.5")
		cfg.FeeBps = 10
		cfg.DeliveryEstimate = 15 * time.Minute
	case bridge.ProtocolMessageBus:
		// Operator-run bus: cheap and fast, weaker trust assumptions.
		cfg.SecurityLevel = 6
		cfg.BaseFee = decimal.RequireFromString("0.1")
		cfg.FeeBps = 5
		cfg.DeliveryEstimate = 2 * time.Minute
	case bridge.ProtocolLightClient:
		// On-chain light client relay: strongest and slowest.
		cfg.SecurityLevel = 10
		cfg.BaseFee = decimal.RequireFromString("2")
		cfg.FeeBps = 20
		cfg.DeliveryEstimate = 60 * time.Minute
	case bridge.ProtocolCourier:
		// Independent oracle + relayer pair.
		cfg.SecurityLevel = 7
		cfg.BaseFee = decimal.RequireFromString("0.25")
		cfg.FeeBps = 8
		cfg.DeliveryEstimate = 5 * time.Minute
	default:
		return Config{}, fmt.Errorf("unknown protocol %q", protocol)
	}

	return cfg, nil
}
