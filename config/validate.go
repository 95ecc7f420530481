package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "pegcore/native/common"
)

// Validate parses the configuration and enforces the bounds the protocol
// relies on.
func (c *Config) Validate() error {
	p, err := c.Parameters()
	if err != nil {
		return err
	}
	one := nativecommon.Precision
	if p.Global.ProtThrld.Cmp(one) < 0 {
		return fmt.Errorf("protocol: ProtThrld must be at least 1")
	}
	if p.Global.LiqThrld.Cmp(p.Global.ProtThrld) > 0 {
		return fmt.Errorf("protocol: LiqThrld > ProtThrld")
	}
	if p.FluxDecayBlockSpan == 0 {
		return fmt.Errorf("protocol: FluxDecayBlockSpan must be positive")
	}
	if p.Queue.MaxOperPerBatch == 0 {
		return fmt.Errorf("queue: MaxOperPerBatch must be positive")
	}
	if p.Fees.FeeTokenPct.Cmp(one) > 0 {
		return fmt.Errorf("protocol: FeeTokenPct > 1")
	}
	seen := make(map[common.Address]struct{}, len(p.Pegged))
	for i, tp := range p.Pegged {
		if _, dup := seen[tp.Token]; dup {
			return fmt.Errorf("peggedTokens[%d]: duplicate token %s", i, tp.Token.Hex())
		}
		seen[tp.Token] = struct{}{}
		if tp.Price.Sign() <= 0 {
			return fmt.Errorf("peggedTokens[%d]: Price must be positive", i)
		}
		if tp.Ctarg.Cmp(one) < 0 {
			return fmt.Errorf("peggedTokens[%d]: Ctarg must be at least 1", i)
		}
		if tp.SmoothingFactor.Cmp(one) > 0 {
			return fmt.Errorf("peggedTokens[%d]: SmoothingFactor > 1", i)
		}
		if tp.Interest.TilsMin.Cmp(tp.Interest.TilsMax) > 0 {
			return fmt.Errorf("peggedTokens[%d]: Interest.TilsMin > TilsMax", i)
		}
		if tp.Interest.FacMin.Cmp(tp.Interest.FacMax) > 0 {
			return fmt.Errorf("peggedTokens[%d]: Interest.FacMin > FacMax", i)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("history: unsupported driver %q", c.History.Driver)
	}
	if keeper := strings.TrimSpace(c.Node.Keeper); keeper != "" {
		if !common.IsHexAddress(keeper) {
			return fmt.Errorf("node: invalid Keeper address %q", keeper)
		}
		listed := false
		for _, executor := range p.Executors {
			if executor == common.HexToAddress(keeper) {
				listed = true
				break
			}
		}
		if !listed {
			return fmt.Errorf("node: Keeper %s is not a governance executor", keeper)
		}
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: RateLimitPerSecond must not be negative")
	}
	return nil
}
