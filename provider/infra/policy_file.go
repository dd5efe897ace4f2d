package infra

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"provider-gateway/provider/domain"

	"gopkg.in/yaml.v3"
)

// Policy reúne as políticas ajustáveis sem recompilar.
type Policy struct {
	RateLimit domain.RateLimitPolicy
	Tiers     map[domain.QuotaTier]domain.TierPolicy
	TTLs      domain.TTLPolicy
	Retry     domain.RetryConfig
}

func DefaultPolicy() Policy {
	return Policy{
		RateLimit: domain.DefaultRateLimitPolicy(),
		Tiers:     domain.DefaultTierPolicies(),
		TTLs:      domain.DefaultTTLPolicy(),
		Retry:     domain.DefaultRetryConfig(),
	}
}

type policyFile struct {
	RateLimit *struct {
		Window       time.Duration `yaml:"window"`
		Shared       *int          `yaml:"shared"`
		Background   *int          `yaml:"background"`
		Reserved     *int          `yaml:"reserved"`
		BorrowShared *bool         `yaml:"borrow_shared"`
	} `yaml:"rate_limit"`
	Tiers map[string]struct {
		Limit      int64 `yaml:"limit"`
		Thresholds []int `yaml:"thresholds"`
	} `yaml:"tiers"`
	CacheTTL map[string]time.Duration `yaml:"cache_ttl"`
	Retry    *struct {
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
		Jitter      *bool         `yaml:"jitter"`
	} `yaml:"retry"`
}

var cacheTypeNames = map[string]domain.CacheType{
	"property_record": domain.CachePropertyRecord,
	"market_data":     domain.CacheMarketData,
	"listing":         domain.CacheListing,
	"valuation":       domain.CacheValuation,
}

// LoadPolicyFile lê um YAML e sobrepõe os campos presentes em base.
// Campos ausentes mantêm o valor de base.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data, base)
}

func ParsePolicy(data []byte, base Policy) (Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return base, fmt.Errorf("failed to parse policy file: %w", err)
	}

	out := Policy{
		RateLimit: base.RateLimit,
		Tiers:     make(map[domain.QuotaTier]domain.TierPolicy, len(base.Tiers)),
		TTLs:      make(domain.TTLPolicy, len(base.TTLs)),
		Retry:     base.Retry,
	}
	for k, v := range base.Tiers {
		out.Tiers[k] = v
	}
	for k, v := range base.TTLs {
		out.TTLs[k] = v
	}

	if rl := f.RateLimit; rl != nil {
		if rl.Window > 0 {
			out.RateLimit.Window = rl.Window
		}
		if rl.Shared != nil {
			out.RateLimit.SharedLimit = *rl.Shared
		}
		if rl.Background != nil {
			out.RateLimit.BackgroundLimit = *rl.Background
		}
		if rl.Reserved != nil {
			out.RateLimit.ReservedLimit = *rl.Reserved
		}
		if rl.BorrowShared != nil {
			out.RateLimit.BorrowShared = *rl.BorrowShared
		}
	}

	for name, t := range f.Tiers {
		tier, err := domain.ParseTier(name)
		if err != nil {
			return base, fmt.Errorf("policy file: %w", err)
		}
		if t.Limit <= 0 {
			return base, fmt.Errorf("policy file: tier %s: limit must be positive", name)
		}
		th := append([]int(nil), t.Thresholds...)
		if len(th) == 0 {
			th = out.Tiers[tier].Thresholds
		}
		sort.Ints(th)
		for _, v := range th {
			if v <= 0 || v > 100 {
				return base, fmt.Errorf("policy file: tier %s: threshold %d out of range", name, v)
			}
		}
		out.Tiers[tier] = domain.TierPolicy{Limit: t.Limit, Thresholds: th}
	}

	for name, ttl := range f.CacheTTL {
		ct, ok := cacheTypeNames[strings.ToLower(name)]
		if !ok {
			return base, fmt.Errorf("policy file: unknown cache type %q", name)
		}
		if ttl < 0 {
			return base, fmt.Errorf("policy file: cache type %s: negative ttl", name)
		}
		out.TTLs[ct] = ttl
	}

	if r := f.Retry; r != nil {
		if r.MaxAttempts > 0 {
			out.Retry.MaxAttempts = r.MaxAttempts
		}
		if r.BaseDelay > 0 {
			out.Retry.BaseDelay = r.BaseDelay
		}
		if r.MaxDelay > 0 {
			out.Retry.MaxDelay = r.MaxDelay
		}
		if r.Jitter != nil {
			out.Retry.Jitter = *r.Jitter
		}
	}
	return out, nil
}
