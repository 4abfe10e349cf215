package relay

import (
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
)

type (
	// configFile is the top-level JSON structure.
	configFile struct {
		Pipelines map[string]PipelineConfig `json:"pipelines"`
	}

	// PipelineConfig holds the decoded configuration for one request
	// pipeline. Embed it in your own app config struct for JSON or YAML
	// unmarshaling, then call [BuildOptions] to obtain functional options
	// for [New].
	PipelineConfig struct {
		// CircuitBreaker configures per-endpoint circuit breaking.
		// Optional. Example: {"failure_threshold": 5, "open_timeout": "60s"}.
		CircuitBreaker *BreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
		// Retry configures the retry policy.
		// Optional. Example: {"max_retries": 3, "base_delay": "1s"}.
		Retry *RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
		// Token configures credential refresh behavior.
		// Optional. Example: {"refresh_threshold": "300s"}.
		Token *TokenConfig `json:"token,omitempty" yaml:"token,omitempty"`
		// Timeout is the default per-attempt dispatch timeout.
		// Optional. Parsed via time.ParseDuration. Example: "30s".
		Timeout *string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		// RateLimit is the maximum dispatches per second.
		// Optional. Example: 50.
		RateLimit *float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
		// RateLimitedTripsBreaker counts remote 429s toward the breaker
		// threshold. Optional, default false.
		RateLimitedTripsBreaker *bool `json:"rate_limited_trips_breaker,omitempty" yaml:"rate_limited_trips_breaker,omitempty"`
	}

	// BreakerConfig holds circuit breaker configuration values.
	BreakerConfig struct {
		// OpenTimeout is how long an open circuit rejects before probing.
		// Optional. Parsed via time.ParseDuration. Example: "60s".
		OpenTimeout *string `json:"open_timeout,omitempty" yaml:"open_timeout,omitempty"`
		// FailureThreshold is the number of failures before opening.
		// Optional. Example: 5.
		FailureThreshold *int `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	}

	// RetryConfig holds retry policy configuration values.
	RetryConfig struct {
		// Backoff is the backoff strategy name.
		// Optional. One of: "constant", "exponential", "exponential_jitter".
		// Default "exponential".
		Backoff *string `json:"backoff,omitempty" yaml:"backoff,omitempty"`
		// BaseDelay is the base delay for backoff calculation.
		// Optional. Parsed via time.ParseDuration. Example: "1s".
		BaseDelay *string `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
		// MaxDelay caps the backoff delay.
		// Optional. Parsed via time.ParseDuration. Example: "30s".
		MaxDelay *string `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
		// MaxRetries is the retry budget after the first attempt.
		// Optional. Example: 3.
		MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	}

	// TokenConfig holds credential lifecycle configuration values.
	TokenConfig struct {
		// RefreshThreshold is how close to expiry a credential triggers a
		// proactive refresh. Optional. Parsed via time.ParseDuration.
		// Example: "300s".
		RefreshThreshold *string `json:"refresh_threshold,omitempty" yaml:"refresh_threshold,omitempty"`
	}
)

// LoadConfig reads a JSON configuration file holding named pipeline
// configurations. All entries are validated eagerly so errors surface at
// load time.
//
// Duration values (timeout, open_timeout, base_delay, max_delay,
// refresh_threshold) are parsed using [time.ParseDuration].
func LoadConfig(path string) (map[string]PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay: read config: %w", err)
	}

	var cfg configFile
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("relay: parse config: %w", err)
	}

	for name, pc := range cfg.Pipelines {
		if _, buildErr := BuildOptions(&pc); buildErr != nil {
			return nil, fmt.Errorf("relay: pipeline %q: %w", name, buildErr)
		}

		if _, tokenErr := pc.TokenStoreOptions(); tokenErr != nil {
			return nil, fmt.Errorf("relay: pipeline %q: %w", name, tokenErr)
		}
	}

	return cfg.Pipelines, nil
}

// BuildOptions converts a [PipelineConfig] into functional options for
// [New]. Code-level options appended after these take precedence.
//
// The token refresh threshold applies to the [TokenStore] the caller
// constructs, so it is returned via [PipelineConfig.TokenStoreOptions]
// rather than here.
func BuildOptions(pc *PipelineConfig) ([]Option, error) {
	var opts []Option

	if pc.Timeout != nil {
		d, err := time.ParseDuration(*pc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}

		opts = append(opts, WithDefaultTimeout(d))
	}

	if pc.CircuitBreaker != nil || boolVal(pc.RateLimitedTripsBreaker) {
		var regOpts []RegistryOption

		if pc.CircuitBreaker != nil {
			var cbOpts []BreakerOption

			if pc.CircuitBreaker.FailureThreshold != nil {
				cbOpts = append(cbOpts, FailureThreshold(*pc.CircuitBreaker.FailureThreshold))
			}

			if pc.CircuitBreaker.OpenTimeout != nil {
				d, err := time.ParseDuration(*pc.CircuitBreaker.OpenTimeout)
				if err != nil {
					return nil, fmt.Errorf("circuit_breaker.open_timeout: %w", err)
				}

				cbOpts = append(cbOpts, OpenTimeout(d))
			}

			regOpts = append(regOpts, WithBreaker(cbOpts...))
		}

		if boolVal(pc.RateLimitedTripsBreaker) {
			regOpts = append(regOpts, RateLimitedTripsBreaker())
		}

		opts = append(opts, WithBreakers(regOpts...))
	}

	if pc.Retry != nil {
		retryOpts, err := buildRetryOptions(pc.Retry)
		if err != nil {
			return nil, fmt.Errorf("retry: %w", err)
		}

		opts = append(opts, WithRetryPolicy(NewRetryPolicy(retryOpts...)))
	}

	if pc.RateLimit != nil {
		opts = append(opts, WithRateLimit(*pc.RateLimit))
	}

	return opts, nil
}

// TokenStoreOptions converts the token section into options for
// [NewTokenStore].
func (pc *PipelineConfig) TokenStoreOptions() ([]TokenStoreOption, error) {
	if pc.Token == nil || pc.Token.RefreshThreshold == nil {
		return nil, nil
	}

	d, err := time.ParseDuration(*pc.Token.RefreshThreshold)
	if err != nil {
		return nil, fmt.Errorf("token.refresh_threshold: %w", err)
	}

	return []TokenStoreOption{RefreshThreshold(d)}, nil
}

func buildRetryOptions(rc *RetryConfig) ([]RetryOption, error) {
	var opts []RetryOption

	if rc.MaxRetries != nil {
		opts = append(opts, MaxRetries(*rc.MaxRetries))
	}

	if rc.MaxDelay != nil {
		d, err := time.ParseDuration(*rc.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("max_delay: %w", err)
		}

		opts = append(opts, MaxDelay(d))
	}

	if rc.Backoff == nil && rc.BaseDelay == nil {
		return opts, nil
	}

	base := time.Second

	if rc.BaseDelay != nil {
		d, err := time.ParseDuration(*rc.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("base_delay: %w", err)
		}

		base = d
	}

	name := "exponential"
	if rc.Backoff != nil {
		name = *rc.Backoff
	}

	switch name {
	case "constant":
		opts = append(opts, Backoff(ConstantBackoff(base)))
	case "exponential":
		opts = append(opts, Backoff(ExponentialBackoff(base)))
	case "exponential_jitter":
		opts = append(opts, Backoff(ExponentialJitterBackoff(base)))
	default:
		return nil, fmt.Errorf("unknown backoff strategy: %q", name)
	}

	return opts, nil
}

func boolVal(b *bool) bool { return b != nil && *b }
