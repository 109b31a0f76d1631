// Command marketplace runs the facet engine: an HTTP server, a one-shot facet
// query and a mock marketplace API for local development.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/marketplace-client/internal/config"
	"github.com/Sternrassler/marketplace-client/pkg/api"
	"github.com/Sternrassler/marketplace-client/pkg/cache"
	"github.com/Sternrassler/marketplace-client/pkg/client"
	"github.com/Sternrassler/marketplace-client/pkg/filters"
	"github.com/Sternrassler/marketplace-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "marketplace",
	Short:         "Faceted marketplace browsing engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if envFile != "" {
			cfg, err = config.Load(envFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		logging.Setup(logging.Config{
			Level:  logging.LogLevel(cfg.LogLevel),
			Pretty: cfg.LogPretty,
			Output: cmd.ErrOrStderr(),
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load settings from this .env file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// stack is the wired client side of the engine.
type stack struct {
	redis   *redis.Client
	client  *client.Client
	cache   *cache.Manager
	gateway *api.Gateway
	schema  *filters.SchemaCache
}

// newStack wires the request cache, client, gateway and schema cache from
// c. The Redis mirror is attached only when REDIS_URL is set.
func newStack(ctx context.Context, c *config.Config) (*stack, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger := logging.For(map[string]string{"service": "marketplace"})

	st := &stack{}
	opts, err := c.RedisOptions()
	if err != nil {
		return nil, err
	}
	cacheOpts := cache.Options{DefaultTTL: c.CacheDefaultTTL, Logger: logger}
	if opts != nil {
		st.redis = redis.NewClient(opts)
		if err := st.redis.Ping(ctx).Err(); err != nil {
			st.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		cacheOpts.Mirror = cache.NewRedisMirror(st.redis, c.RedisNamespace, 0)
		logger.Info().Str("addr", opts.Addr).Str("namespace", c.RedisNamespace).Msg("Connected to Redis")
	}
	st.cache = cache.NewManager(cacheOpts)

	clientCfg := client.DefaultConfig(c.APIURL, c.UserAgent)
	clientCfg.Timeout = c.RequestTimeout
	clientCfg.Cache = st.cache
	clientCfg.DefaultTTL = c.CacheDefaultTTL
	clientCfg.Retry.MaxAttempts = c.RetryMaxAttempts
	clientCfg.Logger = logger
	st.client, err = client.New(clientCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	st.gateway = api.NewGateway(st.client, api.DefaultTTLs(), logger)
	st.schema = filters.NewSchemaCache(st.gateway, filters.SchemaOptions{
		Expiration: c.SchemaCacheTTL,
		Logger:     logger,
	})
	return st, nil
}

// ready pings Redis when the mirror is enabled.
func (s *stack) ready(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Ping(ctx).Err()
}

func (s *stack) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
