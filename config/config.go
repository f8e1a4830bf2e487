/*
	Helpers for loading contextual config.

	Config for sneakernet means "things that are the host machine operator's concerns":
	which git binary to run, which remote names the repository's upstream,
	whether to lock the medium.  These come from the environment, as opposed
	to the repository and medium paths, which are parameters of each call.
*/
package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
	. "github.com/warpfork/go-errcat"
	"go.uber.org/zap/zapcore"

	"github.com/polydawn/sneakernet"
)

// Log level that discards everything.
const LogLevelNone = "none"

type Config struct {
	// Git binary used for the operations go-git doesn't implement (bundles, merges).
	GitBinary string `env:"SNEAKERNET_GIT,default=git"`

	// Remote whose URL names the repository.  Falls back to the directory name if absent.
	UpstreamRemote string `env:"SNEAKERNET_UPSTREAM,default=origin"`

	// Name of the remote registered while applying a bundle.  Removed afterwards.
	HandleRemote string `env:"SNEAKERNET_HANDLE,default=sneakernet-bundle"`

	// Take an advisory lock on the medium directory while working on it.
	Lock bool `env:"SNEAKERNET_LOCK,default=true"`

	// Log level for diagnostics on stderr: debug, info, warn, error, or none.
	LogLevel string `env:"SNEAKERNET_LOG_LEVEL,default=warn"`
}

/*
	Load config from the process environment.

	May return errors of category:

	  - `sneakernet.ErrUsage` -- if a variable doesn't parse
*/
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with the variables coming from somewhere other than the process env.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, Errorf(sneakernet.ErrUsage, "invalid environment config: %s", err)
	}
	if cfg.LogLevel != LogLevelNone {
		if _, err := cfg.Level(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Level parses LogLevel.
func (cfg Config) Level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return lvl, Errorf(sneakernet.ErrUsage, "invalid SNEAKERNET_LOG_LEVEL %q", cfg.LogLevel)
	}
	return lvl, nil
}

// Defaults returns the config with every variable unset.
func Defaults() Config {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(nil))
	if err != nil {
		panic(err)
	}
	return cfg
}
