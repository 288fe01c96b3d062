package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/example/larvawatch/internal/config"
	"github.com/example/larvawatch/internal/httpclient"
	"github.com/example/larvawatch/internal/logging"
)

type commandContext struct {
	configFlag *string
	flags      *pflag.FlagSet

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
}

func newCommandContext(configFlag *string, flags *pflag.FlagSet) *commandContext {
	return &commandContext{configFlag: configFlag, flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadWithFlags(path, c.flags)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logging.New(cfg.Logging, os.Stderr)
		slog.SetDefault(c.logger)
	})
	return c.config, c.configErr
}

func (c *commandContext) httpClient() *httpclient.Client {
	hc := httpclient.DefaultConfig()
	hc.Timeout = c.config.Device.LookupTimeout
	hc.Logger = logging.WithComponent(c.logger, "httpclient")
	return httpclient.New(hc)
}
