package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chuangzhu/agenix/internal/agenix"
	"github.com/chuangzhu/agenix/pkg/accounts"
	"github.com/chuangzhu/agenix/pkg/decrypt"
	"github.com/chuangzhu/agenix/pkg/generation"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

func setupLogger(c *agenix.Config) {
	if c.UseStdout {
		log.Default().SetOutput(os.Stdout)
	}
	if c.Quiet {
		log.Default().SetLevel(log.WarnLevel)
	}
	if c.Debug {
		log.Default().SetLevel(log.DebugLevel)
		log.Default().SetReportCaller(true)
	}
}

func loadConfig(ctx context.Context, configFile string, cliflags map[string]any) (*agenix.Config, error) {
	k, err := LoadConfigs(ctx, configFile, cliflags)
	if err != nil {
		return nil, fmt.Errorf("error generating config blob: %w", err)
	}
	c, err := agenix.NewConfig(k)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return c, nil
}

// dumpConfig renders the merged configuration, global flags included.
func dumpConfig(ctx context.Context, configFile string, cliflags map[string]any) (string, error) {
	c, err := loadConfig(ctx, configFile, cliflags)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// setup builds an Agenix wired to the host. The returned function releases
// the systemd connection, if one was opened.
func setup(ctx context.Context, configFile string, cliflags map[string]any) (*agenix.Agenix, func(), error) {
	c, err := loadConfig(ctx, configFile, cliflags)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("error validating config: %w", err)
	}
	setupLogger(c)

	d, err := decrypt.New(c.Decrypt)
	if err != nil {
		return nil, nil, err
	}
	hooks, err := accounts.NewHooks(ctx, c.Hooks)
	if err != nil {
		return nil, nil, err
	}
	gm := generation.NewManager(c.Generation, generation.OSFS{}, generation.NewRamfsMounter())
	a, err := agenix.New(c, gm, d, accounts.System{}, hooks)
	if err != nil {
		hooks.Close()
		return nil, nil, err
	}
	return a, hooks.Close, nil
}

func LoadConfigs(_ context.Context, configFile string, cliflags map[string]any) (*koanf.Koanf, error) {
	k := koanf.New(".")
	fileConf := koanf.New(".")
	envConf := koanf.New(".")
	cliConf := koanf.New(".")
	if configFile != "" {
		err := fileConf.Load(file.Provider(configFile), toml.Parser())
		if err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}
	err := envConf.Load(env.Provider("AGENIX_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AGENIX_")), "__", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading config from env: %w", err)
	}
	err = cliConf.Load(confmap.Provider(cliflags, "."), nil)
	if err != nil {
		return nil, err
	}
	err = k.Merge(fileConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}
	err = k.Merge(envConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}
	err = k.Merge(cliConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}

	return k, err
}
