package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/user/wzgo/internal/config"
	"github.com/user/wzgo/internal/logger"
	"github.com/user/wzgo/pkg/wz"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "wztool",
		Short: "Inspect WZ resource archives",
		Long: `wztool reads PKG1 (.wz) resource archives: it lists directories and
images, resolves paths inside images, prints typed property values and
extracts raw image blobs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logger())
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./wzgo.yaml)")
	flags.String("iv", "gms", "keystream IV: gms, ems, zero or 8 hex digits")
	flags.Int("game-version", 0, "archive version; 0 detects it")
	flags.Int("max-version", wz.DefaultMaxVersion, "highest version tried when detecting")
	flags.Int("cache-size", 0, "expanded images kept in memory; 0 keeps all")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-format", "human", "log format: json or human")
	flags.String("log-file", "", "also write logs to this file")

	for key, flag := range map[string]string{
		"iv":          "iv",
		"version":     "game-version",
		"max_version": "max-version",
		"cache_size":  "cache-size",
		"debug":       "debug",
		"log_format":  "log-format",
		"log_file":    "log-file",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	root.AddCommand(
		newInfoCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newVerifyCmd(a),
		newExtractCmd(a),
		newExtractAllCmd(a),
	)
	return root
}

func (a *app) open(path string) (*wz.File, error) {
	opts, err := a.cfg.ArchiveOptions(a.log)
	if err != nil {
		return nil, err
	}
	f, err := wz.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	a.log.Debug("opened archive",
		zap.String("path", path),
		zap.Int("version", f.Version()),
		zap.Int("size", f.Size()))
	return f, nil
}
