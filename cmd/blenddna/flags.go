package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/twinfer/blenddna/pkg/blendfile"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML config file",
		},
		&cli.StringFlag{
			Name:  "charset",
			Usage: "string encoding of the file (utf-8, latin1, windows-1252)",
		},
		&cli.BoolFlag{
			Name:  "generic",
			Usage: "decode structures without a converter into field maps",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, warn, error)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print JSON instead of text",
		},
	}
}

// loadConfig merges the config file with command line overrides.
func loadConfig(cmd *cli.Command) (*blendfile.Config, error) {
	cfg := &blendfile.Config{}
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = blendfile.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if cs := cmd.String("charset"); cs != "" {
		cfg.Charset = cs
	}
	if cmd.Bool("generic") {
		cfg.Generic = true
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("log-level: %w", err)
		}
	}
	return cfg, nil
}

// openInput opens the file named by the first argument. Extra options win
// over the config.
func openInput(ctx context.Context, cmd *cli.Command, extra ...blendfile.Option) (*blendfile.File, error) {
	path := cmd.Args().First()
	if path == "" {
		return nil, errors.New("missing input file")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(stderr(cmd), &slog.HandlerOptions{Level: cfg.LogLevel.Level}))
	opts := append(cfg.Options(), blendfile.WithLogger(logger))
	opts = append(opts, extra...)

	f, err := blendfile.OpenFile(ctx, path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
