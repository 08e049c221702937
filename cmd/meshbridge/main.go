package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/meshbridge/internal/api"
	"github.com/skobkin/meshbridge/internal/app"
	"github.com/skobkin/meshbridge/internal/config"
	"github.com/skobkin/meshbridge/internal/radioconfig"
	"github.com/skobkin/meshbridge/internal/transport"
)

const usage = `usage: meshbridge <command> [flags]

commands:
  run      run the bridge
  watch    power the radio on and log link traffic
  check    validate the config and print the radio config frames
  ports    list serial ports
  token    mint an API bearer token
  purge    delete the journaled nodes, messages and events
  version  print the build version
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		slog.Error("meshbridge failed", "error", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return runBridge(ctx, rest)
	case "watch":
		return runWatch(ctx, rest)
	case "check":
		return runCheck(rest, out)
	case "ports":
		return runPorts(out)
	case "token":
		return runToken(rest, out)
	case "purge":
		return runPurge(ctx, rest, out)
	case "version":
		_, err := fmt.Fprintf(out, "%s %s\n", app.Name, app.BuildString())
		return err
	case "help", "-h", "--help":
		_, err := fmt.Fprint(out, usage)
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "config file (default: per-user "+app.ConfigFilename+")")
	return fs, path
}

func resolveConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return path, nil
	}
	paths, err := app.ResolvePaths()
	if err != nil {
		return "", err
	}
	return paths.ConfigFile, nil
}

func runBridge(ctx context.Context, args []string) error {
	fs, path := newFlagSet("run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := app.Initialize(ctx, *path)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	return rt.Run(ctx)
}

func runCheck(args []string, out io.Writer) error {
	fs, path := newFlagSet("check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfgPath, err := resolveConfigPath(*path)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config %s is valid\n", cfgPath)
	if cfg.RadioConfig == nil {
		fmt.Fprintln(out, "no radio config")
		return nil
	}

	tx, err := radioconfig.Build(*cfg.RadioConfig)
	if err != nil {
		return err
	}
	frames := tx.Frames()
	fmt.Fprintf(out, "radio config: %d frames, apply on boot: %t\n", len(frames), tx.ApplyOnBoot())
	for i, f := range frames {
		fmt.Fprintf(out, "%3d  %-24s %4d  %s\n", i+1, f.Label(), f.Len(), hex.EncodeToString(f.Bytes()))
	}
	return nil
}

func runPorts(out io.Writer) error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Fprintln(out, p.Name)
			continue
		}
		fmt.Fprintf(out, "%s\tusb %s:%s\t%s\t%s\n", p.Name, p.VID, p.PID, p.Product, p.SerialNumber)
	}
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs, path := newFlagSet("token")
	subject := fs.String("subject", "automation", "token subject")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfgPath, err := resolveConfigPath(*path)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.HTTP.JWTSecret == "" {
		return errors.New("http.jwt_secret is not set")
	}

	token, err := api.GenerateToken(*subject, cfg.HTTP.JWTSecret, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
