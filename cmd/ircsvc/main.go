package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mkrupp/ircsvc/internal/infra/config"
	"github.com/mkrupp/ircsvc/internal/infra/logging"
	"github.com/mkrupp/ircsvc/internal/infra/transport/http"
	"github.com/mkrupp/ircsvc/internal/infra/transport/tcp"
	"github.com/mkrupp/ircsvc/internal/repo/credential"
	"github.com/mkrupp/ircsvc/internal/svc/chatsvc"
)

const (
	appName = "ircsvc"

	minPort = 1024
	maxPort = 65536

	shutdownTimeout = 30 * time.Second
)

const usage = `
ircsvc: simple text protocol chat server

Usage:

   ircsvc [flags] <port>

Where 1024 < port < 65536.

Connect from another window with:

   telnet <host> <port>

and send one request per connection, e.g. "ADD-USER alice secret".

Flags:
`

var errUsage = errors.New("usage")

type Config struct {
	config.EnvConfig

	Log        logging.LoggerConfig        `envPrefix:"LOG_"`
	TCP        tcp.TCPTransportConfig      `envPrefix:"TCP_"`
	Chat       chatsvc.ChatConfig          `envPrefix:"CHAT_"`
	Credential credential.Config           `envPrefix:"CREDENTIAL_"`
	Admin      chatsvc.HTTPTransportConfig `envPrefix:"ADMIN_"`
}

func main() {
	os.Exit(start(context.Background(), os.Args[1:], os.Stderr))
}

func start(ctx context.Context, args []string, stderr io.Writer) int {
	var cfg Config

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "load .env: %v\n", err)

		return 1
	}

	if err := config.Parse(ctx, &cfg, strings.ToUpper(appName)); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)

		return 1
	}

	if err := parseArgs(args, &cfg, stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}

		return 1
	}

	logging.Configure(ctx, cfg.Log, appName)

	return run(ctx, cfg)
}

// parseArgs applies command line flags and the positional port on top of cfg.
func parseArgs(args []string, cfg *Config, stderr io.Writer) error {
	var credentialsPath, adminAddr string

	flagSet := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&credentialsPath, "credentials", "", "credential store path (file or sqlite database, per IRCSVC_CREDENTIAL_BACKEND)")
	flagSet.StringVar(&adminAddr, "admin-addr", "", "admin HTTP listen address serving /healthz, /stats and /metrics")
	flagSet.Usage = func() {
		fmt.Fprint(stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return err //nolint:wrapcheck
	}

	if flagSet.NArg() != 1 {
		flagSet.Usage()

		return errUsage
	}

	port, err := strconv.Atoi(flagSet.Arg(0))
	if err != nil || port <= minPort || port >= maxPort {
		flagSet.Usage()

		return errUsage
	}

	cfg.TCP.ServerAddr = net.JoinHostPort(cfg.TCP.Host, strconv.Itoa(port))

	if credentialsPath != "" {
		cfg.Credential.File.Path = credentialsPath
		cfg.Credential.SQLite.Path = credentialsPath
	}

	if adminAddr != "" {
		cfg.Admin.ServerAddr = adminAddr
	}

	return nil
}

func run(ctx context.Context, cfg Config) (exitCode int) {
	log := logging.GetLogger("cmd.ircsvc")

	defer func() {
		if exitCode != 0 {
			log.ErrorContext(ctx, "exit", "code", exitCode)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	chatSvc, err := chatsvc.NewChatService(ctx, credential.Factory(cfg.Credential), cfg.Chat)
	if err != nil {
		log.ErrorContext(ctx, "new chat service", "error", err)

		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	lineTransport := chatsvc.NewLineTransport(chatSvc)
	group.Go(func() error {
		if err := tcp.ListenAndServe(groupCtx, lineTransport, lineTransport.Reject, cfg.TCP); err != nil {
			return fmt.Errorf("tcp: %w", err)
		}

		return nil
	})

	if cfg.Admin.ServerAddr != "" {
		httpTransport := chatsvc.NewHTTPTransport(chatSvc, cfg.Admin)
		group.Go(func() error {
			if err := http.ListenAndServe(groupCtx, httpTransport, cfg.Admin.HTTPTransportConfig); err != nil {
				return fmt.Errorf("admin http: %w", err)
			}

			return nil
		})
	}

	var serveErr error

	serveDone := make(chan struct{})

	go func() {
		serveErr = group.Wait()

		close(serveDone)
	}()

	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
		"chatsvc": func(opCtx context.Context) error {
			cancel()

			select {
			case <-serveDone:
			case <-opCtx.Done():
				return fmt.Errorf("wait for servers: %w", opCtx.Err())
			}

			return errors.Join(serveErr, chatSvc.Close())
		},
	})

	select {
	case code := <-wait:
		return code
	case <-serveDone:
		// a signal triggered the stop; let the shutdown operation finish
		if ctx.Err() != nil {
			return <-wait
		}
	}

	// servers stopped on their own, e.g. the port is taken
	if err := errors.Join(serveErr, chatSvc.Close()); err != nil {
		log.ErrorContext(ctx, "serve", "error", err)

		return 1
	}

	return 0
}
