package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paulGUZU/fsak/internal/listener"
	"github.com/paulGUZU/fsak/internal/logging"
	"github.com/paulGUZU/fsak/internal/platform"
	"github.com/paulGUZU/fsak/internal/router"
	"github.com/paulGUZU/fsak/internal/tlsdial"
	"github.com/paulGUZU/fsak/pkg/banner"
	"github.com/paulGUZU/fsak/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	routePath := flag.String("route", "", "path to route rules file")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "fsak: -config is required")
		os.Exit(1)
	}

	if err := run(*configPath, *routePath); err != nil {
		fmt.Fprintf(os.Stderr, "fsak: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, routePath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.RunType != "client" {
		return fmt.Errorf("config: unsupported run_type %q, only \"client\" is supported", cfg.RunType)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer log.Sync()

	if err := platform.RaiseFileLimit(4096); err != nil {
		log.Warn("could not raise file descriptor limit", zap.Error(err))
	}

	var r *router.Router
	if routePath != "" {
		r, err = router.Load(routePath)
		if err != nil {
			return fmt.Errorf("router: %w", err)
		}
	}

	dialer, err := tlsdial.New(cfg.SSL.AsClient(), cfg.TCP)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	remoteAddr := net.JoinHostPort(cfg.RemoteAddr, fmt.Sprintf("%d", cfg.RemotePort))
	sni := cfg.SSL.AsClient().SNI

	endpoint := listener.TrojanEndpoint{
		Dialer:     dialer,
		RemoteAddr: remoteAddr,
		SNI:        sni,
		Password:   cfg.Password[0],
	}

	localAddr := net.JoinHostPort(cfg.LocalAddr, fmt.Sprintf("%d", cfg.LocalPort))
	lst, err := listener.New(localAddr, r, endpoint, log)
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}

	banner.Print()
	banner.PrintClientStatus(lst.Addr().String(), remoteAddr, sni)

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
			log.Info("shutting down")
			return lst.Close()
		case <-ctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		return lst.Run(ctx)
	})

	return g.Wait()
}
