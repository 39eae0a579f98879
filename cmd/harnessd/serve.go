package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentharness/harness/internal/checkpoint"
	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/gate"
	"github.com/agentharness/harness/internal/harnessconfig"
	"github.com/agentharness/harness/internal/lifecycle"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/metrics"
	"github.com/agentharness/harness/internal/operationsurface"
	"github.com/agentharness/harness/internal/protocolsync"
	"github.com/agentharness/harness/internal/ptysup"
	"github.com/agentharness/harness/internal/recovery"
	"github.com/agentharness/harness/internal/scanner"
	"github.com/agentharness/harness/internal/store"
	"github.com/agentharness/harness/internal/sweeper"
	"github.com/agentharness/harness/internal/waiter"
	"github.com/agentharness/harness/internal/waitstate"
)

func serveCmd() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the harness daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, addr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a harness config JSON file")
	cmd.Flags().StringVar(&addr, "addr", "", "override the configured host:port to listen on")
	return cmd
}

func runServe(ctx context.Context, configPath, addrOverride string) error {
	cfg, err := harnessconfig.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.HTTPAddr = addrOverride
	}

	logPath := os.ExpandEnv("$HOME/.harness/harnessd.log")
	if _, err := logging.Init(logPath, cfg.Debug); err != nil {
		return err
	}
	log := logging.Named("harnessd")
	defer logging.Sync()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	bus := eventbus.New()
	detector := waitstate.New(st, bus)
	sup := ptysup.New(ptysup.Config{
		MaxSlots:          cfg.MaxSessions,
		Executable:        cfg.Executable,
		ExtraArgs:         cfg.ExecutableArgs,
		OutputBufferBytes: cfg.OutputBufferBytesPerSession,
	}, st, bus, detector)
	checkpoints := checkpoint.New(st, sup)
	g := gate.New(st)
	scan := scanner.New(st)
	wait := waiter.New(st, bus)
	coord := lifecycle.New(st, bus, g, detector)
	psync := protocolsync.New(st, bus)
	sweep := sweeper.New(sup, time.Minute, cfg.SessionTimeout)

	if err := metrics.Register(prometheus.DefaultRegisterer, metrics.Sources{
		Supervisor: sup, Store: st, Bus: bus,
	}); err != nil {
		return err
	}

	recovered, err := recovery.New(st, bus).Run()
	if err != nil {
		return err
	}
	if len(recovered) > 0 {
		log.Info("recovered stale sessions at startup", zap.Strings("sessionIds", recovered))
	}

	host, portStr, err := net.SplitHostPort(cfg.HTTPAddr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}

	srv := operationsurface.New(operationsurface.Deps{
		Store:       st,
		Supervisor:  sup,
		Checkpoints: checkpoints,
		Gate:        g,
		Scanner:     scan,
		Waiter:      wait,
		Bus:         bus,
	}, operationsurface.Options{
		Host:      host,
		Port:      port,
		AuthToken: cfg.AuthToken,
		RateLimit: cfg.RateLimitRPS,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	watchers := newProjectWatchers(scan, st, bus)

	group.Go(func() error { return coord.Run(gctx) })
	group.Go(func() error { return psync.Run(gctx) })
	group.Go(func() error { return sweep.Run(gctx) })
	group.Go(func() error { return watchers.Run(gctx) })
	group.Go(func() error {
		if err := srv.Start(); err != nil {
			return err
		}
		log.Info("operation surface listening", zap.String("addr", srv.Addr()))
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// projectWatchers keeps one scanner.Watcher alive per distinct project
// root a session has ever been started against, discovered reactively
// from session:started events rather than a static config list.
type projectWatchers struct {
	scanner *scanner.Scanner
	store   *store.Store
	bus     *eventbus.Bus

	mu    sync.Mutex
	roots map[string]bool
}

func newProjectWatchers(s *scanner.Scanner, st *store.Store, bus *eventbus.Bus) *projectWatchers {
	return &projectWatchers{scanner: s, store: st, bus: bus, roots: make(map[string]bool)}
}

func (p *projectWatchers) Run(ctx context.Context) error {
	sub := p.bus.Subscribe(nil, []eventbus.Type{eventbus.SessionStarted}, 64)
	defer sub.Close()

	log := logging.Named("project-watchers")
	group, gctx := errgroup.WithContext(ctx)

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return group.Wait()
			}
			sess, err := p.store.GetSession(ev.SessionID)
			if err != nil || sess == nil {
				continue
			}
			if p.claim(sess.WorkingDir) {
				w, err := scanner.NewWatcher(p.scanner, sess.WorkingDir)
				if err != nil {
					log.Warn("failed to watch project root", zap.String("root", sess.WorkingDir), zap.Error(err))
					continue
				}
				group.Go(func() error { return w.Run(gctx) })
			}
		case <-ctx.Done():
			return group.Wait()
		}
	}
}

func (p *projectWatchers) claim(root string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roots[root] {
		return false
	}
	p.roots[root] = true
	return true
}
