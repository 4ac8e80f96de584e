// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kingpin/v2"
	"github.com/coder/quartz"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/promslog"
	promslogflag "github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/route"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	webflag "github.com/prometheus/exporter-toolkit/web/kingpinflag"
	"go.uber.org/atomic"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/alertcore/alertcore/api"
	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/dedup"
	"github.com/alertcore/alertcore/manager"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/store"
	"github.com/alertcore/alertcore/store/mem"
	"github.com/alertcore/alertcore/store/sqlite"
	"github.com/alertcore/alertcore/template"
	"github.com/alertcore/alertcore/tracing"
	"github.com/alertcore/alertcore/types"
	"github.com/alertcore/alertcore/ui"
)

func init() {
	prometheus.MustRegister(versioncollector.NewCollector("alertcore"))
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var (
		configFile      = kingpin.Flag("config.file", "alertcore configuration file name.").Default("alertcore.yml").String()
		watchConfig     = kingpin.Flag("config.watch", "Reload the configuration file when it changes on disk.").Default("true").Bool()
		routePrefix     = kingpin.Flag("web.route-prefix", "Prefix for the internal routes of web endpoints.").Default("/").String()
		maxBodySize     = kingpin.Flag("web.max-body-size", "Maximum size of accepted request bodies.").Default("4MB").Bytes()
		shutdownTimeout = kingpin.Flag("web.shutdown-timeout", "Time to wait for in-flight requests on shutdown.").Default("30s").Duration()
		maxprocsEnable  = kingpin.Flag("auto-gomaxprocs", "Automatically set GOMAXPROCS to match Linux container CPU quota").Default("true").Bool()
		memlimitRatio   = kingpin.Flag("auto-gomemlimit.ratio", "The ratio of reserved GOMEMLIMIT memory to the detected maximum container or system memory. The value must be greater than 0 and less than or equal to 1. 0 disables it.").
				Default("0.9").Float64()

		toolkitFlags = webflag.AddFlags(kingpin.CommandLine, ":9095")
	)

	promslogConfig := promslog.Config{}
	promslogflag.AddFlags(kingpin.CommandLine, &promslogConfig)
	kingpin.Version(version.Print("alertcore"))
	kingpin.CommandLine.UsageWriter(os.Stdout)
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := promslog.New(&promslogConfig)
	logger.Info("Starting alertcore", "version", version.Info())
	logger.Info("Build context", "build_context", version.BuildContext())

	if *maxprocsEnable {
		l := func(format string, a ...interface{}) {
			logger.Info(fmt.Sprintf(strings.TrimPrefix(format, "maxprocs: "), a...), "component", "automaxprocs")
		}
		if _, err := maxprocs.Set(maxprocs.Logger(l)); err != nil {
			logger.Warn("Failed to set GOMAXPROCS automatically", "component", "automaxprocs", "err", err)
		}
	}

	if *memlimitRatio < 0.0 || *memlimitRatio > 1.0 {
		logger.Error("--auto-gomemlimit.ratio must be between 0 and 1", "ratio", *memlimitRatio)
		return 1
	}
	if *memlimitRatio > 0.0 {
		if _, err := memlimit.SetGoMemLimitWithOpts(
			memlimit.WithRatio(*memlimitRatio),
			memlimit.WithProvider(
				memlimit.ApplyFallback(
					memlimit.FromCgroup,
					memlimit.FromSystem,
				),
			),
		); err != nil {
			logger.Warn("Failed to set GOMEMLIMIT automatically", "component", "automemlimit", "err", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Settings other than channels and routes are read once here.
	conf, err := config.LoadFile(*configFile)
	if err != nil {
		logger.Error("Loading configuration file failed", "file", *configFile, "err", err)
		return 1
	}

	tracingManager := tracing.NewManager(logger.With("component", "tracing"))
	if err := tracingManager.ApplyConfig(conf.Tracing); err != nil {
		logger.Error("Unable to set up tracing", "err", err)
		return 1
	}

	st, err := openStore(ctx, conf.Store)
	if err != nil {
		logger.Error("Unable to open alert store", "err", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Closing alert store failed", "err", err)
		}
	}()

	tmpl, err := template.FromGlobs(conf.Templates)
	if err != nil {
		logger.Error("Loading templates failed", "err", err)
		return 1
	}

	clock := quartz.NewReal()
	registry := notify.NewRegistry()
	defer func() {
		if err := notify.Close(registry.Channels()...); err != nil {
			logger.Error("Closing channels failed", "err", err)
		}
	}()

	router, err := notify.NewRouter(notify.RouterOptions{
		Registry: registry,
		Retry:    notify.NewRetryPolicy(conf.MaxRetryAttempts, conf.RetryBackoffBase(), conf.RetryBackoffMax(), conf.PerChannelTimeout()),
		Template: tmpl,
		Window:   conf.DedupWindow(),
		Clock:    clock,
		Logger:   logger.With("component", "router"),
		Metrics:  prometheus.DefaultRegisterer,
	})
	if err != nil {
		logger.Error("Unable to create notification router", "err", err)
		return 1
	}

	mgr, err := manager.New(manager.Options{
		Store:             st,
		Router:            router,
		Fingerprinter:     types.NewFingerprinter(conf.VolatileLabels...),
		Deduplicator:      dedup.New(conf.DedupWindow()),
		ResolvedRetention: conf.ResolvedRetention(),
		HistoryRetention:  conf.HistoryRetention(),
		Clock:             clock,
		Logger:            logger.With("component", "manager"),
		Metrics:           prometheus.DefaultRegisterer,
	})
	if err != nil {
		logger.Error("Unable to create alert manager", "err", err)
		return 1
	}

	configLogger := logger.With("component", "configuration")
	configCoordinator := config.NewCoordinator(*configFile, prometheus.DefaultRegisterer, configLogger)
	configCoordinator.Subscribe(func(next *config.Config) error {
		if restartRequired(conf, next) {
			configLogger.Warn("Configuration changes other than channels and routes take effect after a restart")
		}
		return applyChannels(ctx, next, tmpl, registry, logger.With("component", "channels"))
	})
	if err := configCoordinator.Reload(); err != nil {
		return 1
	}

	apiV1, err := api.New(api.Options{
		Manager:     mgr,
		Registry:    registry,
		MaxBodySize: *maxBodySize,
		Logger:      logger.With("component", "api"),
		Registerer:  prometheus.DefaultRegisterer,
	})
	if err != nil {
		logger.Error("Failed to create API", "err", err)
		return 1
	}

	*routePrefix = "/" + strings.Trim(*routePrefix, "/")
	webRouter := route.New()
	if *routePrefix != "/" {
		webRouter = webRouter.WithPrefix(*routePrefix)
	}
	ready := atomic.NewBool(false)
	webReload := make(chan chan error)
	ui.Register(webRouter, webReload, ready.Load, prometheus.DefaultGatherer, logger.With("component", "ui"))

	apiPrefix := strings.TrimSuffix(*routePrefix, "/")
	mux := http.NewServeMux()
	mux.Handle("/", webRouter)
	mux.Handle(apiPrefix+"/api/v1/", http.StripPrefix(apiPrefix, apiV1.Handler))

	srv := &http.Server{
		Handler:           tracing.Middleware(mux),
		ReadHeaderTimeout: 30 * time.Second,
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	{
		g.Add(func() error {
			tracingManager.Run()
			return nil
		}, func(error) {
			tracingManager.Stop()
		})
	}
	{
		g.Add(func() error {
			ready.Store(true)
			if err := web.ListenAndServe(srv, toolkitFlags, logger); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		}, func(error) {
			ready.Store(false)
			sctx, scancel := context.WithTimeout(context.Background(), *shutdownTimeout)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Error("Error on HTTP server shutdown", "err", err)
			}
		})
	}
	{
		stopc := make(chan struct{})
		g.Add(func() error {
			mgr.Maintenance(time.Duration(conf.MaintenanceInterval), stopc)
			return nil
		}, func(error) {
			close(stopc)
		})
	}
	{
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		cancelReload := make(chan struct{})
		g.Add(func() error {
			for {
				select {
				case <-hup:
					_ = configCoordinator.Reload()
				case errc := <-webReload:
					errc <- configCoordinator.Reload()
				case <-cancelReload:
					return nil
				}
			}
		}, func(error) {
			signal.Stop(hup)
			close(cancelReload)
		})
	}
	if *watchConfig {
		wctx, wcancel := context.WithCancel(ctx)
		watcher := config.NewFileWatcher(*configFile, configCoordinator.Reload, configLogger)
		g.Add(func() error {
			return watcher.Watch(wctx)
		}, func(error) {
			wcancel()
		})
	}

	if err := g.Run(); err != nil {
		var se run.SignalError
		if errors.As(err, &se) {
			logger.Info("Received signal, exiting gracefully...", "signal", se.Signal.String())
			return 0
		}
		logger.Error("Run failed", "err", err)
		return 1
	}
	return 0
}

func openStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Type {
	case config.StoreSQLite:
		return sqlite.Open(ctx, c.Path)
	case config.StoreMemory, "":
		return mem.New(), nil
	}
	return nil, fmt.Errorf("unknown store type %q", c.Type)
}
