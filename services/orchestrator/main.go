// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/apache/airavata-sub033/lib/coordination"
	"github.com/apache/airavata-sub033/lib/eventbus"
	"github.com/apache/airavata-sub033/lib/monitor"
	"github.com/apache/airavata-sub033/lib/orchestrator"
	"github.com/apache/airavata-sub033/lib/task"
	"github.com/apache/airavata-sub033/lib/workflow"
	"github.com/apache/airavata-sub033/sdk/go/airavata"
	"github.com/apache/airavata-sub033/sdk/go/config"
	"github.com/apache/airavata-sub033/sdk/go/ctxlog"
)

func main() {
	configPath := flag.String("config", "/etc/airavata/orchestrator/orchestrator.yml", "`path` to config file")
	dumpConfig := flag.Bool("dump-config", false, "show current configuration and exit")
	setupDB := flag.Bool("setup-db", false, "create database tables and exit")
	cfg := DefaultConfig()
	flag.Parse()

	logger := ctxlog.FromContext(nil)
	if err := config.LoadFile(&cfg, *configPath); err != nil {
		logger.Fatal(err)
	}
	ctxlog.SetLevel(cfg.LogLevel)
	ctxlog.SetFormat(cfg.LogFormat)

	if *dumpConfig {
		if err := config.DumpAndExit(&cfg); err != nil {
			logger.Fatal(err)
		}
		return
	}

	db, err := sqlx.Open("postgres", cfg.Postgres.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("postgres open failed")
	}
	coordStore := &coordination.PGStore{DB: db}

	ctx, cancel := signal.NotifyContext(ctxlog.Context(context.Background(), logger), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *setupDB {
		if err := coordStore.SetupDB(ctx); err != nil {
			logger.Fatal(err)
		}
		logger.Info("database setup complete")
		return
	}

	registry := airavata.NewClient(cfg.Registry.APIHost, cfg.Registry.AuthToken)
	registry.Timeout = cfg.RequestTimeout.Duration()
	adaptor := task.NewRemoteAdaptor(cfg.AgentService.BaseURL, cfg.AgentService.AuthToken)

	bus := &eventbus.PGBus{
		DB:         db,
		DataSource: cfg.Postgres.ConnectionString(),
		QueueSize:  cfg.EventQueue,
	}
	engine := workflow.NewInProcessEngine()
	builder := &workflow.Builder{
		Deps: workflow.Deps{
			Agent:          adaptor,
			Mover:          adaptor,
			Submitter:      adaptor,
			ParserExecutor: adaptor,
			CoordStore:     coordStore,
		},
		MaxTaskRetries: cfg.MaxTaskRetries,
	}
	handler := &orchestrator.Handler{
		Registry:   registry,
		Publisher:  bus,
		CoordStore: coordStore,
	}
	deps := monitor.Deps{
		Registry:   registry,
		Publisher:  bus,
		Source:     bus,
		CoordStore: coordStore,
		Engine:     engine,
		Builder:    builder,
	}
	preManager := &monitor.PreWorkflowManager{Deps: deps}
	postManager := &monitor.PostWorkflowManager{Deps: deps}
	experimentManager := &monitor.ExperimentManager{Deps: deps}
	parserManager := &monitor.ParserWorkflowManager{Deps: deps}

	reg := prometheus.NewRegistry()
	bus.RegisterMetrics(reg)
	engine.RegisterMetrics(reg)
	handler.RegisterMetrics(reg)
	preManager.RegisterMetrics(reg)
	postManager.RegisterMetrics(reg)
	experimentManager.RegisterMetrics(reg)
	parserManager.RegisterMetrics(reg)

	srv := &http.Server{
		Addr:           cfg.Listen,
		ReadTimeout:    time.Minute,
		WriteTimeout:   time.Minute,
		MaxHeaderBytes: 1 << 20,
		Handler:        newRouter(handler, reg),
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return bus.Run(ctx) })
	if err := bus.WaitReady(10 * time.Second); err != nil {
		logger.WithError(err).Fatal("event bus startup failed")
	}
	grp.Go(func() error { return preManager.Run(ctx) })
	grp.Go(func() error { return postManager.Run(ctx) })
	grp.Go(func() error { return experimentManager.Run(ctx) })
	grp.Go(func() error { return parserManager.Run(ctx) })
	grp.Go(func() error {
		logger.WithField("Listen", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil {
		logger.WithError(err).Fatal("service exited with error")
	}
	handler.Wait()
	engine.Wait()
}
