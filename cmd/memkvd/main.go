/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command memkvd is the memcached-compatible in-memory key/value server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/sabouaram/memkv/command"
	"github.com/sabouaram/memkv/config"
	"github.com/sabouaram/memkv/logging"
	"github.com/sabouaram/memkv/lru"
	"github.com/sabouaram/memkv/metrics"
	"github.com/sabouaram/memkv/pool"
	"github.com/sabouaram/memkv/server"
)

// version is the string the version command reports. It is a constant, so
// it is fixed in source rather than stamped at build time.
const version = "0.1.0"

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "memkvd",
		Short: "memcached-compatible in-memory key/value server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}
	config.Bind(root, v)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	cfg, err := config.Resolve(v)
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel)
	baseLog := log.Entry()

	store := lru.New(cfg.Capacity)

	var rec command.Recorder
	var mtr *metrics.Metrics
	if cfg.MetricsAddr != "" {
		mtr = metrics.New()
		rec = mtr
	}

	exec := command.New(store, baseLog.WithField("component", "command"), version, log, rec)

	listenFD, lerr := server.Listen(cfg.Port)
	if lerr != nil {
		return lerr
	}

	srvCfg := server.Config{
		Mode: server.Mode(cfg.Mode),
		Pool: pool.Config{
			Low:         cfg.LowWatermark,
			High:        cfg.HighWatermark,
			MaxQueue:    cfg.MaxQueue,
			IdleTimeout: cfg.IdleTimeout,
		},
	}

	srv, serr := server.New(listenFD, exec, srvCfg, baseLog.WithField("component", "server"))
	if serr != nil {
		return serr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := srv.Serve(); err != nil {
			return err
		}
		return nil
	})

	if mtr != nil {
		group.Go(func() error {
			return mtr.Serve(gctx, cfg.MetricsAddr)
		})
	}

	group.Go(func() error {
		<-gctx.Done()
		baseLog.Info("shutdown requested")
		srv.Stop()
		return nil
	})

	baseLog.WithField("port", cfg.Port).WithField("mode", cfg.Mode).Info("memkvd listening")
	return group.Wait()
}
