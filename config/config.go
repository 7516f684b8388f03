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

// Package config binds the server's flags through spf13/cobra and layers
// in environment overrides through spf13/viper (no configuration file is
// read), producing an
// immutable Config for cmd/memkvd. Both libraries are direct dependencies
// of the parent module; this package uses them straight rather than
// through that module's own cobra/viper wrapper packages, which carry a
// UI/completion/remote-backend surface this server has no use for.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved, immutable runtime configuration.
type Config struct {
	Port         int
	Capacity     int
	Mode         string
	LowWatermark int
	HighWatermark int
	MaxQueue     int
	IdleTimeout  time.Duration
	LogLevel     string
	MetricsAddr  string
}

// Bind registers every flag on cmd and wires viper to read the same
// names from MEMKV_-prefixed environment variables, following the common
// cobra+viper layering pattern.
func Bind(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.Int("port", 8080, "TCP port to listen on")
	flags.Int("capacity", 1<<20, "maximum store size in bytes")
	flags.String("mode", "st-nonblocking", "server mode: st-nonblocking | mt-nonblocking | st-coroutine")
	flags.Int("low-watermark", 2, "worker pool low watermark (mt-nonblocking only)")
	flags.Int("high-watermark", 8, "worker pool high watermark (mt-nonblocking only)")
	flags.Int("max-queue", 128, "worker pool bounded task queue size (mt-nonblocking only)")
	flags.Duration("idle-timeout", 5*time.Second, "worker idle timeout before shrinking (mt-nonblocking only)")
	flags.String("log-level", "info", "log level: panic|fatal|error|warn|info|debug|trace")
	flags.String("metrics-addr", "", "address to serve Prometheus /metrics on; empty disables it")

	v.SetEnvPrefix("MEMKV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)
}

// Resolve reads the bound viper instance into a Config and validates the
// watermark/queue invariants the pool requires.
func Resolve(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:          v.GetInt("port"),
		Capacity:      v.GetInt("capacity"),
		Mode:          v.GetString("mode"),
		LowWatermark:  v.GetInt("low-watermark"),
		HighWatermark: v.GetInt("high-watermark"),
		MaxQueue:      v.GetInt("max-queue"),
		IdleTimeout:   v.GetDuration("idle-timeout"),
		LogLevel:      v.GetString("log-level"),
		MetricsAddr:   v.GetString("metrics-addr"),
	}

	switch cfg.Mode {
	case "st-nonblocking", "mt-nonblocking", "st-coroutine":
	default:
		return Config{}, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.LowWatermark < 0 || cfg.LowWatermark > cfg.HighWatermark {
		return Config{}, fmt.Errorf("low-watermark (%d) must be between 0 and high-watermark (%d)", cfg.LowWatermark, cfg.HighWatermark)
	}
	if cfg.MaxQueue < 1 {
		return Config{}, fmt.Errorf("max-queue must be >= 1, got %d", cfg.MaxQueue)
	}
	if cfg.Capacity <= 0 {
		return Config{}, fmt.Errorf("capacity must be > 0, got %d", cfg.Capacity)
	}

	return cfg, nil
}
