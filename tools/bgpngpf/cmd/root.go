// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd implements the bgpngpf command, which runs a back-to-back BGP
// NGPF test on an IxNetwork API server and prints the flow statistics.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
	"github.com/openconfig/ngpfbgp/internal/observability"
	"github.com/openconfig/ngpfbgp/internal/orchestrator"
	"github.com/openconfig/ngpfbgp/internal/report"
	"github.com/openconfig/ngpfbgp/internal/rundata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// runFunc runs one test; orchestrator.Run outside of tests.
type runFunc func(ctx context.Context, opts orchestrator.Options, connect orchestrator.ConnectFunc) (*orchestrator.Result, error)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := newRootCmd(orchestrator.Run)
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	err := root.Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error! %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bgpngpf [" + strings.Join(ixnet.ServerKinds(), "|") + "]",
		Short: "Run a back-to-back BGP NGPF test on an IxNetwork API server",
		Long: `bgpngpf configures two BGP over Ethernet topologies on an IxNetwork API
server, verifies the BGP sessions, sends traffic between them and prints
the flow statistics.

The argument selects the API server kind (default windows). Settings are
read from flags, from BGPNGPF_* environment variables and from the file
given with --config, in that order of precedence.`,
		Args:          validateArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Usage is only useful for argument errors.
			cmd.SilenceUsage = true
			return runTest(cmd, args, run)
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

func validateArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return err
	}
	if len(args) == 1 {
		if _, err := ixnet.ParseServerKind(args[0]); err != nil {
			return fmt.Errorf("invalid argument %q: %w", args[0], err)
		}
	}
	return nil
}

func runTest(cmd *cobra.Command, args []string, run runFunc) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	var kindArg string
	if len(args) == 1 {
		kindArg = args[0]
	}
	c, err := loadConfig(v, kindArg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if v.GetBool("print-config") {
		return yaml.NewEncoder(out).Encode(c)
	}
	cfg, err := c.loadScenario()
	if err != nil {
		return err
	}
	if v.GetBool("print-scenario") {
		y, err := cfg.Marshal().ToYaml()
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, y)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     c.TraceExporter != "",
		ServiceName: "bgpngpf",
		Exporter:    c.TraceExporter,
		Endpoint:    c.TraceEndpoint,
		RunID:       runID,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown)

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	connOpts := c.connectOptions()
	connOpts.Metrics = metrics
	opts := c.options(cfg)
	opts.Metrics = metrics

	props := rundata.Properties(rundata.Run{
		ID:       runID,
		Kind:     c.kind(),
		Server:   c.APIServer,
		Scenario: cfg,
		Flags:    cmd.Flags(),
	})
	for _, k := range slices.Sorted(maps.Keys(props)) {
		glog.V(1).Infof("Run property %s: %s", k, props[k])
	}
	ctx, span := observability.Tracer().Start(ctx, "bgpngpf", trace.WithAttributes(rundata.Attributes(props)...))
	defer span.End()

	glog.Infof("Run %s: %s API server %s, ports %s", runID, c.ServerKind, c.APIServer, props["ports"])
	res, runErr := run(ctx, opts, orchestrator.Dial(connOpts))
	if c.MetricsFile != "" {
		if err := metrics.WriteTextfile(c.MetricsFile); err != nil {
			glog.Errorf("Writing metrics to %s: %v", c.MetricsFile, err)
		}
	}
	if runErr != nil {
		writeTrace(cmd.ErrOrStderr(), runErr, c.EnableDebugTracing)
		return runErr
	}
	if res.Stats == nil {
		return nil
	}
	return report.WriteFlowTable(out, res.Stats)
}

// writeTrace prints the detailed error of a failed run when debug tracing
// is on. Connection failures carry no useful stack and are skipped.
func writeTrace(w io.Writer, err error, debug bool) {
	if !debug || ixnet.IsKind(err, ixnet.KindConnection) {
		return
	}
	fmt.Fprintf(w, "\n%+v\n", err)
}
