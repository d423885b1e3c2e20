package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tradewire-go/tradewire/internal/debugserver"
	"github.com/tradewire-go/tradewire/pkg/client"
	"github.com/tradewire-go/tradewire/pkg/protocol"
	"github.com/tradewire-go/tradewire/pkg/quote"
)

func streamCmd() *cobra.Command {
	var (
		symbols     []string
		fields      []string
		url         string
		token       string
		metricsAddr string
		fastJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream live quotes for a set of symbols",
		Long: `Stream live quote updates to stdout.

Each update prints the symbol and the fields that changed. Field
selection defaults to the standard quote fields (last price, change,
volume and friends).

Examples:
  tradewire stream --symbols BINANCE:BTCUSDT
  tradewire stream --symbols NASDAQ:AAPL,NASDAQ:MSFT --fields lp,ch,chp
  tradewire stream --symbols BINANCE:ETHUSDT --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(symbols, fields, url, token, metricsAddr, fastJSON)
		},
	}

	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "Symbols to subscribe to (required)")
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Quote fields to request (default standard set)")
	cmd.Flags().StringVar(&url, "url", "", "Feed WebSocket URL (default production feed)")
	cmd.Flags().StringVar(&token, "token", "", "Auth token (default anonymous)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&fastJSON, "fast-json", false, "Use the goccy JSON codec for decoding")
	cmd.MarkFlagRequired("symbols")

	return cmd
}

func runStream(symbols, fields []string, url, token, metricsAddr string, fastJSON bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildClient(ctx, url, token, metricsAddr, fastJSON)
	if err != nil {
		return err
	}

	var opts *quote.Options
	if len(fields) > 0 {
		opts = &quote.Options{Fields: fields}
	}
	qs, err := quote.New(c, opts)
	if err != nil {
		return err
	}
	qs.AddSymbols(symbols...)

	qs.OnData(client.CallbackFunc(func(args []any) {
		if len(args) < 2 {
			return
		}
		symbol, _ := args[0].(string)
		values, _ := args[1].(map[string]any)
		fmt.Printf("%s  %s\n", symbol, formatValues(values))
	}))
	qs.OnLoaded(client.CallbackFunc(func(args []any) {
		if len(args) > 0 {
			success("loaded %v", args[0])
		}
	}))
	qs.OnError(client.CallbackFunc(func(args []any) {
		errorMsg("quote error: %v", args)
	}))
	c.OnError(client.CallbackFunc(func(args []any) {
		errorMsg("%v", args)
	}))
	c.OnLogged(client.CallbackFunc(func(args []any) {
		success("authenticated")
	}))

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	info("connecting...")
	return c.Connect(ctx)
}

// buildClient assembles a client from the shared stream/capture flags.
// When metricsAddr is set a debug server starts in the background and
// serves the client's counters until ctx is canceled.
func buildClient(ctx context.Context, url, token, metricsAddr string, fastJSON bool) (*client.Client, error) {
	cfg := client.DefaultConfig()
	if url != "" {
		cfg.URL = url
	}
	if token != "" {
		cfg.AuthToken = token
	}
	if fastJSON {
		cfg.Codec = protocol.FastCodec()
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		cfg.Metrics = client.NewMetrics(client.WithRegistry(reg))
		srv := debugserver.New(metricsAddr, reg, cfg.Logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				errorMsg("debug server: %v", err)
			}
		}()
	}

	return client.New(cfg), nil
}

// formatValues renders a quote field map as stable key=value pairs.
func formatValues(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(values))
	for _, k := range []string{"lp", "ch", "chp", "volume"} {
		if v, ok := values[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	if len(parts) == 0 {
		for k, v := range values {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}
