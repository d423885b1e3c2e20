package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/tradewire-go/tradewire/pkg/capture"
	"github.com/tradewire-go/tradewire/pkg/quote"
)

func captureCmd() *cobra.Command {
	var (
		symbols  []string
		out      string
		url      string
		token    string
		fastJSON bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record raw feed traffic to a file or S3",
		Long: `Record every feed event as JSON lines for later inspection.

The output target is either a local file path or an s3:// URL. S3
uploads use the standard AWS environment variables for credentials
(AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).

Examples:
  tradewire capture --symbols BINANCE:BTCUSDT --out feed.jsonl
  tradewire capture --symbols NASDAQ:AAPL --out s3://my-bucket/captures/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(symbols, out, url, token, fastJSON)
		},
	}

	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "Symbols to subscribe to (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output target: file path or s3://bucket/prefix (required)")
	cmd.Flags().StringVar(&url, "url", "", "Feed WebSocket URL (default production feed)")
	cmd.Flags().StringVar(&token, "token", "", "Auth token (default anonymous)")
	cmd.Flags().BoolVar(&fastJSON, "fast-json", false, "Use the goccy JSON codec for decoding")
	cmd.MarkFlagRequired("symbols")
	cmd.MarkFlagRequired("out")

	return cmd
}

func runCapture(symbols []string, out, url, token string, fastJSON bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := buildSink(ctx, out)
	if err != nil {
		return err
	}

	c, err := buildClient(ctx, url, token, "", fastJSON)
	if err != nil {
		return err
	}

	rec := capture.Attach(c, sink, nil)
	defer func() {
		if err := rec.Close(); err != nil {
			errorMsg("closing capture: %v", err)
		}
	}()

	qs, err := quote.New(c, nil)
	if err != nil {
		return err
	}
	qs.AddSymbols(symbols...)

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	info("capturing to %s", out)
	return c.Connect(ctx)
}

// buildSink resolves the --out flag into a capture sink.
func buildSink(ctx context.Context, out string) (capture.Sink, error) {
	if !strings.HasPrefix(out, "s3://") {
		return capture.NewFileSink(out)
	}

	rest := strings.TrimPrefix(out, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("invalid s3 target %q", out)
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION must be set for s3 targets")
	}

	s3c := s3.New(s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
					SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
					SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				}, nil
			})),
	})
	return capture.NewS3Sink(ctx, s3c, bucket, prefix), nil
}
