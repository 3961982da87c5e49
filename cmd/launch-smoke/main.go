package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		opts                      smokeOptions
		tenant, operator, channel string
	)

	cmd := &cobra.Command{
		Use:   "launch-smoke",
		Short: "Upload a synthetic CSV, launch it and consume the progress stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.TenantID, err = uuid.Parse(tenant); err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}
			if opts.OperatorID, err = uuid.Parse(operator); err != nil {
				return fmt.Errorf("--operator: %w", err)
			}
			if opts.ChannelID, err = uuid.Parse(channel); err != nil {
				return fmt.Errorf("--channel: %w", err)
			}

			fmt.Println("🔍 Checking if server is running...")
			resp, err := http.Get(opts.BaseURL + "/health")
			if err != nil {
				return fmt.Errorf("cannot reach %s: %w", opts.BaseURL, err)
			}
			resp.Body.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("🚀 Launching %d rows through %s\n", opts.Rows, opts.BaseURL)
			res, err := runSmoke(ctx, http.DefaultClient, opts)
			if res != nil {
				printResults(res)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "url", "http://localhost:8080", "campaign-api base URL")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&operator, "operator", uuid.NewString(), "operator id")
	cmd.Flags().StringVar(&channel, "channel", "", "channel id")
	cmd.Flags().StringVar(&opts.Template, "template", "hello_world", "approved template name")
	cmd.Flags().StringVar(&opts.Language, "language", "", "template language")
	cmd.Flags().IntVar(&opts.Rows, "rows", 100, "number of synthetic rows")
	cmd.Flags().IntVar(&opts.BlankEvery, "blank-every", 10, "blank the phone on every nth row, 0 to disable")
	cmd.Flags().IntVar(&opts.DelayMS, "delay-ms", 0, "per-row delay requested from the server")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func printResults(res *smokeResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRow(table.Row{"Rows", res.Rows})
	tw.AppendRow(table.Row{"Row events", res.Events})
	tw.AppendRow(table.Row{"Upload", res.UploadTime})
	tw.AppendRow(table.Row{"First event", res.FirstEvent})
	tw.AppendRow(table.Row{"Stream", res.StreamTime})
	if res.StreamTime > 0 && res.Events > 0 {
		tw.AppendRow(table.Row{"Rows/sec", fmt.Sprintf("%.2f", float64(res.Events)/res.StreamTime.Seconds())})
	}
	if res.Done != nil {
		tw.AppendRow(table.Row{"✅ Sent", res.Done.Sent})
		tw.AppendRow(table.Row{"⏭️  Skipped", res.Done.Skipped})
		tw.AppendRow(table.Row{"❌ Failed", res.Done.Failed})
	}
	if res.OutOfOrderAt >= 0 {
		tw.AppendRow(table.Row{"⚠️  Out of order at", res.OutOfOrderAt})
	}
	tw.Render()

	if len(res.Errors) > 0 {
		et := table.NewWriter()
		et.SetOutputMirror(os.Stdout)
		et.AppendHeader(table.Row{"Error", "Count"})
		for msg, n := range res.Errors {
			et.AppendRow(table.Row{msg, n})
		}
		et.Render()
	}
}
