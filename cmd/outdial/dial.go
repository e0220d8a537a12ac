package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sebas/outdial/internal/outdial/widget"
)

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Run one outdial sequence without the HTTP server",
	Long: `Validate, dial and notify once for --phone, then exit.

The activity log is printed as the sequence runs. The exit status is
non-zero when no call was placed or the notification failed.`,
	RunE: runDial,
}

var errAborted = errors.New("outdial did not place a call")

var (
	dialPhone  string
	dialParam  string
	dialHangup time.Duration
)

func init() {
	dialCmd.Flags().StringVar(&dialPhone, "phone", "", "Destination phone number (required)")
	dialCmd.Flags().StringVar(&dialParam, "param", "", "API parameter sent to the endpoints")
	dialCmd.Flags().DurationVar(&dialHangup, "hangup-after", 0, "Hang up after this long (0 leaves the call up)")
	_ = dialCmd.MarkFlagRequired("phone")
	rootCmd.AddCommand(dialCmd)
}

func runDial(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.sip != nil {
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := rt.sip.Serve(sctx); err != nil && sctx.Err() == nil {
				slog.Error("SIP listener stopped", "error", err)
			}
		}()
	}

	rt.widget.Connect(ctx)
	rt.widget.SetPhoneNumber(dialPhone)
	rt.widget.SetAPIParameter(dialParam)

	resp, err := rt.widget.Outdial(ctx)
	printLog(rt.widget)

	var notifyErr *widget.NotifyError
	switch {
	case errors.As(err, &notifyErr):
		printJSON(resp)
		return err
	case err != nil:
		return err
	case resp == nil:
		return fmt.Errorf("%w: %s", errAborted, rt.widget.Snapshot().LastOutcome)
	}
	printJSON(resp)

	if dialHangup > 0 && resp.InteractionID != "" {
		time.Sleep(dialHangup)
		if err := rt.Hangup(ctx, resp.InteractionID); err != nil {
			return fmt.Errorf("hangup: %w", err)
		}
	}
	return nil
}

func printLog(w *widget.Widget) {
	for _, e := range w.Log().Entries() {
		fmt.Fprintf(os.Stderr, "[%s] %-7s %s\n", e.Time.Format("15:04:05"), e.Severity, e.Message)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
