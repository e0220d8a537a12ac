package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sebas/outdial/internal/outdial/activity"
	"github.com/sebas/outdial/internal/outdial/config"
	"github.com/sebas/outdial/internal/outdial/endpoint"
	"github.com/sebas/outdial/internal/outdial/host"
	"github.com/sebas/outdial/internal/outdial/sipdial"
	"github.com/sebas/outdial/internal/outdial/widget"
)

// runtime is the wired widget with its host and optional SIP dialer.
type runtime struct {
	host   *host.Local
	sip    *sipdial.Dialer
	widget *widget.Widget
}

func buildRuntime(c *config.Config) (*runtime, error) {
	rt := &runtime{host: host.NewLocal(nil, slog.Default())}

	if c.SIP.Proxy != "" {
		d, err := sipdial.New(sipdial.Config{
			Proxy:     c.SIP.Proxy,
			Domain:    c.SIP.Domain,
			Transport: c.SIP.Transport,
			LocalHost: c.SIP.LocalHost,
			LocalPort: c.SIP.LocalPort,
			MediaPort: c.SIP.MediaPort,
			UserAgent: c.SIP.UserAgent,
			Codecs:    c.SIP.Codecs,
			Events:    func(ctx context.Context, ev host.ContactEvent) { rt.host.Emit(ctx, ev) },
		})
		if err != nil {
			return nil, fmt.Errorf("create SIP dialer: %w", err)
		}
		rt.sip = d
		rt.host.SetDialer(d)
	} else {
		slog.Warn("No SIP proxy configured, outdial requests will fail", "error", host.ErrDialerUnavailable)
	}

	validator, notifier := buildEndpoints(c)
	rt.widget = widget.New(widget.Config{
		Options:   c.WidgetOptions(),
		Host:      rt.host,
		Validator: validator,
		Notifier:  notifier,
		Log:       activity.NewLog(c.Widget.LogCapacity),
	})
	rt.widget.SetDarkMode(c.Widget.DarkMode)
	return rt, nil
}

// buildEndpoints returns nil interfaces, not typed nils, for unset URLs.
func buildEndpoints(c *config.Config) (widget.Validator, widget.Notifier) {
	var (
		v widget.Validator
		n widget.Notifier
	)
	if c.Validation.URL != "" {
		v = endpoint.NewClient(c.Validation.ClientConfig("validation"))
	}
	if c.Notification.URL != "" {
		n = endpoint.NewClient(c.Notification.ClientConfig("notification"))
	}
	return v, n
}

// reload applies a changed config file to the running widget. SIP and
// listener settings need a restart.
func (rt *runtime) reload(old, next *config.Config) {
	rt.widget.UpdateOptions(next.WidgetOptions())
	rt.widget.SetEndpoints(buildEndpoints(next))
	if !old.SIP.Equal(next.SIP) || old.Port != next.Port || old.GRPCPort != next.GRPCPort {
		slog.Warn("SIP or listener settings changed, restart to apply")
	}
}

// Hangup ends a call through the SIP dialer.
func (rt *runtime) Hangup(ctx context.Context, interactionID string) error {
	if rt.sip == nil {
		return host.ErrDialerUnavailable
	}
	return rt.sip.Hangup(ctx, interactionID)
}

func (rt *runtime) close() error {
	rt.widget.Disconnect()
	if rt.sip != nil {
		return rt.sip.Close()
	}
	return nil
}
