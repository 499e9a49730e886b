package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DANIELAGORA/leiberluna/client"
	"github.com/DANIELAGORA/leiberluna/codec"
	"github.com/DANIELAGORA/leiberluna/config"
	"github.com/DANIELAGORA/leiberluna/loadbalance"
	"github.com/DANIELAGORA/leiberluna/registry"
	"github.com/DANIELAGORA/leiberluna/sim"
	"github.com/DANIELAGORA/leiberluna/transport"
)

func newCallCmd(a *app) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "call METHOD",
		Short: "Invoke one method and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p map[string]any
			if params != "" {
				if err := json.Unmarshal([]byte(params), &p); err != nil {
					return fmt.Errorf("--params: %w", err)
				}
			}
			c, cleanup, err := newClient(a.cfg.Client, a.cfg.Registry, a.log)
			if err != nil {
				return err
			}
			defer cleanup()

			var result json.RawMessage
			if err := c.Call(cmd.Context(), args[0], p, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", "params as a JSON object")
	return cmd
}

func newCapabilitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the capabilities the server offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := newClient(a.cfg.Client, a.cfg.Registry, a.log)
			if err != nil {
				return err
			}
			defer cleanup()

			caps, err := c.ListCapabilities(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), caps)
		},
	}
}

// newClient builds a client from configuration. With registry endpoints the
// server address is discovered on every connect instead of taken from client.addr.
func newClient(cfg config.ClientConfig, regCfg config.RegistryConfig, log zerolog.Logger) (*client.Client, func(), error) {
	var dialer transport.Dialer
	switch cfg.Transport {
	case "ws":
		dialer = &transport.WSDialer{Codec: codec.ParseCodecType(cfg.Codec)}
	case "tcp":
		dialer = &transport.TCPDialer{Codec: codec.ParseCodecType(cfg.Codec), Timeout: cfg.ConnectTimeout}
	case "sim":
		d := sim.NewDialer(log)
		d.Latency = sim.Latency{Min: cfg.SimLatencyMin, Max: cfg.SimLatencyMax}
		dialer = d
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	var backoff client.Backoff = client.FixedBackoff{Delay: cfg.ReconnectDelay}
	if cfg.Backoff == "exponential" {
		backoff = client.ExponentialBackoff{Initial: cfg.ReconnectDelay, Max: cfg.ReconnectMaxDelay, Multiplier: 2, Jitter: 0.2}
	}

	opts := []client.Option{
		client.WithDialer(dialer),
		client.WithBackoff(backoff),
		client.WithCallTimeout(cfg.CallTimeout),
		client.WithConnectTimeout(cfg.ConnectTimeout),
		client.WithMaxReconnectAttempts(cfg.MaxReconnectAttempts),
		client.WithLogger(log),
	}

	cleanup := func() {}
	if len(regCfg.Endpoints) > 0 && cfg.Transport != "sim" {
		reg, err := registry.NewEtcdRegistry(regCfg.Endpoints, regCfg.DialTimeout, log)
		if err != nil {
			return nil, nil, err
		}
		balancer, err := loadbalance.New(cfg.Balancer)
		if err != nil {
			reg.Close()
			return nil, nil, err
		}
		opts = append(opts, client.WithResolver(&client.DiscoveryResolver{
			Registry:  reg,
			Service:   regCfg.Service,
			Transport: cfg.Transport,
			Balancer:  balancer,
		}))
		cleanup = func() { reg.Close() }
	}

	c := client.New(cfg.Addr, opts...)
	return c, func() {
		c.Close()
		cleanup()
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

