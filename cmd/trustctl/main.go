package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/Aaditya1273/TrustGraphV7/internal/client"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var version = "v0.0.1-default"

var (
	serverFlag = &cli.StringFlag{
		Name:    "server",
		Usage:   "TrustGraph API base URL",
		Value:   "http://localhost:8700",
		Sources: cli.EnvVars("TRUSTCTL_SERVER"),
	}

	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Admin bearer token for stake mutations",
		Sources: cli.EnvVars("TRUSTGRAPH_ADMIN_TOKEN"),
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs",
	}
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "trustctl",
		Usage:   "Query and administer a TrustGraph ledger",
		Version: version,
		Flags: []cli.Flag{
			serverFlag,
			tokenFlag,
			formatFlag,
			debugFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			initLogging(cmd.Bool(debugFlag.Name))
			switch f := cmd.String(formatFlag.Name); f {
			case formatJSON, formatYAML, "yml":
			default:
				return ctx, fmt.Errorf("unsupported format %q", f)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			rankCmd,
			reputationCmd,
			thresholdCmd,
			atomCmd,
			stakeCmd,
			statsCmd,
		},
	}
}

func initLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

func apiClient(cmd *cli.Command) *client.HTTPClient {
	server := cmd.String(serverFlag.Name)
	slog.Debug("using server", "url", server)
	return client.NewHTTPClient(server, cmd.String(tokenFlag.Name))
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func encode(cmd *cli.Command, v any) error {
	w := output(cmd)
	switch cmd.String(formatFlag.Name) {
	case formatYAML, "yml":
		return yaml.NewEncoder(w).Encode(toPlain(v))
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// toPlain round-trips v through JSON so YAML output uses the same field
// names as the API.
func toPlain(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
