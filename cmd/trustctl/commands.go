package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

var (
	topNFlag = &cli.IntFlag{
		Name:  "n",
		Usage: "Number of ranked nodes to return",
		Value: 10,
	}

	dimensionsFlag = &cli.StringSliceFlag{
		Name:  "dimension",
		Usage: "Restrict the summary to a dimension (repeatable)",
	}

	thresholdDimensionFlag = &cli.StringFlag{
		Name:  "dimension",
		Usage: "Dimension to compare (overall when omitted)",
		Value: "overall",
	}

	reasonFlag = &cli.StringFlag{
		Name:  "reason",
		Usage: "Reason recorded with the stake event",
	}

	historyLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum events to return",
		Value: 50,
	}

	fraudulentFlag = &cli.BoolFlag{
		Name:  "fraudulent",
		Usage: "Resolve the dispute as fraudulent and slash at the configured rate",
	}

	issuerFlag = &cli.StringFlag{
		Name:     "issuer",
		Usage:    "Issuer identifier",
		Required: true,
	}

	targetFlag = &cli.StringFlag{
		Name:     "target",
		Usage:    "Target identifier",
		Required: true,
	}

	vectorFlag = &cli.StringSliceFlag{
		Name:  "set",
		Usage: "Vector field as name=value, e.g. honesty=0.9 (repeatable)",
	}

	contentFlag = &cli.StringFlag{
		Name:  "content",
		Usage: "Free-text justification",
	}

	evidenceFlag = &cli.StringSliceFlag{
		Name:  "evidence",
		Usage: "Evidence knowledge-asset reference (repeatable)",
	}

	requiredStakeFlag = &cli.StringFlag{
		Name:  "required-stake",
		Usage: "Required stake, e.g. \"150 TRAC\"",
		Value: "0",
	}

	ttlFlag = &cli.DurationFlag{
		Name:  "ttl",
		Usage: "Expire the atom after this duration",
	}

	replacesFlag = &cli.StringFlag{
		Name:  "replaces",
		Usage: "ID of an earlier atom by the same issuer that this one supersedes",
	}

	fileFlag = &cli.StringFlag{
		Name:  "file",
		Usage: "Publish canonical records from a JSON file (one record or an array)",
	}

	rankCmd = &cli.Command{
		Name:  "rank",
		Usage: "Global ranking queries",
		Commands: []*cli.Command{
			{
				Name:   "top",
				Usage:  "List the highest ranked nodes",
				Flags:  []cli.Flag{topNFlag},
				Action: cmdRankTop,
			},
			{
				Name:   "stats",
				Usage:  "Summarise the current ranking",
				Action: cmdRankStats,
			},
		},
	}

	reputationCmd = &cli.Command{
		Name:      "reputation",
		Aliases:   []string{"rep"},
		Usage:     "Aggregate reputation of a target",
		ArgsUsage: "<target>",
		Flags:     []cli.Flag{dimensionsFlag},
		Action:    cmdReputation,
	}

	thresholdCmd = &cli.Command{
		Name:      "threshold",
		Usage:     "Check whether a target meets a minimum score",
		ArgsUsage: "<target> <threshold>",
		Flags:     []cli.Flag{thresholdDimensionFlag},
		Action:    cmdThreshold,
	}

	atomCmd = &cli.Command{
		Name:  "atom",
		Usage: "Trust atom operations",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Fetch a stored atom",
				ArgsUsage: "<id>",
				Action:    cmdAtomGet,
			},
			{
				Name:      "asset",
				Usage:     "Show the knowledge asset for an atom",
				ArgsUsage: "<id>",
				Action:    cmdAtomAsset,
			},
			{
				Name:   "publish",
				Usage:  "Build and publish an atom",
				Flags:  []cli.Flag{issuerFlag, targetFlag, vectorFlag, contentFlag, evidenceFlag, requiredStakeFlag, ttlFlag, replacesFlag},
				Action: cmdAtomPublish,
			},
			{
				Name:   "import",
				Usage:  "Publish canonical records from a file",
				Flags:  []cli.Flag{&cli.StringFlag{Name: fileFlag.Name, Usage: fileFlag.Usage, Required: true}},
				Action: cmdAtomImport,
			},
		},
	}

	stakeCmd = &cli.Command{
		Name:  "stake",
		Usage: "Stake registry operations",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show an issuer's stake and weight",
				ArgsUsage: "<issuer>",
				Action:    cmdStakeShow,
			},
			{
				Name:   "stats",
				Usage:  "Registry statistics",
				Action: cmdStakeStats,
			},
			{
				Name:   "list",
				Usage:  "List every staked issuer (admin)",
				Action: cmdStakeList,
			},
			{
				Name:      "history",
				Usage:     "Recent stake events for an issuer",
				ArgsUsage: "<issuer>",
				Flags:     []cli.Flag{historyLimitFlag},
				Action:    cmdStakeHistory,
			},
			{
				Name:      "register",
				Usage:     "Set an issuer's stake (admin)",
				ArgsUsage: "<issuer> <amount>",
				Action:    cmdStakeRegister,
			},
			{
				Name:      "slash",
				Usage:     "Slash a fraction of an issuer's stake (admin)",
				ArgsUsage: "<issuer> <fraction>",
				Flags:     []cli.Flag{reasonFlag},
				Action:    cmdStakeSlash,
			},
			{
				Name:      "dispute",
				Usage:     "Resolve a dispute against an issuer (admin)",
				ArgsUsage: "<issuer>",
				Flags:     []cli.Flag{fraudulentFlag, reasonFlag},
				Action:    cmdStakeDispute,
			},
		},
	}

	statsCmd = &cli.Command{
		Name:   "stats",
		Usage:  "Ledger overview (admin)",
		Action: cmdStats,
	}
)

func requireArgs(cmd *cli.Command, names ...string) ([]string, error) {
	if cmd.Args().Len() < len(names) {
		return nil, fmt.Errorf("usage: %s %s", cmd.FullName(), strings.Join(wrap(names), " "))
	}
	return cmd.Args().Slice()[:len(names)], nil
}

func wrap(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "<" + n + ">"
	}
	return out
}

func parseFloatArg(name, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return f, nil
}

func cmdRankTop(ctx context.Context, cmd *cli.Command) error {
	top, err := apiClient(cmd).TopN(ctx, int(cmd.Int(topNFlag.Name)))
	if err != nil {
		return err
	}
	return encode(cmd, top)
}

func cmdRankStats(ctx context.Context, cmd *cli.Command) error {
	stats, err := apiClient(cmd).RankingStats(ctx)
	if err != nil {
		return err
	}
	return encode(cmd, stats)
}

func cmdReputation(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "target")
	if err != nil {
		return err
	}
	c := apiClient(cmd)
	if dims := cmd.StringSlice(dimensionsFlag.Name); len(dims) > 0 {
		flat, err := c.ReputationDimensions(ctx, args[0], dims)
		if err != nil {
			return err
		}
		return encode(cmd, flat)
	}
	sum, err := c.Reputation(ctx, args[0])
	if err != nil {
		return err
	}
	return encode(cmd, sum)
}

func cmdThreshold(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "target", "threshold")
	if err != nil {
		return err
	}
	threshold, err := parseFloatArg("threshold", args[1])
	if err != nil {
		return err
	}
	res, err := apiClient(cmd).CheckThreshold(ctx, args[0], cmd.String(thresholdDimensionFlag.Name), threshold)
	if err != nil {
		return err
	}
	return encode(cmd, res)
}

func cmdAtomGet(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "id")
	if err != nil {
		return err
	}
	rec, err := apiClient(cmd).GetAtom(ctx, args[0])
	if err != nil {
		return err
	}
	return encode(cmd, rec)
}

func cmdAtomAsset(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "id")
	if err != nil {
		return err
	}
	asset, err := apiClient(cmd).GetAsset(ctx, args[0])
	if err != nil {
		return err
	}
	return encode(cmd, asset)
}

func cmdAtomPublish(ctx context.Context, cmd *cli.Command) error {
	v := trust.DefaultVector()
	for _, kv := range cmd.StringSlice(vectorFlag.Name) {
		if err := setVectorField(&v, kv); err != nil {
			return err
		}
	}

	p := trust.Params{
		Issuer:        cmd.String(issuerFlag.Name),
		Target:        cmd.String(targetFlag.Name),
		Vector:        &v,
		Content:       cmd.String(contentFlag.Name),
		Evidence:      cmd.StringSlice(evidenceFlag.Name),
		RequiredStake: cmd.String(requiredStakeFlag.Name),
		Replaces:      cmd.String(replacesFlag.Name),
	}
	if ttl := cmd.Duration(ttlFlag.Name); ttl > 0 {
		exp := time.Now().Add(ttl).UTC()
		p.Expires = &exp
	}

	a, err := trust.NewAtom(p)
	if err != nil {
		return err
	}
	out, err := apiClient(cmd).PublishAtom(ctx, a.Record())
	if err != nil {
		return err
	}
	return encode(cmd, out)
}

// setVectorField applies a name=value pair to v.
func setVectorField(v *trust.Vector, kv string) error {
	name, raw, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("invalid vector field %q, want name=value", kv)
	}
	val, err := parseFloatArg(name, raw)
	if err != nil {
		return err
	}
	switch strings.TrimSpace(name) {
	case trust.DimHonesty:
		v.Honesty = val
	case trust.DimExpertise:
		v.Expertise = val
	case trust.DimBias:
		v.Bias = val
	case trust.DimSafety:
		v.Safety = val
	case trust.DimSpeed:
		v.Speed = val
	case trust.DimAlignment:
		v.Alignment = val
	case trust.DimResponsiveness:
		v.Responsiveness = val
	case trust.DimStakeWeight, "stake_weight":
		v.StakeWeight = val
	default:
		return fmt.Errorf("unknown vector field %q", name)
	}
	return nil
}

func cmdAtomImport(ctx context.Context, cmd *cli.Command) error {
	data, err := os.ReadFile(cmd.String(fileFlag.Name))
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	recs, err := parseRecords(data)
	if err != nil {
		return err
	}
	res, err := apiClient(cmd).PublishBatch(ctx, recs)
	if err != nil {
		return err
	}
	return encode(cmd, res)
}

// parseRecords accepts a single canonical record or an array of them.
func parseRecords(data []byte) ([]trust.Record, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var recs []trust.Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("parse records: %w", err)
		}
		return recs, nil
	}
	var rec trust.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return []trust.Record{rec}, nil
}

func cmdStakeShow(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "issuer")
	if err != nil {
		return err
	}
	info, err := apiClient(cmd).Stake(ctx, args[0])
	if err != nil {
		return err
	}
	return encode(cmd, info)
}

func cmdStakeStats(ctx context.Context, cmd *cli.Command) error {
	stats, err := apiClient(cmd).StakeStats(ctx)
	if err != nil {
		return err
	}
	return encode(cmd, stats)
}

func cmdStakeList(ctx context.Context, cmd *cli.Command) error {
	entries, err := apiClient(cmd).Stakers(ctx)
	if err != nil {
		return err
	}
	return encode(cmd, entries)
}

func cmdStakeHistory(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "issuer")
	if err != nil {
		return err
	}
	events, err := apiClient(cmd).StakeHistory(ctx, args[0], int(cmd.Int(historyLimitFlag.Name)))
	if err != nil {
		return err
	}
	return encode(cmd, events)
}

func cmdStakeRegister(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "issuer", "amount")
	if err != nil {
		return err
	}
	amount, err := parseFloatArg("amount", args[1])
	if err != nil {
		return err
	}
	entry, err := apiClient(cmd).RegisterStake(ctx, args[0], amount)
	if err != nil {
		return err
	}
	return encode(cmd, entry)
}

func cmdStakeSlash(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "issuer", "fraction")
	if err != nil {
		return err
	}
	fraction, err := parseFloatArg("fraction", args[1])
	if err != nil {
		return err
	}
	res, err := apiClient(cmd).Slash(ctx, args[0], fraction, cmd.String(reasonFlag.Name))
	if err != nil {
		return err
	}
	return encode(cmd, res)
}

func cmdStakeDispute(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, "issuer")
	if err != nil {
		return err
	}
	res, err := apiClient(cmd).Dispute(ctx, args[0], cmd.Bool(fraudulentFlag.Name), cmd.String(reasonFlag.Name))
	if err != nil {
		return err
	}
	return encode(cmd, res)
}

func cmdStats(ctx context.Context, cmd *cli.Command) error {
	stats, err := apiClient(cmd).Stats(ctx)
	if err != nil {
		return err
	}
	return encode(cmd, stats)
}
