// seed_atoms.go seeds a TrustGraph instance with a synthetic trust graph.
//
// Usage:
//
//	go run scripts/seed_atoms.go -api http://localhost:8700 -token $TRUSTGRAPH_ADMIN_TOKEN -issuers 20 -atoms 200
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/Aaditya1273/TrustGraphV7/internal/client"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

const batchSize = 100

func main() {
	apiURL := flag.String("api", "http://localhost:8700", "TrustGraph API base URL")
	token := flag.String("token", os.Getenv("TRUSTGRAPH_ADMIN_TOKEN"), "admin bearer token")
	issuers := flag.Int("issuers", 20, "number of synthetic issuers")
	atoms := flag.Int("atoms", 200, "number of atoms to publish")
	seed := flag.Int64("seed", 1, "random seed")
	dryRun := flag.Bool("dry-run", false, "print records without posting")
	flag.Parse()

	if *issuers < 2 {
		log.Fatalf("need at least 2 issuers, got %d", *issuers)
	}

	rng := rand.New(rand.NewSource(*seed))
	names := make([]string, *issuers)
	for i := range names {
		names[i] = fmt.Sprintf("did:example:agent-%03d", i)
	}

	records := make([]trust.Record, 0, *atoms)
	for i := 0; i < *atoms; i++ {
		issuer := names[rng.Intn(len(names))]
		target := names[rng.Intn(len(names))]
		for target == issuer {
			target = names[rng.Intn(len(names))]
		}
		v := randomVector(rng)
		a, err := trust.NewAtom(trust.Params{
			Issuer:  issuer,
			Target:  target,
			Vector:  &v,
			Content: fmt.Sprintf("synthetic interaction %d", i),
		})
		if err != nil {
			log.Fatalf("build atom %d: %v", i, err)
		}
		records = append(records, a.Record())
	}

	if *dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	c := client.NewHTTPClient(*apiURL, *token)

	if *token != "" {
		for _, name := range names {
			amount := float64(rng.Intn(2000))
			if _, err := c.RegisterStake(ctx, name, amount); err != nil {
				log.Fatalf("register stake for %s: %v", name, err)
			}
		}
		fmt.Printf("Registered stakes for %d issuers\n", len(names))
	}

	var published, failed int
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		res, err := c.PublishBatch(ctx, records[start:end])
		if err != nil {
			log.Fatalf("publish batch at %d: %v", start, err)
		}
		published += res.Published
		failed += res.Failed
	}
	fmt.Printf("Published %d atoms, %d failed\n", published, failed)

	top, err := c.TopN(ctx, 5)
	if err != nil {
		log.Fatalf("top nodes: %v", err)
	}
	for i, n := range top {
		fmt.Printf("  %d. %s %.6f\n", i+1, n.Node, n.Score)
	}
}

// randomVector keeps the overall score below the high-trust threshold so
// unstaked issuers can publish.
func randomVector(rng *rand.Rand) trust.Vector {
	f := func() float64 { return 0.2 + rng.Float64()*0.4 }
	return trust.Vector{
		Honesty:        f(),
		Expertise:      f(),
		Bias:           0.2 + rng.Float64()*0.3,
		Safety:         f(),
		Speed:          f(),
		Alignment:      f(),
		Responsiveness: f(),
		StakeWeight:    0.5 + rng.Float64()*0.5,
	}
}
