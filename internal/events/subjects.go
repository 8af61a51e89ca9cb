package events

import "strings"

const (
	// SubjectAtomSubmit carries canonical atom records from publishing
	// collaborators for ingestion.
	SubjectAtomSubmit = "trustgraph.ingest.atom"
	// SubjectStakeFeed carries StakeFeedEvent registrations.
	SubjectStakeFeed = "trustgraph.ingest.stake"

	SubjectRankingComputed = "trustgraph.ranking.computed"

	StreamName   = "TRUSTGRAPH_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

// StreamSubjects are the outbound subjects retained by JetStream. Inbound
// ingest subjects are plain core NATS.
var StreamSubjects = []string{"trustgraph.atom.>", "trustgraph.stake.>", "trustgraph.ranking.>"}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_", "\n", "_")

// token makes an identifier safe to use as a single subject token.
func token(id string) string {
	if id == "" {
		return "_"
	}
	return tokenReplacer.Replace(id)
}

func SubjectAtomPublished(atomID string) string { return "trustgraph.atom." + token(atomID) + ".published" }
func SubjectAtomRejected(atomID string) string  { return "trustgraph.atom." + token(atomID) + ".rejected" }

func SubjectStakeRegistered(issuer string) string { return "trustgraph.stake." + token(issuer) + ".registered" }
func SubjectStakeSlashed(issuer string) string    { return "trustgraph.stake." + token(issuer) + ".slashed" }
