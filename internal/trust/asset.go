package trust

import (
	"fmt"
	"strconv"
)

const assetNameLimit = 50

// KnowledgeAsset returns the public/private schema.org pair a publishing
// collaborator pushes to the knowledge-graph network.
func (a *Atom) KnowledgeAsset() map[string]any {
	description := a.content
	if description == "" {
		description = "Multi-dimensional trust score"
	}

	rec := a.Record()
	var expires any
	if rec.Expires != nil {
		expires = *rec.Expires
	}

	return map[string]any{
		"public": map[string]any{
			"@context":    "http://schema.org/",
			"@id":         a.id,
			"@type":       "CreativeWork",
			"name":        "Trust Atom: " + truncate(a.target, assetNameLimit),
			"description": description,
			"author": map[string]any{
				"@type": "Person",
				"@id":   a.issuer,
				"name":  "TrustGraph Issuer",
			},
			"about": map[string]any{
				"@type": "Thing",
				"@id":   a.target,
				"name":  "Target Entity",
			},
			"aggregateRating": map[string]any{
				"@type":       "AggregateRating",
				"ratingValue": strconv.FormatFloat(a.Overall(), 'f', -1, 64),
				"bestRating":  "1.0",
				"worstRating": "0.0",
				"ratingCount": "1",
			},
			"datePublished": rec.Issued,
			"keywords":      "trust,reputation,decentralized,verification",
		},
		"private": map[string]any{
			"@context": "http://schema.org/",
			"@id":      a.id + "-private",
			"@type":    "PropertyValue",
			"name":     "Trust Vector Details",
			"value":    fmt.Sprintf("%+v", a.vector),
			"additionalProperty": []map[string]any{
				{"@type": "PropertyValue", "name": "requiredStake", "value": a.requiredStake},
				{"@type": "PropertyValue", "name": "expires", "value": expires},
			},
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
