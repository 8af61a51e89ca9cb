package trust

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAtom(t *testing.T) *Atom {
	t.Helper()
	v := Vector{Honesty: 0.91, Expertise: 0.77, Bias: 0.33, Safety: 0.84, Speed: 0.62, Alignment: 0.71, Responsiveness: 0.88, StakeWeight: 1.23}
	exp := time.Date(2027, 1, 2, 3, 4, 5, 123456789, time.UTC)
	return mustAtom(t, Params{
		Issuer:        "did:guardian:abc123",
		Target:        "did:guardian:def456",
		Vector:        &v,
		Content:       "Endorsed for quality content on Reddit",
		Evidence:      []string{"guardian:edge:1a2b3c4d", "otobject:km1"},
		Expires:       &exp,
		Replaces:      IDPrefix + "previous",
		RequiredStake: "100",
		Issued:        time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC),
	})
}

func TestRecordRoundTrip(t *testing.T) {
	a := sampleAtom(t)

	data, err := Encode(a)
	require.NoError(t, err)

	b, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, a.Issuer(), b.Issuer())
	assert.Equal(t, a.Target(), b.Target())
	assert.Equal(t, a.Vector(), b.Vector())
	assert.Equal(t, a.Content(), b.Content())
	assert.Equal(t, a.Evidence(), b.Evidence())
	assert.Equal(t, a.Replaces(), b.Replaces())
	assert.Equal(t, a.RequiredStake(), b.RequiredStake())
	assert.True(t, a.Issued().Equal(b.Issued()))
	ae, _ := a.Expires()
	be, ok := b.Expires()
	assert.True(t, ok)
	assert.True(t, ae.Equal(be))
	assert.InDelta(t, a.Overall(), b.Overall(), 1e-9)

	again, err := Encode(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestRecordFieldNames(t *testing.T) {
	a := sampleAtom(t)
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	for _, k := range []string{"issuer", "target", "trustVector", "overall", "content", "evidenceKA", "expires", "replaces", "requiredStake", "issued"} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, RecordType, m["@type"])

	tv := m["trustVector"].(map[string]any)
	for _, k := range append(Dimensions, DimStakeWeight) {
		assert.Contains(t, tv, k)
	}
}

func TestRecordNullOptionalFields(t *testing.T) {
	a := mustAtom(t, Params{Issuer: "did:key:z6Mk222", Target: "npub1export", Content: "Export test"})
	data, err := Encode(a)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Nil(t, m["expires"])
	assert.Nil(t, m["replaces"])
	assert.Equal(t, []any{}, m["evidenceKA"])
}

func TestFromRecordRecomputesOverall(t *testing.T) {
	rec := sampleAtom(t).Record()

	t.Run("absent overall accepted", func(t *testing.T) {
		rec := rec
		rec.Overall = nil
		a, err := FromRecord(rec)
		require.NoError(t, err)
		assert.Greater(t, a.Overall(), 0.0)
	})

	t.Run("tampered overall rejected", func(t *testing.T) {
		rec := rec
		bad := *rec.Overall - 0.1
		rec.Overall = &bad
		_, err := FromRecord(rec)
		assert.ErrorIs(t, err, ErrOverallMismatch)
	})

	t.Run("out of range vector rejected", func(t *testing.T) {
		rec := rec
		rec.Overall = nil
		rec.TrustVector.StakeWeight = 4
		_, err := FromRecord(rec)
		assert.ErrorIs(t, err, ErrRange)
	})
}

func TestDecodeNaiveTimestamps(t *testing.T) {
	raw := `{"issuer":"did:key:a","target":"npub1","trustVector":{"honesty":0.5,"expertise":0.5,"bias":0.5,"safety":0.5,"speed":0.5,"alignment":0.5,"responsiveness":0.5,"stakeWeight":1.0},
		"content":"","evidenceKA":[],"expires":"2030-01-01T00:00:00Z","replaces":null,"requiredStake":"0","issued":"2025-06-01T10:11:12.123456"}`
	a, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 11, 12, 123456000, time.UTC), a.Issued())
	exp, ok := a.Expires()
	require.True(t, ok)
	assert.Equal(t, 2030, exp.Year())
}

func TestDecodeFillsMissingVectorFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Vector
	}{
		{"no vector", `{"issuer":"a","target":"b"}`, DefaultVector()},
		{"null vector", `{"issuer":"a","target":"b","trustVector":null}`, DefaultVector()},
		{"partial vector", `{"issuer":"a","target":"b","trustVector":{"honesty":0.9}}`, func() Vector {
			v := DefaultVector()
			v.Honesty = 0.9
			return v
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Vector())

			built, err := NewAtom(Params{Issuer: "a", Target: "b", Vector: &tt.want})
			require.NoError(t, err)
			assert.InDelta(t, built.Overall(), a.Overall(), 1e-12)
		})
	}
}

func TestRecordSliceFillsDefaults(t *testing.T) {
	var recs []Record
	require.NoError(t, json.Unmarshal([]byte(`[{"issuer":"a","target":"b"},{"issuer":"c","target":"d","trustVector":{"stakeWeight":2}}]`), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, DefaultVector(), recs[0].TrustVector)
	assert.Equal(t, 2.0, recs[1].TrustVector.StakeWeight)
	assert.Equal(t, 0.5, recs[1].TrustVector.Honesty)
}

func TestDecodeOverallStableAcrossReserialization(t *testing.T) {
	a := sampleAtom(t)
	first := a.Overall()
	for i := 0; i < 5; i++ {
		data, err := Encode(a)
		require.NoError(t, err)
		a, err = Decode(data)
		require.NoError(t, err)
	}
	if math.Abs(first-a.Overall()) > 1e-9 {
		t.Errorf("overall drifted: %v -> %v", first, a.Overall())
	}
}

func TestKnowledgeAsset(t *testing.T) {
	v := DefaultVector()
	v.Honesty = 0.95
	a := mustAtom(t, Params{Issuer: "did:key:z6Mk333", Target: "npub1dkg", Vector: &v, Evidence: []string{"otobject:km1"}})

	asset := a.KnowledgeAsset()
	require.Contains(t, asset, "public")
	require.Contains(t, asset, "private")

	pub := asset["public"].(map[string]any)
	assert.Equal(t, "http://schema.org/", pub["@context"])
	assert.Equal(t, "CreativeWork", pub["@type"])
	assert.Equal(t, a.ID(), pub["@id"])

	rating := pub["aggregateRating"].(map[string]any)
	assert.Equal(t, "1", rating["ratingCount"])

	priv := asset["private"].(map[string]any)
	assert.Equal(t, a.ID()+"-private", priv["@id"])
}
