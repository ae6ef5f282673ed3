package grading

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAnswerKeyFlatKeepsOrder(t *testing.T) {
	keys, err := ParseAnswerKey([]byte(`{"zeta": "Yes", "alpha": 42, "mid": {"expected": "blue", "match": "exact"}, "flag": true}`))
	require.NoError(t, err)
	require.Equal(t, []FieldKey{
		{FieldName: "zeta", ExpectedValue: "Yes", MatchMode: MatchExact},
		{FieldName: "alpha", ExpectedValue: "42", MatchMode: MatchExact},
		{FieldName: "mid", ExpectedValue: "blue", MatchMode: MatchExact},
		{FieldName: "flag", ExpectedValue: "true", MatchMode: MatchExact},
	}, keys)

	keys, err = ParseAnswerKey([]byte(`{"q1": {"expected": "Yes", "match": "Exact"}, "q2": {"match": "exact"}, "q3": null, "q4": {"expected": "b", "match": " EXACT "}}`))
	require.NoError(t, err)
	require.Equal(t, []FieldKey{
		{FieldName: "q1", ExpectedValue: "Yes", MatchMode: MatchExact},
		{FieldName: "q2", ExpectedValue: "", MatchMode: MatchExact},
		{FieldName: "q3", ExpectedValue: "", MatchMode: MatchExact},
		{FieldName: "q4", ExpectedValue: "b", MatchMode: MatchExact},
	}, keys)
}

func TestParseAnswerKeyFlatRepeatedNameKeepsLastValue(t *testing.T) {
	keys, err := ParseAnswerKey([]byte(`{"q1": "a", "q2": "x", "q1": "b"}`))
	require.NoError(t, err)
	require.Equal(t, []FieldKey{
		{FieldName: "q1", ExpectedValue: "b", MatchMode: MatchExact},
		{FieldName: "q2", ExpectedValue: "x", MatchMode: MatchExact},
	}, keys)
}

func TestParseAnswerKeySections(t *testing.T) {
	doc := `{"sections": [
		{"fields": [{"field": "q1", "expected": "A"}, {"field": "q2", "expected": 3.5, "match": "exact"}]},
		{"fields": [{"field": "q3", "expected": null}]}
	]}`

	keys, err := ParseAnswerKey([]byte(doc))
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.Equal(t, "q1", keys[0].FieldName)
	require.Equal(t, "3.5", keys[1].ExpectedValue)
	require.Equal(t, "", keys[2].ExpectedValue)
	require.Equal(t, MatchExact, keys[2].MatchMode)

	keys, err = ParseAnswerKey([]byte(`{"sections": [{"fields": [{"field": "q1", "expected": "a", "match": "EXACT"}, {"field": "q2", "expected": "b", "match": null}]}]}`))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, MatchExact, keys[0].MatchMode)
	require.Equal(t, MatchExact, keys[1].MatchMode)
}

func TestParseAnswerKeyEmptyObject(t *testing.T) {
	keys, err := ParseAnswerKey([]byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestParseAnswerKeyRejectsUnknownShapes(t *testing.T) {
	cases := map[string]string{
		"array":           `["q1", "q2"]`,
		"invalid json":    `{"q1": `,
		"sections string": `{"sections": "q1"}`,
		"field missing":   `{"sections": [{"fields": [{"expected": "x"}]}]}`,
		"nested list":     `{"q1": ["a", "b"]}`,
		"unknown match":   `{"q1": {"expected": "a", "match": "regex"}}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAnswerKey([]byte(doc))
			require.ErrorIs(t, err, ErrAnswerKeyMalformed)
		})
	}
}

func TestBuildAnswerKeySkipsBlankAndUnchecked(t *testing.T) {
	data, count, err := BuildAnswerKey(map[string]string{
		"q2":   " Paris ",
		"q1":   "42",
		"q3_a": "Off",
		"q4":   "   ",
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.JSONEq(t, `{"q1":"42","q2":"Paris"}`, string(data))
	require.Equal(t, `{"q1":"42","q2":"Paris"}`, string(data))

	keys, err := ParseAnswerKey(data)
	require.NoError(t, err)
	require.Equal(t, "q1", keys[0].FieldName)
	require.Equal(t, "Paris", keys[1].ExpectedValue)
}

func TestBuildAnswerKeyEmpty(t *testing.T) {
	data, count, err := BuildAnswerKey(map[string]string{"q1": ""})
	require.NoError(t, err)
	require.Zero(t, count)
	require.Equal(t, "{}", string(data))
}
