package reply

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"response\":\"hi\"}\n```", `{"response":"hi"}`},
		{"```\n{\"response\":\"hi\"}\n```", `{"response":"hi"}`},
		{"  {\"response\":\"hi\"}  ", `{"response":"hi"}`},
		{"```json {\"a\":1}", `{"a":1}`},
		{"{\"a\":1}\n```", `{"a":1}`},
		{"plain text", "plain text"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Clean(tc.in), "in=%q", tc.in)
	}
}

func TestParse_FencedJSON(t *testing.T) {
	got, structured := Parse("```json\n{\"response\":\"hi\"}\n```")
	require.True(t, structured)
	require.Equal(t, "hi", got.Response)
	require.Equal(t, `{"response":"hi"}`, got.RawJSON)
	require.True(t, got.HasResponse())
}

func TestParse_FullPayload(t *testing.T) {
	raw := `{
		"response": "Try a Da Hong Pao oolong.",
		"comment": "Rinse the leaves first.",
		"emotion": "warm",
		"confidence": 0.85,
		"topics": ["tea", "oolong"],
		"suggestions": ["How long to steep?", "Which teapot?"],
		"is_final_recommendation": true
	}`

	got, structured := Parse(raw)
	require.True(t, structured)
	require.Equal(t, "Try a Da Hong Pao oolong.", got.Response)
	require.Equal(t, "Rinse the leaves first.", got.Comment)
	require.Equal(t, "warm", got.Emotion)
	require.NotNil(t, got.Confidence)
	require.InDelta(t, 0.85, *got.Confidence, 1e-9)
	require.Equal(t, []string{"tea", "oolong"}, got.Topics)
	require.Equal(t, []string{"How long to steep?", "Which teapot?"}, got.Suggestions)
	require.True(t, got.IsFinalRecommendation)
}

func TestParse_MalformedFallsBackToRawText(t *testing.T) {
	got, structured := Parse("just a sentence")
	require.False(t, structured)
	require.Equal(t, "just a sentence", got.Response)
	require.Empty(t, got.Comment)
	require.Equal(t, "just a sentence", got.RawJSON)
}

func TestParse_FallbackKeepsOriginalText(t *testing.T) {
	raw := "```\nnot json at all\n```"
	got, structured := Parse(raw)
	require.False(t, structured)
	require.Equal(t, raw, got.Response)
	require.Equal(t, "not json at all", got.RawJSON)
}

func TestParse_BlankResponse(t *testing.T) {
	for _, raw := range []string{`{"response":""}`, `{"response":"   "}`, `{"comment":"only a comment"}`, `null`, "   "} {
		got, _ := Parse(raw)
		require.False(t, got.HasResponse(), "raw=%q", raw)
	}
}

func TestParse_TypeMismatchKeepsOtherFields(t *testing.T) {
	raw := `{"response":"hello","confidence":"very","topics":"tea","suggestions":[1,"ok",null],"is_final_recommendation":"yes","emotion":42}`

	got, structured := Parse(raw)
	require.True(t, structured)
	require.Equal(t, "hello", got.Response)
	require.Nil(t, got.Confidence)
	require.Equal(t, []string{"tea"}, got.Topics)
	require.Equal(t, []string{"ok"}, got.Suggestions)
	require.False(t, got.IsFinalRecommendation)
	require.Empty(t, got.Emotion)
}

func TestParse_LenientScalars(t *testing.T) {
	got, _ := Parse(`{"response":"r","confidence":"0.4","is_final_recommendation":"true"}`)
	require.NotNil(t, got.Confidence)
	require.InDelta(t, 0.4, *got.Confidence, 1e-9)
	require.True(t, got.IsFinalRecommendation)
}

func TestParse_ConfidenceOutOfRange(t *testing.T) {
	got, _ := Parse(`{"response":"r","confidence":85}`)
	require.Nil(t, got.Confidence)
}

func TestParse_NonObjectJSON(t *testing.T) {
	got, structured := Parse(`["a","b"]`)
	require.False(t, structured)
	require.Equal(t, `["a","b"]`, got.Response)
}
