package json

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestStruct struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestExtractPureJSON(t *testing.T) {
	got := Extract(`{"name": "test", "value": 42}`)
	assert.Equal(t, map[string]any{"name": "test", "value": float64(42)}, got)
}

func TestExtractFencedJSON(t *testing.T) {
	got := Extract("```json\n{\"probability\": 0.9, \"type\": 1}\n```")
	assert.Equal(t, map[string]any{"probability": 0.9, "type": float64(1)}, got)
}

func TestExtractBareFence(t *testing.T) {
	got := Extract("```\n{\"ok\": true}\n```")
	assert.Equal(t, map[string]any{"ok": true}, got)
}

func TestExtractOtherLanguageTag(t *testing.T) {
	got := Extract("```JSON\n{\"ok\": true}\n```")
	assert.Equal(t, map[string]any{"ok": true}, got)
}

func TestExtractSurroundingWhitespace(t *testing.T) {
	got := Extract("\n\n  {\"ok\": true}  \n")
	assert.Equal(t, map[string]any{"ok": true}, got)
}

func TestExtractWithPrefixAndSuffix(t *testing.T) {
	got := Extract(`Let me think... {"name": "test", "value": 42} Done!`)
	assert.Equal(t, "test", got["name"])
	assert.Equal(t, float64(42), got["value"])
}

func TestExtractNestedBracesInStrings(t *testing.T) {
	text := `Result: {"explanation": "uses {braces} and }", "nested": {"a": [1, {"b": 2}]}}`
	got := Extract(text)
	assert.Equal(t, "uses {braces} and }", got["explanation"])
	assert.Equal(t, map[string]any{"a": []any{float64(1), map[string]any{"b": float64(2)}}}, got["nested"])
}

func TestExtractNotJSON(t *testing.T) {
	text := "not json at all"
	got := Extract(text)
	assert.Equal(t, ParseFailed, got["error"])
	assert.Equal(t, text, got["raw"])
	assert.True(t, IsRecovery(got))
}

func TestExtractEmptyInput(t *testing.T) {
	got := Extract("   ")
	assert.True(t, IsRecovery(got))
	assert.Equal(t, "   ", got["raw"])
}

func TestExtractTruncatedObject(t *testing.T) {
	text := `{"probability": 0.4, "explanation": "cut off`
	got := Extract(text)
	assert.True(t, IsRecovery(got))
	assert.Equal(t, text, got["raw"])
}

func TestExtractRejectsNonObjects(t *testing.T) {
	for _, text := range []string{"null", "[1, 2]", "42", `"str"`} {
		got := Extract(text)
		assert.True(t, IsRecovery(got), "input %q", text)
	}
}

// Two top-level objects make the greedy brace span unparseable. Recovery of
// the first balanced object is deliberately not attempted.
func TestExtractMultipleObjectsIsKnownLimitation(t *testing.T) {
	text := `first {"a": 1} then {"b": 2}`
	got := Extract(text)
	assert.True(t, IsRecovery(got))
	assert.Equal(t, text, got["raw"])
}

func TestExtractFenceOnlyOpening(t *testing.T) {
	got := Extract("```json\n{\"ok\": true}")
	assert.Equal(t, map[string]any{"ok": true}, got)
}

func TestIsRecoveryIgnoresVerdictErrors(t *testing.T) {
	assert.False(t, IsRecovery(map[string]any{"error": "model said no"}))
	assert.False(t, IsRecovery(map[string]any{"error": ParseFailed}))
}

func TestExtractIntoStruct(t *testing.T) {
	result, err := ExtractInto[TestStruct]("Here is the result: {\"name\": \"test\", \"value\": 42}")
	require.NoError(t, err)
	assert.Equal(t, TestStruct{Name: "test", Value: 42}, result)
}

func TestExtractIntoNoJSON(t *testing.T) {
	_, err := ExtractInto[TestStruct]("This is just plain text without any JSON.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to extract valid JSON")
}

func TestExtractKeepsLargeIntegersExact(t *testing.T) {
	text := `{"id":9007199254740993,"type":1,"nested":{"ids":[18446744073709551617,-9007199254740993]}}`
	got := Extract(text)

	assert.Equal(t, json.Number("9007199254740993"), got["id"])
	assert.Equal(t, float64(1), got["type"])

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, text, string(raw))
	assert.Contains(t, string(raw), `"id":9007199254740993`)
	assert.Contains(t, string(raw), "18446744073709551617")
}

func TestExtractSmallNumbersStayFloat(t *testing.T) {
	got := Extract(`{"p": 0.25, "n": -3, "e": 1e3, "max": 9007199254740992}`)
	assert.Equal(t, map[string]any{
		"p":   0.25,
		"n":   float64(-3),
		"e":   float64(1000),
		"max": float64(9007199254740992),
	}, got)
}

func TestExtractRejectsTrailingData(t *testing.T) {
	got, ok := parseObject(`{"a": 1} {"b": 2}`)
	assert.False(t, ok)
	assert.Nil(t, got)

	got, ok = parseObject("{\"a\": 1}  \n")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1)}, got)
}

func TestExtractIntoKeepsInterfaceNumbersExact(t *testing.T) {
	type payload struct {
		ID any `json:"id"`
	}
	got, err := ExtractInto[payload](`note: {"id": 9007199254740993}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), got.ID)
}

// genValue builds JSON values as Extract returns them: float64 for numbers
// float64 holds exactly, json.Number for larger integers.
func genValue(depth int) gopter.Gen {
	scalars := []gopter.Gen{
		gen.AlphaString().Map(func(s string) any { return s }),
		gen.Float64Range(-1e6, 1e6).Map(func(f float64) any { return f }),
		gen.Int64Range(-maxExactInt, maxExactInt).Map(func(i int64) any { return float64(i) }),
		gen.Int64Range(maxExactInt+1, math.MaxInt64).Map(func(i int64) any {
			return json.Number(strconv.FormatInt(i, 10))
		}),
		gen.Int64Range(math.MinInt64, -maxExactInt-1).Map(func(i int64) any {
			return json.Number(strconv.FormatInt(i, 10))
		}),
		gen.Bool().Map(func(b bool) any { return b }),
		gen.Bool().Map(func(bool) any { return nil }),
	}
	if depth <= 0 {
		return gen.OneGenOf(scalars...)
	}
	nested := append(scalars,
		gen.SliceOfN(3, genValue(depth-1)).Map(func(items []any) any {
			if items == nil {
				return []any{}
			}
			return items
		}),
		genObjectDepth(depth-1).Map(func(m map[string]any) any { return m }),
	)
	return gen.OneGenOf(nested...)
}

func genObjectDepth(depth int) gopter.Gen {
	return gen.MapOf(gen.Identifier(), genValue(depth)).Map(func(m map[string]any) map[string]any {
		if m == nil {
			return map[string]any{}
		}
		return m
	})
}

func genObject() gopter.Gen {
	return genObjectDepth(2)
}

func TestExtractRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("extract(serialize(O)) == O", prop.ForAll(
		func(obj map[string]any) bool {
			raw, err := json.Marshal(obj)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(Extract(string(raw)), obj)
		},
		genObject(),
	))

	properties.Property("fenced serialization extracts to O", prop.ForAll(
		func(obj map[string]any) bool {
			raw, err := json.Marshal(obj)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(Extract("```json\n"+string(raw)+"\n```"), obj)
		},
		genObject(),
	))

	properties.Property("plain text never faults and keeps raw", prop.ForAll(
		func(s string) bool {
			got := Extract(s)
			if IsRecovery(got) {
				return got["raw"] == s
			}
			return got != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
