package codec_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/macrosync/internal/codec"
	"github.com/pandeptwidyaop/macrosync/internal/models"
)

func TestEncode_Shape(t *testing.T) {
	macros := []*models.Macro{{
		Name:        "Combo",
		Memo:        "first",
		TriggerKeys: []string{" ALT ", "", "A"},
		Steps: []*models.Step{
			models.NewTap("A"),
			models.NewRandomDelay(50, 130),
			models.NewKeyDown("SHIFT"),
			models.NewDelay(300),
			models.NewKeyUp("SHIFT"),
		},
	}}

	text, err := codec.Encode(macros)
	require.NoError(t, err)

	want := `{
  "version": 1,
  "macros": [
    {
      "name": "Combo",
      "memo": "first",
      "trigger": {
        "keys": [
          "ALT",
          "A"
        ]
      },
      "steps": [
        {
          "type": "Tap",
          "key": "A"
        },
        {
          "type": "Delay",
          "minMs": 50,
          "maxMs": 130
        },
        {
          "type": "KeyDown",
          "key": "SHIFT"
        },
        {
          "type": "Delay",
          "durationMs": 300
        },
        {
          "type": "KeyUp",
          "key": "SHIFT"
        }
      ]
    }
  ]
}`
	assert.Equal(t, want, text)
}

func TestEncode_NilCollection(t *testing.T) {
	_, err := codec.Encode(nil)
	assert.ErrorIs(t, err, codec.ErrNilCollection)
}

func TestEncode_Empty(t *testing.T) {
	text, err := codec.Encode([]*models.Macro{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"macros":[]}`, text)
}

func TestEncode_ZeroDelayKeepsDuration(t *testing.T) {
	text, err := codec.Encode([]*models.Macro{{Name: "z", Steps: []*models.Step{models.NewDelay(0)}}})
	require.NoError(t, err)
	assert.Contains(t, text, `"durationMs": 0`)
	assert.NotContains(t, text, "minMs")
}

func TestEncode_NoEscaping(t *testing.T) {
	text, err := codec.Encode([]*models.Macro{{Name: "점프 <A&B>", Steps: []*models.Step{}}})
	require.NoError(t, err)
	assert.Contains(t, text, `"name": "점프 <A&B>"`)
}

func TestDecode_Blank(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		got, err := codec.Decode(in)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := codec.Decode(`{"version":1,"macros":[`)
	assert.ErrorIs(t, err, codec.ErrMalformedDocument)
}

func TestDecode_CaseInsensitiveAndDefaults(t *testing.T) {
	in := `{"Version":1,"MACROS":[
		{"Name":"a","Trigger":{"Keys":["CTRL","Q"]},"Steps":[{"Type":"delay"},{"TYPE":"Tap","KEY":"Q"}]},
		{"name":"b"}
	]}`

	got, err := codec.Decode(in)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []string{"CTRL", "Q"}, got[0].TriggerKeys)
	require.Len(t, got[0].Steps, 2)
	assert.Equal(t, "Delay 0ms", got[0].Steps[0].String())
	assert.Equal(t, "", got[0].Steps[0].Key)
	assert.Equal(t, "Tap Q", got[0].Steps[1].String())

	assert.Empty(t, got[1].TriggerKeys)
	assert.Empty(t, got[1].Steps)
	assert.Equal(t, "", got[1].Memo)
}

func TestDecode_UnknownTypePassesThrough(t *testing.T) {
	in := `{"version":1,"macros":[{"name":"m","trigger":{"keys":[]},"steps":[{"type":"Mouse","key":"LEFT","durationMs":20}]}]}`

	got, err := codec.Decode(in)
	require.NoError(t, err)
	step := got[0].Steps[0]
	assert.Equal(t, models.StepType("Mouse"), step.Type)
	assert.Equal(t, "LEFT", step.Key)
	assert.Equal(t, 20, step.DurationMs)

	text, err := codec.Encode(got)
	require.NoError(t, err)
	assert.Contains(t, text, `"type": "Mouse"`)
	assert.Contains(t, text, `"durationMs": 20`)
}

func TestRoundTrip(t *testing.T) {
	orig := []*models.Macro{
		{
			Name:        "one",
			Memo:        "memo",
			TriggerKeys: []string{"CTRL", "1"},
			Steps: []*models.Step{
				models.NewKeyDown("CTRL"),
				models.NewTap("C"),
				models.NewKeyUp("CTRL"),
				models.NewRandomDelay(10, 20),
				models.NewDelay(5),
			},
		},
		{Name: "two", TriggerKeys: []string{}, Steps: []*models.Step{}},
	}

	text, err := codec.Encode(orig)
	require.NoError(t, err)
	got, err := codec.Decode(text)
	require.NoError(t, err)
	assert.Equal(t, orig, got)

	again, err := codec.Encode(got)
	require.NoError(t, err)
	assert.Equal(t, text, again)
}

func TestEncode_OmitsAbsentFields(t *testing.T) {
	text, err := codec.Encode([]*models.Macro{{Name: "x", Steps: []*models.Step{models.NewTap("A")}}})
	require.NoError(t, err)

	var raw struct {
		Macros []struct {
			Steps []map[string]json.RawMessage `json:"steps"`
		} `json:"macros"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &raw))
	step := raw.Macros[0].Steps[0]
	assert.Len(t, step, 2)
	assert.False(t, strings.Contains(text, "null"))
}

func TestFileHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macros.json")
	macros := []*models.Macro{{Name: "f", TriggerKeys: []string{"F1"}, Steps: []*models.Step{models.NewTap("F1")}}}

	require.NoError(t, codec.EncodeFile(path, macros))
	got, err := codec.DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, macros, got)
}
