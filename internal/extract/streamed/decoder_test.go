package streamed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var jsEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func push(payload string) string {
	return `<script>self.__next_f.push([1,"` + jsEscaper.Replace(payload) + `"])</script>`
}

type resultRow struct {
	Name string `json:"name"`
	Pos  int    `json:"pos"`
}

type event struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestChunks(t *testing.T) {
	t.Parallel()

	html := `<script>self.__next_f.push([0])</script>` + push(`a"b`) + push("c") + `<p>noise</p>`
	chunks := Chunks(html)
	require.Equal(t, []string{`a\"b`, "c"}, chunks)
	require.Equal(t, `a"b`, Unescape(chunks[0]))
}

func TestUnescape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`a\nb\tc`, "a\nb\tc"},
		{`q\"q`, `q"q`},
		{`back\\slash`, `back\slash`},
		{`\\"`, `\"`},
		{`url\/path`, "url/path"},
		{`R\u00e4ikk\u00f6nen`, "Räikkönen"},
		{`flag \ud83c\udfc1`, "flag \U0001F3C1"},
		{`bad \u12`, `bad \u12`},
		{`trailing\`, `trailing\`},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Unescape(tt.in), tt.in)
	}
}

func TestBalancedIgnoresBracketsInStrings(t *testing.T) {
	t.Parallel()

	text := `{"a":"]}","b":[1,{"c":"\"]"}]} tail`
	got, ok := Balanced(text, 0)
	require.True(t, ok)
	require.Equal(t, `{"a":"]}","b":[1,{"c":"\"]"}]}`, got)

	got, ok = Balanced(`x [[1],[2,[3]]], 4]`, 2)
	require.True(t, ok)
	require.Equal(t, `[[1],[2,[3]]]`, got)

	got, ok = Balanced(`[]`, 0)
	require.True(t, ok)
	require.Equal(t, `[]`, got)
}

func TestBalancedRejectsUnclosedAndBadStart(t *testing.T) {
	t.Parallel()

	_, ok := Balanced(`[1,[2]`, 0)
	require.False(t, ok)
	_, ok = Balanced(`abc`, 0)
	require.False(t, ok)
	_, ok = Balanced(`[1]`, 5)
	require.False(t, ok)
}

func TestFindValueAndValues(t *testing.T) {
	t.Parallel()

	text := `{"results": [{"a":[1,2]},{"b":3}]}{"results":{"x":1}} {"results":"scalar"}`
	got, ok := FindValue(text, "results")
	require.True(t, ok)
	require.Equal(t, `[{"a":[1,2]},{"b":3}]`, got)
	require.Equal(t, []string{`[{"a":[1,2]},{"b":3}]`, `{"x":1}`}, Values(text, "results"))

	_, ok = FindValue(text, "missing")
	require.False(t, ok)
}

func TestDecodeArraySkipsEmptyAndBrokenChunks(t *testing.T) {
	t.Parallel()

	html := push(`{"results":[]}`) +
		push(`{"results":[{"name":`) +
		push(`1:["$","div",null,{"results":[{"name":"Ogier [FRA]","pos":1},{"name":"Evans","pos":2}]}]`)

	rows, ok := DecodeArray(html, "results", func(rows []resultRow) bool { return len(rows) > 0 })
	require.True(t, ok)
	require.Equal(t, []resultRow{{Name: "Ogier [FRA]", Pos: 1}, {Name: "Evans", Pos: 2}}, rows)
}

func TestDecodeObjectAcrossChunks(t *testing.T) {
	t.Parallel()

	html := push(`{"event":{"id":5,`) + push(`"name":"Rally \"Sweden\""}}`)
	ev, ok := DecodeObject(html, "event", func(e event) bool { return e.ID != 0 })
	require.True(t, ok)
	require.Equal(t, event{ID: 5, Name: `Rally "Sweden"`}, ev)
}

func TestDecodeFallsBackToRawHTML(t *testing.T) {
	t.Parallel()

	html := `<script id="__NEXT_DATA__">{"props":{"event":{"id":7,"name":"Monte"}}}</script>`
	ev, ok := DecodeObject[event](html, "event", nil)
	require.True(t, ok)
	require.Equal(t, 7, ev.ID)
}

func TestDecodeNothingFound(t *testing.T) {
	t.Parallel()

	rows, ok := DecodeArray[resultRow](push(`{"other":[1]}`), "results", nil)
	require.False(t, ok)
	require.Nil(t, rows)
}
