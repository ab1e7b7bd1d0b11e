package gpsd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, f *framer, chunks ...string) [][]string {
	t.Helper()
	out := make([][]string, 0, len(chunks))
	for _, c := range chunks {
		reqs, err := f.Feed([]byte(c))
		require.NoError(t, err)
		got := make([]string, 0, len(reqs))
		for _, r := range reqs {
			got = append(got, string(r))
		}
		out = append(out, got)
	}
	return out
}

func TestFramer_Boundaries(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"semicolon", "?POLL;", []string{"?POLL"}},
		{"newline", "?VERSION\n", []string{"?VERSION"}},
		{"crlf", "?VERSION\r\n", []string{"?VERSION"}},
		{"watch with semicolon", `?WATCH={"enable":true,"json":true};`, []string{`?WATCH={"enable":true,"json":true}`}},
		{"watch closes on brace", `?WATCH={"enable":true}`, []string{`?WATCH={"enable":true}`}},
		{"bare object", `{"class":"POLL"}`, []string{`{"class":"POLL"}`}},
		{"several", "?VERSION;?POLL;\n?DEVICES;", []string{"?VERSION", "?POLL", "?DEVICES"}},
		{"nested", `?WATCH={"a":{"b":1},"c":2};`, []string{`?WATCH={"a":{"b":1},"c":2}`}},
		{"braces in strings", `?WATCH={"device":"}{;\n\"x"};`, []string{`?WATCH={"device":"}{;\n\"x"}`}},
		{"blank lines", "\n\n;;?POLL;\n", []string{"?POLL"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := feedAll(t, newFramer(0), tc.in)
			require.Equal(t, tc.want, got[0])
		})
	}
}

func TestFramer_SplitRequest(t *testing.T) {
	f := newFramer(0)
	got := feedAll(t, f, `?WATCH={"enable":`, `true};`)
	require.Empty(t, got[0])
	require.Equal(t, []string{`?WATCH={"enable":true}`}, got[1])
	require.Zero(t, f.Buffered())

	got = feedAll(t, f, "?PO", "LL", ";?VER")
	require.Empty(t, got[0])
	require.Empty(t, got[1])
	require.Equal(t, []string{"?POLL"}, got[2])
	require.Equal(t, len("?VER"), f.Buffered())
}

func TestFramer_TooLarge(t *testing.T) {
	f := newFramer(16)
	reqs, err := f.Feed([]byte("?POLL;" + strings.Repeat("x", 32)))
	require.ErrorIs(t, err, ErrRequestTooLarge)
	require.Len(t, reqs, 1)
	require.Zero(t, f.Buffered())

	// The framer recovers for the next request.
	reqs, err = f.Feed([]byte("?VERSION;"))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
}
