package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderIncludesIdentityAndLinkBlockAlways(t *testing.T) {
	c := NewCounters(time.Now())
	c.LinkOpened()
	c.BytesIn(100)
	c.BytesOut(50)

	doc := Document{Version: "1", Source: "data01", Site: "site-a", TOS: 12345}
	out := doc.Render(c, Sources{})

	require.Contains(t, out, `<statistics ver="1" src="data01" site="site-a" tos=12345>`)
	require.Contains(t, out, `<stats id="link"><num>1</num><in>100</in><out>50</out></stats>`)
	require.NotContains(t, out, `id="sched"`)
	require.Contains(t, out, "</statistics>")
}

func TestRenderOmitsNilSources(t *testing.T) {
	c := NewCounters(time.Now())
	doc := Document{Version: "1"}
	out := doc.Render(c, Sources{
		Sched: func() (int, int, int) { return 2, 4, 1 },
	})
	require.Contains(t, out, `id="sched"`)
	require.NotContains(t, out, `id="buff"`)
	require.NotContains(t, out, `id="poll"`)
	require.NotContains(t, out, `id="proc"`)
	require.NotContains(t, out, `id="prot"`)
}

func TestRenderIncludesAllSourcesWhenProvided(t *testing.T) {
	c := NewCounters(time.Now())
	c.BuffPoolExceeded()
	c.PollScrubbed(3)

	doc := Document{Version: "1"}
	out := doc.Render(c, Sources{
		Sched: func() (int, int, int) { return 1, 2, 0 },
		Buff:  func() int64 { return 4096 },
		Poll:  func() int { return 10 },
		Proc:  func() (int, int) { return 5, 2 },
		Prot:  func() (int, int64) { return 3, 1 },
	})

	require.Contains(t, out, `<stats id="buff"><inuse>4096</inuse><maxing>1</maxing></stats>`)
	require.Contains(t, out, `<stats id="poll"><paths>10</paths><scrubbed>3</scrubbed></stats>`)
	require.Contains(t, out, `<stats id="proc"><sessions>5</sessions><prepares>2</prepares>`)
	require.Contains(t, out, `<stats id="prot"><open>3</open><async>1</async></stats>`)
}
