// Package admin implements spec.md §4.9's Admin Channel: a dedicated
// accept thread that serves admin logins and multiplexes unsolicited
// response frames back to selected client sets.
package admin

import (
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rfsd/rfsd/internal/xlog"
	"github.com/rfsd/rfsd/wire"
)

// Client is the subset of a session the admin channel needs: enough
// to resolve targets by host pattern and to push async frames or tear
// the link down.
type Client interface {
	ID() string
	Host() string
	Username() string
	SendAsync(code wire.AsyncCode, body []byte) error
	Disconnect()
	ServedPaths() []string
}

// Channel is the admin-side registry of live clients and the verb
// dispatcher of spec.md §4.9. One Channel is normally shared by the
// whole process.
type Channel struct {
	log *logrus.Entry

	mu      sync.Mutex
	clients map[string]Client
}

// New builds an empty Channel.
func New() *Channel {
	return &Channel{
		log:     xlog.For("admin"),
		clients: make(map[string]Client),
	}
}

// Register adds c to the live client set that Dispatch matches
// against. cmd/rfsd does not call it, so sessions there are not
// registered.
func (ch *Channel) Register(c Client) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.clients[c.ID()] = c
}

// Unregister removes a client from the live client set.
func (ch *Channel) Unregister(id string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.clients, id)
}

// matching returns every registered client whose host matches pattern,
// a shell glob against host:port or bare host (spec.md §4.9 "resolved
// ... by host-name or IP").
func (ch *Channel) matching(pattern string) []Client {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	var out []Client
	for _, c := range ch.clients {
		host := c.Host()
		bare := host
		if i := strings.LastIndex(host, ":"); i >= 0 {
			bare = host[:i]
		}
		if ok, _ := path.Match(pattern, host); ok {
			out = append(out, c)
			continue
		}
		if ok, _ := path.Match(pattern, bare); ok {
			out = append(out, c)
		}
	}
	return out
}

// Dispatch parses and executes one admin-channel line, returning the
// XML-ish ack or error text to write back (spec.md §4.9).
func (ch *Channel) Dispatch(line string) string {
	cmd, err := wire.ParseAdminLine(line)
	if err != nil {
		return wire.AdminError("0", 400, err.Error())
	}

	switch cmd.Verb {
	case "abort":
		return ch.broadcast(cmd, wire.AsyncAb, nil)
	case "cont":
		return ch.broadcast(cmd, wire.AsyncGo, nil)
	case "disc":
		return ch.disconnect(cmd)
	case "msg":
		return ch.broadcast(cmd, wire.AsyncMs, []byte(strings.Join(cmd.Args, " ")))
	case "pause":
		body := "0"
		if len(cmd.Args) > 0 {
			body = cmd.Args[0]
		}
		return ch.broadcast(cmd, wire.AsyncWt, []byte(body))
	case "redirect":
		if len(cmd.Args) < 1 {
			return wire.AdminError(cmd.ReqID, 400, "redirect requires a host:port argument")
		}
		return ch.broadcast(cmd, wire.AsyncGo, []byte(cmd.Args[0]))
	case "lsc":
		return ch.listClients(cmd)
	case "lsd":
		return ch.listServed(cmd)
	default:
		return wire.AdminError(cmd.ReqID, 400, "unrecognized verb "+cmd.Verb)
	}
}

func (ch *Channel) broadcast(cmd wire.AdminLine, code wire.AsyncCode, body []byte) string {
	targets := ch.matching(cmd.Target)
	sent := 0
	for _, c := range targets {
		if err := c.SendAsync(code, body); err != nil {
			ch.log.WithError(err).WithField("client", c.ID()).Debug("admin send failed")
			continue
		}
		sent++
	}
	return wire.AdminAck(cmd.ReqID, sent)
}

func (ch *Channel) disconnect(cmd wire.AdminLine) string {
	targets := ch.matching(cmd.Target)
	for _, c := range targets {
		c.Disconnect()
	}
	return wire.AdminAck(cmd.ReqID, len(targets))
}

// listClients implements the read-only "lsc" verb (spec.md §4.9):
// no async frame is sent, the ack body carries the matching hosts.
func (ch *Channel) listClients(cmd wire.AdminLine) string {
	targets := ch.matching(cmd.Target)
	names := make([]string, 0, len(targets))
	for _, c := range targets {
		names = append(names, c.Host()+" "+c.Username())
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		b.WriteString("<client>")
		b.WriteString(n)
		b.WriteString("</client>")
	}
	return wire.AdminAck(cmd.ReqID, len(targets)) + b.String() + "\n"
}

// listServed implements the SPEC_FULL.md-supplemented "lsd" verb: it
// shares all matching/acking plumbing with "lsc" but lists each
// matching client's currently open paths instead of just its host.
func (ch *Channel) listServed(cmd wire.AdminLine) string {
	targets := ch.matching(cmd.Target)
	var b strings.Builder
	for _, c := range targets {
		b.WriteString("<client host=")
		b.WriteString(strconv.Quote(c.Host()))
		b.WriteString(">")
		for _, p := range c.ServedPaths() {
			b.WriteString("<path>")
			b.WriteString(p)
			b.WriteString("</path>")
		}
		b.WriteString("</client>")
	}
	return wire.AdminAck(cmd.ReqID, len(targets)) + b.String() + "\n"
}
