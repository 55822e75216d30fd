package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// LocateRequest formats the redirector-side `select` line of spec.md
// §4.8 "Locate": `<msgid> select[s] {r|w|c|x} <path>\n`.
func LocateRequest(msgid uint32, stage bool, mode byte, path string) string {
	verb := "select"
	if stage {
		verb = "selects"
	}
	return fmt.Sprintf("%d %s %c %s\n", msgid, verb, mode, path)
}

// LocateReply is a parsed Manager answer to a locate request: exactly
// one of Try, Wait, or Err is populated.
type LocateReply struct {
	Try  string // "host:port"
	Wait int    // seconds
	Err  string
}

// ParseLocateReply parses the three reply shapes named in spec.md
// §4.8: `!try <host:port>`, `!wait <sec>`, `?err <text>`.
func ParseLocateReply(line string) (LocateReply, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "!try "):
		return LocateReply{Try: strings.TrimSpace(strings.TrimPrefix(line, "!try "))}, nil
	case strings.HasPrefix(line, "!wait "):
		secs, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "!wait ")))
		if err != nil {
			return LocateReply{}, fmt.Errorf("wire: malformed !wait reply %q: %w", line, err)
		}
		return LocateReply{Wait: secs}, nil
	case strings.HasPrefix(line, "?err "):
		return LocateReply{Err: strings.TrimSpace(strings.TrimPrefix(line, "?err "))}, nil
	default:
		return LocateReply{}, fmt.Errorf("wire: unrecognized locate reply %q", line)
	}
}

// StateLine formats the Manager→server `state <path>` poll of spec.md
// §4.6.
func StateLine(path string) string {
	return "state " + path + "\n"
}

// HaveLine formats a server's reply to a `state` poll: `have {r|w}
// <path>` if it can serve path, `bounce <path>` if it's still
// deciding, or `gone <path>` if it cannot (spec.md §4.5, §4.6).
func HaveLine(mode byte, path string) string {
	return fmt.Sprintf("have %c %s\n", mode, path)
}

func BounceLine(path string) string { return "bounce " + path + "\n" }
func GoneLine(path string) string   { return "gone " + path + "\n" }

// StateReply is a parsed server reply to a `state` poll.
type StateReply struct {
	Kind byte // 'h' have, 'b' bounce, 'g' gone
	Mode byte // 'r' or 'w', only set for Kind=='h'
	Path string
}

// ParseStateReply parses the three reply shapes HaveLine/BounceLine/
// GoneLine produce.
func ParseStateReply(line string) (StateReply, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return StateReply{}, fmt.Errorf("wire: malformed state reply %q", line)
	}
	switch fields[0] {
	case "have":
		if len(fields) < 3 {
			return StateReply{}, fmt.Errorf("wire: malformed have reply %q", line)
		}
		return StateReply{Kind: 'h', Mode: fields[1][0], Path: fields[2]}, nil
	case "bounce":
		return StateReply{Kind: 'b', Path: fields[1]}, nil
	case "gone":
		return StateReply{Kind: 'g', Path: fields[1]}, nil
	default:
		return StateReply{}, fmt.Errorf("wire: unrecognized state reply %q", line)
	}
}

// PingLine formats the Manager's periodic `ping` poll (spec.md §4.6
// "Ping loop").
func PingLine() string { return "ping\n" }

// AliveLine formats a server's `alive <load> <freeKB> <totalKB>
// <numFS>` ping reply.
func AliveLine(load int, freeKB, totalKB int64, numFS int) string {
	return fmt.Sprintf("alive %d %d %d %d\n", load, freeKB, totalKB, numFS)
}

// ParseAliveLine parses the tokens following "alive".
func ParseAliveLine(tokens []string) (load int, freeKB, totalKB int64, numFS int, err error) {
	if len(tokens) < 4 {
		return 0, 0, 0, 0, fmt.Errorf("wire: malformed alive line")
	}
	if _, err = fmt.Sscanf(tokens[0], "%d", &load); err != nil {
		return
	}
	if _, err = fmt.Sscanf(tokens[1], "%d", &freeKB); err != nil {
		return
	}
	if _, err = fmt.Sscanf(tokens[2], "%d", &totalKB); err != nil {
		return
	}
	_, err = fmt.Sscanf(tokens[3], "%d", &numFS)
	return
}

// AddPathLine's companion on the server→manager login handshake:
// `start <maxKB> <numFS> <totKB>` (spec.md §4.6 "StartServer").
func StartLine(maxKB int64, numFS int, totKB int64) string {
	return fmt.Sprintf("start %d %d %d\n", maxKB, numFS, totKB)
}

// ParseStartLine parses the tokens following "start".
func ParseStartLine(tokens []string) (maxKB int64, numFS int, totKB int64, err error) {
	if len(tokens) < 3 {
		return 0, 0, 0, fmt.Errorf("wire: malformed start line")
	}
	if _, err = fmt.Sscanf(tokens[0], "%d", &maxKB); err != nil {
		return
	}
	if _, err = fmt.Sscanf(tokens[1], "%d", &numFS); err != nil {
		return
	}
	_, err = fmt.Sscanf(tokens[2], "%d", &totKB)
	return
}

// AddPathLine formats a server's `addpath <perm> <prefix>` claim,
// where perm is one of "r", "w", "rw", optionally suffixed "s" for
// stageable (spec.md §6 `path` key, §4.6 addpath).
func AddPathLine(perm, prefix string) string {
	return "addpath " + perm + " " + prefix + "\n"
}

// ParseAddPath splits a perm token into its readable/writable/
// stageable bits.
func ParseAddPath(perm string) (readable, writable, stageable bool) {
	stageable = strings.HasSuffix(perm, "s")
	perm = strings.TrimSuffix(perm, "s")
	switch perm {
	case "r":
		readable = true
	case "w":
		writable = true
	case "rw":
		readable, writable = true, true
	}
	return
}

// AdminLine is one parsed admin-channel command (spec.md §4.9):
// `<reqid> <verb> <target-pattern> [args...]`.
type AdminLine struct {
	ReqID  string
	Verb   string
	Target string
	Args   []string
}

// ParseAdminLine parses one newline-delimited admin command.
func ParseAdminLine(line string) (AdminLine, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return AdminLine{}, fmt.Errorf("wire: malformed admin line %q", line)
	}
	return AdminLine{ReqID: fields[0], Verb: fields[1], Target: fields[2], Args: fields[3:]}, nil
}

// AdminAck formats the successful `<resp id="..."><rc>0</rc><sent>N</sent></resp>`
// acknowledgement of spec.md §4.9.
func AdminAck(reqid string, sent int) string {
	return fmt.Sprintf("<resp id=%q><rc>0</rc><sent>%d</sent></resp>\n", reqid, sent)
}

// AdminError formats the `<resp id="..."><rc>N</rc><msg>…</msg></resp>`
// error acknowledgement.
func AdminError(reqid string, code int, msg string) string {
	return fmt.Sprintf("<resp id=%q><rc>%d</rc><msg>%s</msg></resp>\n", reqid, code, msg)
}

// LoginLine formats the client's `login <username> <role> [port <n>]
// [nostage] [suspend]` line of spec.md §4.8 Hello.
type LoginLine struct {
	Username string
	Role     string
	Port     int // 0 if absent
	NoStage  bool
	Suspend  bool
}

// Encode renders l in wire form.
func (l LoginLine) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "login %s %s", l.Username, l.Role)
	if l.Port != 0 {
		fmt.Fprintf(&b, " port %d", l.Port)
	}
	if l.NoStage {
		b.WriteString(" nostage")
	}
	if l.Suspend {
		b.WriteString(" suspend")
	}
	return b.String()
}

// ParseLoginLine parses a login line's tokens (already split by the
// caller's Link.GetToken loop, e.g. after consuming the leading
// "login" token).
func ParseLoginLine(tokens []string) (LoginLine, error) {
	if len(tokens) < 2 {
		return LoginLine{}, fmt.Errorf("wire: malformed login line")
	}
	l := LoginLine{Username: tokens[0], Role: tokens[1]}
	for i := 2; i < len(tokens); i++ {
		switch tokens[i] {
		case "port":
			if i+1 >= len(tokens) {
				return LoginLine{}, fmt.Errorf("wire: login port missing value")
			}
			p, err := strconv.Atoi(tokens[i+1])
			if err != nil {
				return LoginLine{}, fmt.Errorf("wire: login port not numeric: %w", err)
			}
			l.Port = p
			i++
		case "nostage":
			l.NoStage = true
		case "suspend":
			l.Suspend = true
		}
	}
	return l, nil
}
