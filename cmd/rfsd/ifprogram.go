package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/rfsd/rfsd/prepare"
)

// execForwarder shells out to the configured external prepare-IF
// program for each queue mutation, grounded on backend/press's
// exec.Command subprocess style (this module's closest analogue to
// invoking an external helper binary).
type execForwarder struct {
	path string
}

func newExecForwarder(path string) *execForwarder {
	return &execForwarder{path: path}
}

func (f *execForwarder) run(args ...string) ([]byte, error) {
	cmd := exec.Command(f.path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ifpgm %s: %w", f.path, err)
	}
	return out.Bytes(), nil
}

func (f *execForwarder) Add(req prepare.Request) error {
	_, err := f.run("add", req.ReqID, req.User, req.Mode, req.Path)
	return err
}

func (f *execForwarder) Cancel(reqid string) error {
	_, err := f.run("del", reqid)
	return err
}

func (f *execForwarder) FullList() ([]prepare.Request, error) {
	out, err := f.run("list")
	if err != nil {
		return nil, err
	}
	var reqs []prepare.Request
	if len(out) == 0 {
		return reqs, nil
	}
	if err := json.Unmarshal(out, &reqs); err != nil {
		return nil, fmt.Errorf("ifpgm %s: malformed list output: %w", f.path, err)
	}
	return reqs, nil
}
