package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// -------------------- Terminal controls --------------------

type opKind int

const (
	opToggle opKind = iota
	opSeek
	opRestart
	opQuit
)

type command struct {
	op opKind
	at time.Duration
}

const controlHelp = "commands: p pause/resume, s <seconds> seek, r restart, q quit"

// parseCommand reads one control line.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	switch strings.ToLower(fields[0]) {
	case "p", "pause":
		return command{op: opToggle}, nil
	case "r", "restart":
		return command{op: opRestart}, nil
	case "q", "quit":
		return command{op: opQuit}, nil
	case "s", "seek":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("seek needs a position in seconds")
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || secs < 0 {
			return command{}, fmt.Errorf("bad seek position %q", fields[1])
		}
		return command{op: opSeek, at: time.Duration(secs * float64(time.Second))}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", fields[0])
}

// controller is the part of the player the terminal drives.
type controller interface {
	TogglePause()
	Seek(t time.Duration)
	Paused() bool
	Resume()
	Stop()
}

// controlLoop reads commands from r until it closes, ctx ends or q is typed.
func controlLoop(ctx context.Context, r io.Reader, w io.Writer, p controller) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintf(w, "%v\n%s\n", err, controlHelp)
				continue
			}
			slog.Debug("control: command", "op", cmd.op, "at", cmd.at)
			switch cmd.op {
			case opToggle:
				p.TogglePause()
			case opSeek:
				p.Seek(cmd.at)
			case opRestart:
				p.Seek(0)
				if p.Paused() {
					p.Resume()
				}
			case opQuit:
				p.Stop()
				return
			}
		}
	}
}
