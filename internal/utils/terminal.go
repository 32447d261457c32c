package utils

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"golang.org/x/term"
)

// ReadPassphraseFromTTY prompts the user for a passphrase from /dev/tty (or CON on Windows).
// Git filters own stdin and stdout, so key passphrases are always read this way.
// The prompt is abandoned, and the terminal restored, once ctx is done.
func ReadPassphraseFromTTY(ctx context.Context, prompt string) ([]byte, error) {
	tty, err := os.OpenFile(ttyPath(), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s for passphrase input: %w", ttyPath(), err)
	}
	defer tty.Close()

	fd, err := ttyFd(tty)
	if err != nil {
		return nil, err
	}
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not a terminal", ttyPath())
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", ttyPath(), err)
	}
	defer func() { _ = term.Restore(fd, state) }()

	// A read deadline unblocks the pending read when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = tty.SetReadDeadline(time.Now()) })
	defer stop()

	passphrase, err := term.NewTerminal(tty, "").ReadPassword(prompt)
	fmt.Fprint(tty, "\r\n")

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return []byte(passphrase), nil
}

// ttyFd returns the descriptor without tty.Fd, which would switch the file
// to blocking mode and disable read deadlines.
func ttyFd(tty *os.File) (int, error) {
	raw, err := tty.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("cannot access %s: %w", ttyPath(), err)
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, fmt.Errorf("cannot access %s: %w", ttyPath(), err)
	}
	return fd, nil
}

func ttyPath() string {
	if runtime.GOOS == "windows" {
		return "CON"
	}
	return "/dev/tty"
}
