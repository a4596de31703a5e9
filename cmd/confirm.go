package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkichain/pkichain/order"
)

// terminalConfirmer prints a review and waits for a yes on the input.
type terminalConfirmer struct {
	in    *bufio.Reader
	out   io.Writer
	yes   bool
	once  sync.Once
	lines chan string
}

func newTerminalConfirmer(in io.Reader, out io.Writer, yes bool) *terminalConfirmer {
	return &terminalConfirmer{in: bufio.NewReader(in), out: out, yes: yes}
}

func (t *terminalConfirmer) Confirm(ctx context.Context, review order.Review) (bool, error) {
	fmt.Fprintln(t.out, review.String())
	if t.yes {
		return true, nil
	}
	return t.ask(ctx, "Confirm")
}

// readLines is the only reader of t.in. A line typed after a cancelled ask
// goes to the next ask. The channel is closed once the input ends.
func (t *terminalConfirmer) readLines() {
	t.lines = make(chan string)
	go func() {
		defer close(t.lines)
		for {
			line, err := t.in.ReadString('\n')
			if line != "" || err == nil {
				t.lines <- line
			}
			if err != nil {
				if err != io.EOF {
					slog.Warn("failed to read answer", slog.Any("error", err))
				}
				return
			}
		}
	}()
}

func (t *terminalConfirmer) ask(ctx context.Context, question string) (bool, error) {
	t.once.Do(t.readLines)
	fmt.Fprintf(t.out, "%s? [y/N] ", question)
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
