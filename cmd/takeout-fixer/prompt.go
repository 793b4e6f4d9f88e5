package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/listenupapp/takeout-fixer/internal/pipeline"
)

// answer is the operator's reply to a failed file.
type answer int

const (
	answerSkip answer = iota
	answerRetry
	answerAbort
)

// parseAnswer accepts the first letter or the whole word.
func parseAnswer(line string) (answer, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "skip", "":
		return answerSkip, true
	case "r", "retry":
		return answerRetry, true
	case "a", "abort", "q", "quit":
		return answerAbort, true
	}
	return answerSkip, false
}

func (a answer) resolution() pipeline.Resolution {
	if a == answerRetry {
		return pipeline.Retry
	}
	return pipeline.Skip
}

// prompter reads answers from the terminal. Lines are read on their own
// goroutine so a blocked read never keeps the command from reacting to
// cancellation.
type prompter struct {
	out   io.Writer
	lines chan string
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{out: out, lines: make(chan string)}
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
	return p
}

// ask shows a failed file and waits for a valid answer. A closed input
// aborts, since nobody is left to answer.
func (p *prompter) ask(ctx context.Context, path string, cause error) answer {
	fmt.Fprintf(p.out, "\nerror: %s\n  %v\n", path, cause)
	for {
		fmt.Fprint(p.out, "[s]kip, [r]etry or [a]bort? ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return answerAbort
		case line, ok := <-p.lines:
			if !ok {
				fmt.Fprintln(p.out)
				return answerAbort
			}
			if a, valid := parseAnswer(line); valid {
				return a
			}
			fmt.Fprintf(p.out, "unrecognised answer %q\n", line)
		}
	}
}
