package conversation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"emotive.arpa/agent/inference"
	"emotive.arpa/agent/parse"
)

const quitCommand = "quit"

// Run reads prompts from in until "quit" (any case), end of input or ctx is
// cancelled. Failed turns are reported and the loop continues.
func (o *Orchestrator) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.printf("Emotion Prompt System\n")
	o.printf("Type your prompt (or '%s' to exit)\n", quitCommand)

	lines := readLines(ctx, in)
	for {
		o.printf("> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				o.printf("\n")
				return nil
			}
			if l.err != nil {
				return fmt.Errorf("read input: %w", l.err)
			}
			line = strings.TrimSpace(l.text)
		}

		if strings.EqualFold(line, quitCommand) {
			o.printf("Goodbye!\n")
			return nil
		}
		if line == "" {
			o.printf("Please enter something!\n")
			continue
		}

		res, err := o.Turn(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return ctx.Err()
			}
			o.log.Debug("Turn failed.", zap.Error(err))
			o.PrintFailure(err)
			continue
		}
		o.PrintResult(res)
	}
}

type inputLine struct {
	text string
	err  error
}

// readLines delivers lines of any length. A read error other than EOF is
// sent as the last item.
func readLines(ctx context.Context, r io.Reader) <-chan inputLine {
	lines := make(chan inputLine)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(r)
		for {
			text, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				send(ctx, lines, inputLine{err: err})
				return
			}
			if text != "" && !send(ctx, lines, inputLine{text: strings.TrimRight(text, "\r\n")}) {
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

func send(ctx context.Context, lines chan<- inputLine, l inputLine) bool {
	select {
	case lines <- l:
		return true
	case <-ctx.Done():
		return false
	}
}

// PrintResult writes the topic, emotion and reply of a completed turn.
func (o *Orchestrator) PrintResult(res *Result) {
	o.printf("Topic: %s\n", res.Topic)
	o.printf("Emotion: %s\n", res.Emotion)
	o.printf("Response: %s\n", res.Reply)
}

// PrintFailure explains a failed turn and, when the service is down, how to start it.
func (o *Orchestrator) PrintFailure(err error) {
	switch {
	case inference.IsUnavailable(err):
		o.printf("Error: Could not connect to Ollama on %s. Is it running?\n", o.config.ServiceAddr)
		o.printf("Run 'ollama run %s' in a terminal and keep it open.\n", o.config.Model)
	case errors.Is(err, parse.ErrMalformedReply):
		o.printf("Could not determine the topic from the reply.\n")
	case errors.Is(err, ErrEmptyReply):
	default:
		o.printf("Error connecting to Ollama: %v\n", cause(err))
	}

	var te *TurnError
	if errors.As(err, &te) && te.Stage == StageReply {
		o.printf("Could not generate a response.\n")
		return
	}
	o.printf("Could not determine the topic. Is Ollama running?\n")
}

// cause unwraps inference errors to the underlying transport failure.
func cause(err error) error {
	var ie *inference.Error
	if errors.As(err, &ie) && ie.Err != nil {
		return ie.Err
	}
	return err
}

func (o *Orchestrator) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.out, format, args...)
}
