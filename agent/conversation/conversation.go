// Package conversation runs prompts through topic classification and an emotional reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"emotive.arpa/agent/parse"
	"emotive.arpa/agent/topics"
)

var (
	ErrEmptyInput = errors.New("empty input")
	ErrEmptyReply = errors.New("empty reply")
)

type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type topicStore interface {
	Save(ctx context.Context, l topics.Learned) error
}

type historyStore interface {
	Append(ctx context.Context, r Result) error
}

type Config struct {
	Policy        parse.Policy
	ListTopics    bool // Enumerate known topics in the classification prompt
	LearnKeywords bool // Also record the extracted keyword under the resolved emotion
	Overlap       bool // Record topics while the emotional reply is generated
	ServiceAddr   string
	Model         string
}

// Stage names the inference step a turn failed in.
type Stage string

const (
	StageClassify Stage = "classify"
	StageReply    Stage = "reply"
)

type TurnError struct {
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one turn.
type Result struct {
	ID        string         `json:"id"`
	Input     string         `json:"input"`
	Topic     string         `json:"topic"`
	Keyword   string         `json:"keyword,omitempty"`
	Emotion   topics.Emotion `json:"emotion"`
	Reply     string         `json:"response,omitempty"`
	Recorded  []string       `json:"recorded,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Orchestrator struct {
	log     *zap.Logger
	config  Config
	llm     generator
	table   *topics.Table
	store   topicStore
	history historyStore
	out     io.Writer
}

type Option func(*Orchestrator)

// WithTopicStore persists topics recorded during turns.
func WithTopicStore(s topicStore) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithHistory stores every completed turn.
func WithHistory(h historyStore) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithOutput sets where the interactive loop prints. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.out = w
	}
}

func NewOrchestrator(log *zap.Logger, c Config, llm generator, table *topics.Table, opts ...Option) *Orchestrator {
	if c.Policy == "" {
		c.Policy = parse.Strict
	}
	o := &Orchestrator{
		log:    log,
		config: c,
		llm:    llm,
		table:  table,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Table returns the topic table the orchestrator updates.
func (o *Orchestrator) Table() *topics.Table {
	return o.table
}

// Classify runs the classification step and resolves the emotion without
// recording anything or generating a reply.
func (o *Orchestrator) Classify(ctx context.Context, input string) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	res := &Result{ID: uuid.NewString(), Input: input, CreatedAt: time.Now()}

	reply, err := o.classify(ctx, input)
	if err != nil {
		return nil, &TurnError{Stage: StageClassify, Err: err}
	}
	res.Topic = reply.Topic()
	res.Keyword = reply.Keyword()
	res.Emotion = o.table.Lookup(strings.ToLower(res.Topic))
	return res, nil
}

// Turn runs one full cycle for input. A failed reply still returns the
// classified result alongside the error.
func (o *Orchestrator) Turn(ctx context.Context, input string) (*Result, error) {
	res, err := o.Classify(ctx, input)
	if err != nil {
		return nil, err
	}
	log := o.log.With(zap.String("turn", res.ID))
	log.Debug("Resolved emotion.",
		zap.String("topic", res.Topic),
		zap.String("keyword", res.Keyword),
		zap.Stringer("emotion", res.Emotion),
	)

	if o.config.Overlap {
		// Both goroutines write disjoint fields of res. Recording keeps the
		// parent ctx so a failed reply cannot stop the table and store from agreeing.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			res.Recorded = o.record(ctx, log, res)
			return nil
		})
		g.Go(func() error {
			text, err := o.reply(gctx, res.Input, res.Emotion)
			res.Reply = text
			return err
		})
		err = g.Wait()
	} else {
		res.Recorded = o.record(ctx, log, res)
		res.Reply, err = o.reply(ctx, res.Input, res.Emotion)
	}
	if err != nil {
		return res, &TurnError{Stage: StageReply, Err: err}
	}

	if o.history != nil {
		if err := o.history.Append(ctx, *res); err != nil {
			log.Warn("Failed to store turn.", zap.Error(err))
		}
	}
	return res, nil
}

func (o *Orchestrator) classify(ctx context.Context, input string) (parse.Reply, error) {
	var known []string
	if o.config.ListTopics {
		known = o.table.Topics()
	}
	prompt, err := classifyPrompt(input, known)
	if err != nil {
		return nil, err
	}
	raw, err := o.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	reply, err := parse.TopicKeyword(raw, o.config.Policy)
	if err != nil {
		o.log.Debug("Could not parse classification.", zap.String("raw", raw), zap.Error(err))
		return nil, err
	}
	return reply, nil
}

// record adds the topic (and with LearnKeywords the keyword) under the resolved
// emotion. Nothing is recorded without a keyword or for Indifference.
func (o *Orchestrator) record(ctx context.Context, log *zap.Logger, res *Result) []string {
	if res.Keyword == "" || res.Emotion == topics.Indifference {
		return nil
	}
	candidates := []string{strings.ToLower(res.Topic)}
	if o.config.LearnKeywords {
		candidates = append(candidates, strings.ToLower(res.Keyword))
	}

	var recorded []string
	for _, topic := range candidates {
		if !o.table.Record(res.Emotion, topic) {
			continue
		}
		recorded = append(recorded, topic)
		log.Info("Added new topic.", zap.String("topic", topic), zap.Stringer("emotion", res.Emotion))

		if o.store == nil {
			continue
		}
		err := o.store.Save(ctx, topics.Learned{Emotion: res.Emotion, Topic: topic, CreatedAt: time.Now()})
		if err != nil {
			log.Warn("Failed to persist topic.", zap.String("topic", topic), zap.Error(err))
		}
	}
	return recorded
}

func (o *Orchestrator) reply(ctx context.Context, input string, emotion topics.Emotion) (string, error) {
	prompt, err := augmentPrompt(input, emotion)
	if err != nil {
		return "", err
	}
	text, err := o.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
