package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MinOptions = 2

type Poll struct {
	ID        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options"`
	Likes     int64     `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Option is addressed by its position in Poll.Options.
type Option struct {
	Text  string `json:"text"`
	Votes int64  `json:"votes"`
}

// NewPoll builds a poll with every counter at zero.
func NewPoll(question string, options []string, now time.Time) (*Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}
	if len(options) < MinOptions {
		return nil, fmt.Errorf("%w: at least %d options are required", ErrValidation, MinOptions)
	}

	poll := &Poll{
		ID:        uuid.New(),
		Question:  question,
		Options:   make([]Option, 0, len(options)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, text := range options {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("%w: option %d is empty", ErrValidation, i)
		}
		poll.Options = append(poll.Options, Option{Text: text})
	}

	return poll, nil
}

// Timestamp normalises t to UTC at millisecond precision, the finest every
// store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (p *Poll) HasOption(index int) bool {
	return index >= 0 && index < len(p.Options)
}

func (p *Poll) TotalVotes() int64 {
	var total int64
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// Clone returns a deep copy so callers never share the options slice.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = append([]Option(nil), p.Options...)
	return &c
}
