package domain

import "fmt"

// Counter addresses one monotonically increasing field of a Poll: either the
// poll-level like counter or the vote counter of a single option.
type Counter struct {
	option int
	likes  bool
}

func LikesCounter() Counter {
	return Counter{likes: true}
}

func VotesCounter(optionIndex int) Counter {
	return Counter{option: optionIndex}
}

func (c Counter) IsLikes() bool { return c.likes }

// OptionIndex is only meaningful when IsLikes is false.
func (c Counter) OptionIndex() int { return c.option }

// Path renders the counter as a document field path ("likes", "options.1.votes").
func (c Counter) Path() string {
	if c.likes {
		return "likes"
	}
	return fmt.Sprintf("options.%d.votes", c.option)
}

func (c Counter) String() string { return c.Path() }
