package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// PollArgs holds the parsed arguments of /create_poll.
type PollArgs struct {
	Duration string
	Question string
	Options  []string
}

// ParsePollCommand parses pipe-separated poll arguments.
// Format: <duration> | <question> | <option> | <option> [| ...]
func ParsePollCommand(args string) (PollArgs, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 4 {
		return PollArgs{}, fmt.Errorf("usage: /create_poll <duration> | <question> | <option> | <option> ...")
	}

	duration := strings.TrimSpace(parts[0])
	question := strings.TrimSpace(parts[1])
	if duration == "" || question == "" {
		return PollArgs{}, fmt.Errorf("duration and question cannot be empty")
	}

	var options []string
	for _, p := range parts[2:] {
		opt := strings.TrimSpace(p)
		if opt == "" {
			return PollArgs{}, fmt.Errorf("poll options cannot be empty")
		}
		options = append(options, opt)
	}

	return PollArgs{Duration: duration, Question: question, Options: options}, nil
}

// ParseDurationAndText splits "<duration> <text...>" on the first
// whitespace. Used by /remind and /start_timer.
func ParseDurationAndText(args string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("usage: <duration> <text>")
	}
	text := strings.TrimSpace(parts[1])
	if text == "" {
		return "", "", fmt.Errorf("usage: <duration> <text>")
	}
	return parts[0], text, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}
