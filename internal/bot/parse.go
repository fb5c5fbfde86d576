package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelArgs holds the parsed arguments of /add_source and /add_target.
type ChannelArgs struct {
	ChannelID int64
	Username  string
	Title     string
}

// ParseChannelArgs parses: <channel_id> [@username] <title...>
func ParseChannelArgs(args string) (ChannelArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return ChannelArgs{}, fmt.Errorf("usage: <channel_id> [@username] <title>")
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ChannelArgs{}, fmt.Errorf("invalid channel ID %q", parts[0])
	}

	rest := parts[1:]
	var username string
	if strings.HasPrefix(rest[0], "@") {
		username = strings.TrimPrefix(rest[0], "@")
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return ChannelArgs{}, fmt.Errorf("channel title is required")
	}

	return ChannelArgs{
		ChannelID: id,
		Username:  username,
		Title:     strings.Join(rest, " "),
	}, nil
}

// FilterArgs holds the parsed arguments of a filter command.
type FilterArgs struct {
	Value         string
	CaseSensitive bool
}

// ParseFilterCommand parses arguments for /include, /exclude, /pattern.
// Format: [-c] <value...> where -c makes the rule case-sensitive.
func ParseFilterCommand(args string) (FilterArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return FilterArgs{}, fmt.Errorf("usage: [-c] <value>")
	}

	var caseSensitive bool
	if parts[0] == "-c" {
		caseSensitive = true
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return FilterArgs{}, fmt.Errorf("filter value is required")
	}

	return FilterArgs{
		Value:         strings.Join(parts, " "),
		CaseSensitive: caseSensitive,
	}, nil
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
