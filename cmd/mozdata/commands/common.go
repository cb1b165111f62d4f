package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

var (
	// ErrInvalidBugID indicates an argument that is not a positive bug number.
	ErrInvalidBugID = errors.New("bug id must be a positive integer")
	// ErrUnknownChannel indicates a channel name mozdata does not know.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrInvalidDate indicates a date flag that cannot be parsed.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD or RFC 3339")
)

// withServices opens the services for a one-shot command, runs fn and
// flushes telemetry.
func withServices(cmd *cobra.Command, g *Globals, fn func(context.Context, *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := OpenServices(ctx, g, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer svc.Close(context.WithoutCancel(ctx))

	return fn(ctx, svc)
}

// ParseBugIDs reads bug numbers. "#1234" and "bug 1234" style prefixes are
// accepted.
func ParseBugIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))

	for _, arg := range args {
		raw := strings.TrimSpace(arg)
		raw = strings.TrimPrefix(strings.ToLower(raw), "bug")
		raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")

		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBugID, arg)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// ParseDate reads a YYYY-MM-DD date or an RFC 3339 timestamp as UTC. An
// empty value yields the zero time.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}
