package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/me/evalzoo/pkg/model"
)

// CommandSource drives an external ratings tool. The tool is invoked as
//
//	<argv...> sync <eval_dir>
//	<argv...> top <n>                 -> JSON [{"version":41,"rating":1.2,"sigma":0.1}, ...]
//	<argv...> suggest <ignore_before> -> JSON [[41,38], ...]
type CommandSource struct {
	argv   []string
	logger *slog.Logger
}

// NewCommandSource returns a source that runs argv, e.g.
// []string{"python3", "ratings/ratings.py"}.
func NewCommandSource(argv []string, logger *slog.Logger) (*CommandSource, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("ranking command is empty")
	}
	return &CommandSource{
		argv:   append([]string(nil), argv...),
		logger: logger.With("component", "ranking"),
	}, nil
}

func (c *CommandSource) Sync(ctx context.Context, evalDir string) error {
	_, err := c.run(ctx, "sync", evalDir)
	return err
}

func (c *CommandSource) Top(ctx context.Context, n int) ([]Rating, error) {
	out, err := c.run(ctx, "top", strconv.Itoa(n))
	if err != nil {
		return nil, err
	}
	var ratings []Rating
	if err := json.Unmarshal(out, &ratings); err != nil {
		return nil, fmt.Errorf("parse top output: %w", err)
	}
	if len(ratings) > n {
		ratings = ratings[:n]
	}
	return ratings, nil
}

func (c *CommandSource) Suggest(ctx context.Context, ignoreBefore model.VersionID) ([]model.Pair, error) {
	out, err := c.run(ctx, "suggest", strconv.Itoa(int(ignoreBefore)))
	if err != nil {
		return nil, err
	}
	var pairs []model.Pair
	if err := json.Unmarshal(out, &pairs); err != nil {
		return nil, fmt.Errorf("parse suggest output: %w", err)
	}
	return pairs, nil
}

// run executes one sub-command and returns its stdout.
func (c *CommandSource) run(ctx context.Context, args ...string) ([]byte, error) {
	argv := append(append([]string(nil), c.argv[1:]...), args...)
	cmd := exec.CommandContext(ctx, c.argv[0], argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("run", "command", c.argv[0], "args", argv)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ranking %s: %w", args[0], err)
		}
		return nil, fmt.Errorf("ranking %s: %w: %s", args[0], err, msg)
	}
	return stdout.Bytes(), nil
}
