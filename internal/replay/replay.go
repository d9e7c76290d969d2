// Package replay feeds a recorded stream of confirmed blocks, forks and
// rebinds through the round coordinator.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"roundledger/internal/coordinator"
	"roundledger/internal/logger"
	"roundledger/internal/models"
)

// Event types of a replay file.
const (
	TypeBlock  = "block"
	TypeFork   = "fork"
	TypeRebind = "rebind"
)

// Event is one line of a replay file.
type Event struct {
	Type  string                 `json:"type"`
	Block *models.ConfirmedBlock `json:"block,omitempty"`
	// Round and Height describe a fork: the round to roll back and the last
	// height of the common chain.
	Round  int64  `json:"round,omitempty"`
	Height int64  `json:"height,omitempty"`
	NewID  string `json:"new_id,omitempty"`
	OldID  string `json:"old_id,omitempty"`
}

// Target is the part of the coordinator a replay drives.
type Target interface {
	OnBlockConfirmed(ctx context.Context, b *models.ConfirmedBlock) error
	OnForkDetected(ctx context.Context, round, height int64) (*coordinator.RollbackResult, error)
	RebindBlock(ctx context.Context, newBlockID, oldBlockID string) error
}

// Summary counts what a replay applied.
type Summary struct {
	Blocks       int
	Forks        int
	Rebinds      int
	RoundsUndone int
}

// Decode reads a JSON-lines replay file. Blank lines and lines starting with
// '#' are skipped.
func Decode(r io.Reader) ([]Event, error) {
	var events []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if err := ev.validate(); err != nil {
			return nil, errors.WithMessagef(err, "line %d", line)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read replay file")
	}
	return events, nil
}

func (ev Event) validate() error {
	switch ev.Type {
	case TypeBlock:
		if ev.Block == nil {
			return errors.New("block event without block")
		}
	case TypeFork:
		if ev.Round <= 0 {
			return errors.Errorf("fork event with invalid round %d", ev.Round)
		}
	case TypeRebind:
		if ev.NewID == "" || ev.OldID == "" {
			return errors.New("rebind event needs new_id and old_id")
		}
	default:
		return errors.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// Options control how Run reports progress.
type Options struct {
	// Progress is where the progress bar is drawn; nil disables it.
	Progress io.Writer
	Log      *logger.Logger
}

// Run applies events in order and stops at the first error.
func Run(ctx context.Context, target Target, events []Event, opts Options) (*Summary, error) {
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	var bar *progressbar.ProgressBar
	if opts.Progress != nil && len(events) > 1 {
		bar = progressbar.NewOptions64(
			int64(len(events)),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Replaying events..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return nil, errors.Wrap(err, "render progress bar")
		}
	}

	sum := &Summary{}
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		switch ev.Type {
		case TypeBlock:
			if err := target.OnBlockConfirmed(ctx, ev.Block); err != nil {
				return sum, errors.WithMessagef(err, "event %d: block %d", i+1, ev.Block.Height)
			}
			sum.Blocks++
		case TypeFork:
			res, err := target.OnForkDetected(ctx, ev.Round, ev.Height)
			if err != nil {
				return sum, errors.WithMessagef(err, "event %d: fork at round %d", i+1, ev.Round)
			}
			log.Printf("replay: fork at round %d undid %v, replaying from %d", ev.Round, res.RoundsUndone, res.ReplayFromHeight)
			sum.Forks++
			sum.RoundsUndone += len(res.RoundsUndone)
		case TypeRebind:
			if err := target.RebindBlock(ctx, ev.NewID, ev.OldID); err != nil {
				return sum, errors.WithMessagef(err, "event %d: rebind %s", i+1, ev.OldID)
			}
			sum.Rebinds++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return sum, errors.Wrap(err, "finish progress bar")
		}
	}
	return sum, nil
}
