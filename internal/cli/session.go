package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"impact/internal/core"
	"impact/internal/impact"
	"impact/internal/local"
	"impact/internal/log"
)

const helpText = `Commands:
  list                          show your savings, newest first
  add <amount> <month|year> <title>
                                log a new saving
  edit <id> key=value ...       change title, amount, period or proof
  delete <id>                   delete a saving (undo stays available for a short while)
  undo                          restore the last deleted saving
  dismiss                       drop the pending undo
  impact                        show your yearly impact
  recalc                        recompute your impact now
  help                          show this help
  quit                          leave
`

// errUsage marks input the session could not parse.
var errUsage = errors.New("usage")

// Session is a line-oriented front end over one user's local store.
type Session struct {
	store      *local.Store
	reader     *impact.Reader
	monitor    *impact.Monitor
	undoWindow time.Duration
	logger     *log.Logger
	now        func() time.Time

	out      io.Writer
	stopUndo func() bool
}

type SessionConfig struct {
	Store      *local.Store
	Reader     *impact.Reader
	Monitor    *impact.Monitor
	UndoWindow time.Duration
	Logger     *log.Logger
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.UndoWindow <= 0 {
		cfg.UndoWindow = 10 * time.Second
	}
	return &Session{
		store:      cfg.Store,
		reader:     cfg.Reader,
		monitor:    cfg.Monitor,
		undoWindow: cfg.UndoWindow,
		logger:     log.OrDiscard(cfg.Logger).WithComponent(log.ComponentCLI),
		now:        time.Now,
		out:        io.Discard,
	}
}

// Run reads commands from in until quit, EOF or ctx cancellation.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.out = out
	defer s.cancelUndoTimer()

	if v, err := s.Refresh(ctx); err != nil {
		s.printf("Could not load your savings: %v\n", err)
	} else {
		s.printImpact(v)
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		s.printf("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			quit, err := s.Execute(ctx, line)
			if err != nil {
				s.logger.DebugContext(ctx, "Command failed", "command", line, log.FieldError, err)
				s.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Refresh reloads events and the aggregate in parallel and lets the
// staleness monitor look at the result.
func (s *Session) Refresh(ctx context.Context) (impact.View, error) {
	var agg core.ImpactAggregate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.Load(gctx, core.ListQuery{Limit: core.MaxListLimit})
	})
	g.Go(func() error {
		var err error
		agg, err = s.reader.Aggregate(gctx, s.store.UserID())
		return err
	})
	if err := g.Wait(); err != nil {
		return impact.View{}, err
	}
	s.monitor.Observe(ctx, agg)
	return impact.NewView(agg, s.store.AnnualSum()), nil
}

// Execute runs one command line and reports whether the session should end.
func (s *Session) Execute(ctx context.Context, line string) (quit bool, err error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		s.printf("%s", helpText)
	case "list", "ls":
		s.list()
	case "add":
		err = s.add(ctx, rest)
	case "edit":
		err = s.edit(ctx, rest)
	case "delete", "rm":
		err = s.delete(ctx, rest)
	case "undo":
		err = s.undo(ctx)
	case "dismiss":
		s.cancelUndoTimer()
		if s.store.Undo().Dismiss("") {
			s.printf("Undo dismissed.\n")
		}
	case "impact":
		err = s.impact(ctx)
	case "recalc":
		err = s.recalc(ctx)
	default:
		err = fmt.Errorf("%w: unknown command %q, try help", errUsage, cmd)
	}
	return false, err
}

func (s *Session) list() {
	events := s.store.Events()
	if len(events) == 0 {
		s.printf("No savings yet. Try: add 10 month Cancelled streaming\n")
		return
	}
	for _, e := range events {
		mark := ""
		if e.Verified {
			mark = " [verified]"
		}
		s.printf("  %s  %-30s %8s/%-5s  %10s/yr%s\n",
			shortID(e.ID), e.Title, core.FormatAmount(e.Amount), e.Period,
			core.FormatAmount(e.Annualized()), mark)
	}
	sum := s.store.Summary(nil)
	s.printf("  %d savings, %s per year\n", sum.Count, core.FormatAmount(s.store.AnnualSum()))
}

func (s *Session) add(ctx context.Context, args string) error {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return fmt.Errorf("%w: add <amount> <month|year> <title>", errUsage)
	}
	amount, err := core.ParseAmount(fields[0])
	if err != nil {
		return err
	}
	e, err := s.store.Create(ctx, core.NewEvent{
		Title:  strings.Join(fields[2:], " "),
		Amount: amount,
		Period: core.Period(strings.ToLower(fields[1])),
	})
	if err != nil {
		return err
	}
	s.printf("Added %s: %s (%s per year)\n", shortID(e.ID), e.Title, core.FormatAmount(e.Annualized()))
	return nil
}

func (s *Session) edit(ctx context.Context, args string) error {
	ref, assignments, _ := strings.Cut(args, " ")
	if ref == "" || strings.TrimSpace(assignments) == "" {
		return fmt.Errorf("%w: edit <id> key=value ...", errUsage)
	}
	id, err := s.resolve(ref)
	if err != nil {
		return err
	}
	fields, err := parseAssignments(assignments)
	if err != nil {
		return err
	}
	if err := s.store.UpdateFields(ctx, id, fields); err != nil {
		return err
	}
	s.printf("Updated %s.\n", shortID(id))
	return nil
}

func (s *Session) delete(ctx context.Context, ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: delete <id>", errUsage)
	}
	id, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.cancelUndoTimer()
	s.stopUndo = s.store.Undo().ExpireAfter(id, s.undoWindow)
	s.printf("Deleted %s. Type undo within %s to restore it.\n", shortID(id), s.undoWindow)
	return nil
}

func (s *Session) undo(ctx context.Context) error {
	if !s.store.Undo().OfferValid(s.now(), s.undoWindow) {
		s.store.Undo().Dismiss("")
		return local.ErrNothingToUndo
	}
	s.cancelUndoTimer()
	e, err := s.store.Restore(ctx)
	if err != nil {
		return err
	}
	s.printf("Restored %s: %s\n", shortID(e.ID), e.Title)
	return nil
}

func (s *Session) impact(ctx context.Context) error {
	agg, err := s.reader.Aggregate(ctx, s.store.UserID())
	if err != nil {
		return err
	}
	if s.monitor.Observe(ctx, agg) {
		s.printf("Your impact is out of date, a recompute was requested.\n")
	}
	s.printImpact(impact.NewView(agg, s.store.AnnualSum()))
	return nil
}

func (s *Session) recalc(ctx context.Context) error {
	s.printf("Recomputing...\n")
	agg, err := s.monitor.RecalculateNow(ctx)
	if err != nil {
		return err
	}
	s.printImpact(impact.NewView(agg, s.store.AnnualSum()))
	return nil
}

func (s *Session) printImpact(v impact.View) {
	s.printf("Yearly impact: %s (verified %s, %d proofs verified)\n",
		core.FormatAmount(v.DisplayedEstimate),
		core.FormatAmount(v.ImpactAnnualVerified),
		v.ProofsVerifiedCount)
	if v.LastRecalcAt == nil {
		s.printf("  not computed by the server yet\n")
	} else {
		s.printf("  last computed %s\n", v.LastRecalcAt.Local().Format(time.DateTime))
	}
}

// resolve maps a unique id prefix to an event id.
func (s *Session) resolve(ref string) (string, error) {
	var match string
	for _, e := range s.store.Events() {
		if e.ID == ref {
			return e.ID, nil
		}
		if strings.HasPrefix(e.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("%w: id prefix %q is ambiguous", errUsage, ref)
			}
			match = e.ID
		}
	}
	if match == "" {
		return "", core.NotFound("event", ref)
	}
	return match, nil
}

func (s *Session) cancelUndoTimer() {
	if s.stopUndo != nil {
		s.stopUndo()
		s.stopUndo = nil
	}
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// parseAssignments reads key=value pairs. Values may be double-quoted to
// contain spaces.
func parseAssignments(s string) (map[string]any, error) {
	out := map[string]any{}
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		key, rest, ok := strings.Cut(s, "=")
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("%w: expected key=value, got %q", errUsage, s)
		}
		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote for %s", errUsage, key)
			}
			value, rest = rest[1:end+1], rest[end+2:]
		} else {
			value, rest, _ = strings.Cut(rest, " ")
		}
		out[strings.ToLower(key)] = value
		s = rest
	}
	return out, nil
}
