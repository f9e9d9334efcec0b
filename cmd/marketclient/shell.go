package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"market_client/internal/core"
	"market_client/internal/journal"
	"market_client/internal/session"
	apperrors "market_client/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/shopspring/decimal"
)

const usage = `commands:
  register <user>                 open a session as user
  unregister                      close the session
  list                            show the marketplace listing
  sell <name> <category> <price>  list an item
  buy <id|#>                      buy a listed item
  remove <id|#>                   withdraw one of your items
  wish <category> <max>           add a standing order
  wishes                          show your wish list
  balance                         show your balance
  state                           show the session state
  history [n]                     show journaled events
  help                            show this text
  quit                            unregister and exit`

var errQuit = errors.New("quit")

// shell maps command lines onto the session manager
type shell struct {
	mgr     *session.Manager
	journal *journal.SQLiteJournal
	out     *printer
}

// exec runs one command line. It returns errQuit when the user asked to leave.
func (s *shell) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "help", "?":
		s.out.plain("%s", usage)
	case "quit", "exit":
		return errQuit
	case "register":
		if len(args) != 1 {
			return fmt.Errorf("usage: register <user>")
		}
		return s.mgr.Register(ctx, args[0])
	case "unregister":
		return s.mgr.Unregister(ctx)
	case "list":
		s.out.listing(s.mgr.Listing(), s.mgr.Username())
	case "sell":
		if len(args) < 3 {
			return fmt.Errorf("usage: sell <name> <category> <price>")
		}
		category, err := core.ParseCategory(args[len(args)-2])
		if err != nil {
			return err
		}
		price, err := decimal.NewFromString(args[len(args)-1])
		if err != nil {
			return fmt.Errorf("invalid price %q", args[len(args)-1])
		}
		item, err := s.mgr.ListItem(ctx, strings.Join(args[:len(args)-2], " "), category, price)
		if err != nil {
			return err
		}
		s.out.plain("listed %s as %s", item.Name, item.ID)
	case "buy", "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <id|#>", cmd)
		}
		item, err := s.lookup(args[0])
		if err != nil {
			return err
		}
		if cmd == "buy" {
			return s.mgr.BuyItem(ctx, item)
		}
		return s.mgr.RemoveItem(ctx, item)
	case "wish":
		if len(args) != 2 {
			return fmt.Errorf("usage: wish <category> <max>")
		}
		category, err := core.ParseCategory(args[0])
		if err != nil {
			return err
		}
		maxPrice, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid price %q", args[1])
		}
		return s.mgr.AddWish(ctx, core.ItemWish{Category: category, MaxPrice: maxPrice})
	case "wishes":
		s.out.wishes(s.mgr.Wishes())
	case "balance":
		if bal, ok := s.mgr.Balance(); ok {
			s.out.plain("balance: %s", money(bal))
		} else {
			s.out.plain("balance unknown")
		}
	case "state":
		if user := s.mgr.Username(); user != "" {
			s.out.plain("%s as %s on %s", s.mgr.State(), user, s.mgr.MarketplaceName())
		} else {
			s.out.plain("%s", s.mgr.State())
		}
	case "history":
		return s.history(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

// lookup resolves an item id or a 1-based listing position
func (s *shell) lookup(ref string) (core.Item, error) {
	if item, ok := s.mgr.Item(ref); ok {
		return item, nil
	}
	listing := s.mgr.Listing()
	if n, err := strconv.Atoi(strings.TrimPrefix(ref, "#")); err == nil && n >= 1 && n <= len(listing) {
		return listing[n-1], nil
	}
	return core.Item{}, fmt.Errorf("no listed item %q", ref)
}

func (s *shell) history(ctx context.Context, args []string) error {
	if s.journal == nil {
		return fmt.Errorf("journal is disabled")
	}
	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("usage: history [n]")
		}
		limit = n
	}
	if err := s.journal.Flush(ctx); err != nil {
		return err
	}
	entries, err := s.journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.out.plain("%s %-13s %s", e.CreatedAt.Format("15:04:05"), e.Kind, compact(e.Payload))
	}
	return nil
}

func compact(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// run reads commands until quit, EOF or ctx is done
func (s *shell) run(ctx context.Context, stdin io.ReadCloser, historyFile string) error {
	cs := readline.NewCancelableStdin(stdin)
	go func() {
		<-ctx.Done()
		_ = cs.Close()
	}()

	rl, err := readline.NewEx(&readline.Config{
		Stdin:             cs,
		Prompt:            "market> ",
		HistoryFile:       historyFile,
		EOFPrompt:         "quit",
		HistorySearchFold: true,
		AutoComplete:      completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	s.out.setOutput(rl.Stdout())

	s.out.plain("type help for commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := s.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			if !reported(err) {
				s.out.errorf("%v", err)
			}
		}
	}
}

// reported tells whether the session already showed err through the observer
func reported(err error) bool {
	if errors.Is(err, apperrors.ErrInvalidState) || errors.Is(err, apperrors.ErrEmptyUsername) {
		return false
	}
	var (
		opErr   *apperrors.OperationError
		sessErr *apperrors.SessionError
	)
	return errors.As(err, &opErr) || errors.As(err, &sessErr)
}

func completer() readline.AutoCompleter {
	var categories []readline.PrefixCompleterInterface
	for _, c := range core.Categories() {
		categories = append(categories, readline.PcItem(c.String()))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("register"),
		readline.PcItem("unregister"),
		readline.PcItem("list"),
		readline.PcItem("sell"),
		readline.PcItem("buy"),
		readline.PcItem("remove"),
		readline.PcItem("wish", categories...),
		readline.PcItem("wishes"),
		readline.PcItem("balance"),
		readline.PcItem("state"),
		readline.PcItem("history"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}
