package main

import (
	"io"
	"sync"

	"market_client/internal/core"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

// printer renders observer events on the terminal
type printer struct {
	mu  sync.Mutex
	out io.Writer

	info  *color.Color
	warn  *color.Color
	fail  *color.Color
	faint *color.Color
	bold  *color.Color
}

func newPrinter(out io.Writer, noColor bool) *printer {
	p := &printer{
		out:   out,
		info:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed),
		faint: color.New(color.Faint),
		bold:  color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.info, p.warn, p.fail, p.faint, p.bold} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) setOutput(out io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = out
}

func (p *printer) printf(c *color.Color, format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = c.Fprintf(p.out, format, args...)
}

func money(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

func (p *printer) OnBalanceChanged(balance decimal.Decimal) {
	p.printf(p.bold, "balance: %s\n", money(balance))
}

func (p *printer) OnListingChanged(items []core.Item) {
	p.printf(p.faint, "listing updated: %s items\n", humanize.Comma(int64(len(items))))
}

func (p *printer) OnWishListChanged(wishes []core.ItemWish) {
	p.printf(p.faint, "wish list: %s wishes\n", humanize.Comma(int64(len(wishes))))
}

func (p *printer) OnLogEvent(event core.LogEvent) {
	switch event.Level {
	case core.LogError:
		p.printf(p.fail, "! %s\n", event.Message)
	case core.LogWarn:
		p.printf(p.warn, "* %s\n", event.Message)
	default:
		p.printf(p.info, "> %s\n", event.Message)
	}
}

func (p *printer) OnSessionStateChanged(state core.SessionState) {
	p.printf(p.faint, "session %s\n", state)
}

// listing prints the items with their position, the shell accepts either as an id
func (p *printer) listing(items []core.Item, self string) {
	if len(items) == 0 {
		p.printf(p.faint, "(no items listed)\n")
		return
	}
	for i, it := range items {
		c := p.bold
		if it.Seller == self {
			c = p.faint
		}
		p.printf(c, "%3d. %-30s %-12s %10s  %-10s %s\n", i+1, it.Name, it.Category, money(it.Price), it.Seller, it.ID)
	}
}

func (p *printer) wishes(wishes []core.ItemWish) {
	if len(wishes) == 0 {
		p.printf(p.faint, "(wish list empty)\n")
		return
	}
	for i, w := range wishes {
		p.printf(p.bold, "%s: %s up to %s\n", humanize.Ordinal(i+1), w.Category, money(w.MaxPrice))
	}
}

func (p *printer) errorf(format string, args ...interface{}) {
	p.printf(p.fail, format+"\n", args...)
}

func (p *printer) plain(format string, args ...interface{}) {
	p.printf(p.bold, format+"\n", args...)
}

var _ core.IObserver = (*printer)(nil)
