// Package notify imprime por consola las confirmaciones y fallos del bot.
// Implementa ports.ConfirmationSink; nunca afecta al estado del core.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/events"
)

// TitleResolver resuelve token id → nombre legible del mercado.
// Un error o un título vacío degradan al token id truncado.
type TitleResolver interface {
	MarketTitle(ctx context.Context, asset string) (string, error)
}

// Console escribe confirmaciones de fills y fallos de copia a un writer.
type Console struct {
	log    *slog.Logger
	out    io.Writer
	titles TitleResolver
}

// NewConsole crea un sink que escribe a stdout.
func NewConsole(log *slog.Logger, titles TitleResolver) *Console {
	return &Console{log: log, out: os.Stdout, titles: titles}
}

// NewConsoleWriter crea un sink para tests.
func NewConsoleWriter(log *slog.Logger, w io.Writer, titles TitleResolver) *Console {
	return &Console{log: log, out: w, titles: titles}
}

// SubscribeFailures registra el handler de fallos de copia en el bus.
func (c *Console) SubscribeFailures(bus *events.Bus) {
	bus.Subscribe(events.KindCopyTradeFailed, func(e events.Event) {
		failed, ok := e.(events.CopyTradeFailed)
		if !ok {
			return
		}
		c.printFailure(failed)
	})
}

// Confirmed imprime una tabla con el fill reconciliado y, si la posición quedó
// cerrada, su PnL realizado.
func (c *Console) Confirmed(ctx context.Context, p *domain.BotPosition, fill domain.ClobTrade, isOpen bool) {
	action := "CLOSE"
	if isOpen {
		action = "OPEN"
	}

	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %s confirmed — %s\n", now, action, c.marketLabel(ctx, p.Asset))

	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Shares", "Entry$", "Fees$", "Price", "Size", "Status")
	table.Append(
		domain.MaskAddress(p.TrackedWallet),
		p.SharesHeld.StringFixed(2),
		p.EntryCost.StringFixed(2),
		p.Fees.StringFixed(4),
		fill.Price,
		fill.Size,
		string(p.Status),
	)
	table.Render()

	if p.Status == domain.StatusClosed {
		c.printPnL(p)
	}
}

// printPnL imprime el resultado realizado de una posición cerrada.
func (c *Console) printPnL(p *domain.BotPosition) {
	pnl := domain.ComputePnL(p)
	if pnl.Realized == nil || pnl.Net == nil {
		return
	}

	icon := "+"
	if pnl.Net.IsNegative() {
		icon = "-"
	}
	fmt.Fprintf(c.out, "  [%s] realized $%s  fees $%s  net $%s\n",
		icon,
		pnl.Realized.StringFixed(4),
		pnl.Fees.StringFixed(4),
		pnl.Net.StringFixed(4),
	)
}

// printFailure imprime una línea compacta por cada copia fallida.
func (c *Console) printFailure(f events.CopyTradeFailed) {
	now := time.Now().Format("15:04:05")
	action := "CLOSE"
	if f.IsOpen {
		action = "OPEN"
	}

	line := fmt.Sprintf("[%s] !! %s failed (%s) — %s wallet %s",
		now, action, f.Reason, truncateAsset(f.Asset), domain.MaskAddress(f.TrackedWallet))
	if f.ErrorMessage != "" {
		line += " | " + f.ErrorMessage
	}
	if f.CloseAttempts > 0 {
		line += fmt.Sprintf(" | attempts: %d", f.CloseAttempts)
	}
	fmt.Fprintln(c.out, line)
}

// marketLabel resuelve el título del mercado, degradando al token id.
func (c *Console) marketLabel(ctx context.Context, asset string) string {
	if c.titles != nil {
		title, err := c.titles.MarketTitle(ctx, asset)
		if err != nil {
			c.log.Debug("market title lookup failed", "asset", asset, "err", err)
		} else if title != "" {
			return title
		}
	}
	return truncateAsset(asset)
}

func truncateAsset(asset string) string {
	if len(asset) > 14 {
		return asset[:12] + "..."
	}
	return asset
}
