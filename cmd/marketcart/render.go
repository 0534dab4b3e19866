package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/marketcart/internal/checkout"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

// Форматы вывода.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type renderer struct {
	out     io.Writer
	format  string
	unit    currency.Unit
	printer *message.Printer
}

func newRenderer(out io.Writer, format string, unit currency.Unit) (*renderer, error) {
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format %q (use text|json|yaml)", format)
	}
	return &renderer{
		out:     out,
		format:  format,
		unit:    unit,
		printer: message.NewPrinter(language.English),
	}, nil
}

func (r *renderer) money(amount int64) string {
	return r.printer.Sprint(currency.Symbol(r.unit.Amount(amount)))
}

// structured пишет v в json/yaml и сообщает, был ли вывод.
func (r *renderer) structured(v any) (bool, error) {
	switch r.format {
	case formatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func (r *renderer) summary(s checkout.Summary) error {
	if done, err := r.structured(s); done {
		return err
	}
	if s.Items.IsEmpty() {
		_, err := fmt.Fprintf(r.out, "Your cart is empty. (%s)\n", s.Mode)
		return err
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tQTY\tPRICE\tLINE TOTAL")
	for _, item := range s.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", item.ID, item.Title, item.Quantity, r.money(item.Price), r.money(item.LineTotal()))
	}
	fmt.Fprintf(tw, "\t\t%d\tsubtotal\t%s\n", s.Count, r.money(s.Total.Subtotal))
	fmt.Fprintf(tw, "\t\t\tshipping\t%s\n", r.money(s.Total.Shipping))
	fmt.Fprintf(tw, "\t\t\ttotal\t%s\n", r.money(s.Total.Total))
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(r.out, "mode: %s\n", s.Mode)
	return err
}

func (r *renderer) receipt(rc checkout.Receipt) error {
	if done, err := r.structured(rc); done {
		return err
	}
	if _, err := fmt.Fprintln(r.out, rc.Message); err != nil {
		return err
	}
	if !rc.Success {
		return nil
	}
	if rc.Order != nil {
		_, err := fmt.Fprintf(r.out, "order %s: %d items, total %s (%s)\n",
			rc.OrderID, domain.Cart(rc.Order.Items).Count(), r.money(rc.Order.Total), rc.Mode)
		return err
	}
	_, err := fmt.Fprintf(r.out, "order %s (%s)\n", rc.OrderID, rc.Mode)
	return err
}

func (r *renderer) purchases(history domain.PurchaseHistory, mode domain.Mode) error {
	if done, err := r.structured(struct {
		Items domain.PurchaseHistory `json:"items" yaml:"items"`
		Mode  domain.Mode            `json:"mode" yaml:"mode"`
	}{history, mode}); done {
		return err
	}
	if len(history) == 0 {
		_, err := fmt.Fprintf(r.out, "No purchases yet. (%s)\n", mode)
		return err
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tDATE\tITEMS\tTOTAL")
	for _, order := range history {
		date := "-"
		if !order.Date.IsZero() {
			date = order.Date.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", order.ID, date, domain.Cart(order.Items).Count(), r.money(order.Total))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(r.out, "mode: %s\n", mode)
	return err
}

func (r *renderer) user(u domain.User, authenticated bool) error {
	if done, err := r.structured(struct {
		Authenticated bool        `json:"authenticated" yaml:"authenticated"`
		User          domain.User `json:"user" yaml:"user"`
	}{authenticated, u}); done {
		return err
	}
	name := u.Username
	if name == "" {
		name = u.Email
	}
	if !authenticated {
		_, err := fmt.Fprintf(r.out, "Registered %s. Please log in.\n", name)
		return err
	}
	_, err := fmt.Fprintf(r.out, "Signed in as %s.\n", name)
	return err
}

func (r *renderer) line(msg string) error {
	if done, err := r.structured(map[string]string{"message": msg}); done {
		return err
	}
	_, err := fmt.Fprintln(r.out, msg)
	return err
}
