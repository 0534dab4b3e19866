// Command marketcart управляет корзиной из терминала: просмотр, изменение,
// оформление заказа, история покупок и вход. Работает с теми же
// настройками и локальным хранилищем, что и cart-gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/currency"

	"github.com/vladislavdragonenkov/marketcart/internal/app"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
	"github.com/vladislavdragonenkov/marketcart/internal/session"
)

const commandTimeout = 30 * time.Second

const usage = `usage: marketcart [-format text|json|yaml] [-currency USD] [-v] <command> [args]

commands:
  cart                                   show the cart with totals
  add [-title T] [-category C] [-price P] <id> [qty]
                                         add a product (existing id increases qty)
  qty <id> <qty>                         set quantity (minimum 1)
  remove <id>                            remove a line item
  clear                                  empty the cart
  checkout                               place the order
  purchases                              show purchase history
  login -email E -password P             sign in
  register -username U -email E -password P
                                         create an account
  logout                                 sign out
`

var errUsage = errors.New("invalid usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("marketcart", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	format := global.String("format", formatText, "output format: text|json|yaml")
	code := global.String("currency", "USD", "ISO 4217 currency for amounts")
	verbose := global.Bool("v", false, "verbose logging")
	if err := global.Parse(args); err != nil {
		return 2
	}

	_ = godotenv.Load()
	cfg, warnings := app.ConfigFromEnv(os.LookupEnv)
	setupLogger(stderr, *verbose, cfg.LogLevel)
	for _, w := range warnings {
		log.Warn(w)
	}

	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(*code)))
	if err != nil {
		fmt.Fprintf(stderr, "unknown currency %q\n", *code)
		return 2
	}
	out, err := newRenderer(stdout, strings.ToLower(*format), unit)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	deps, err := app.NewDependencies(ctx, cfg, log.WithField("component", "cli"))
	if err != nil {
		log.WithError(err).Error("failed to initialize")
		fmt.Fprintln(stderr, "The cart is unavailable. Check the storage settings.")
		return 1
	}
	defer deps.Close()

	if err := deps.Session.Init(ctx); err != nil {
		log.WithError(err).Warn("failed to restore session")
	}

	c := &cli{deps: deps, out: out}
	if err := c.execute(ctx, global.Arg(0), global.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		log.WithError(err).Debug("command failed")
		fmt.Fprintln(stderr, userMessage(err))
		return 1
	}
	return 0
}

func setupLogger(w io.Writer, verbose bool, level string) {
	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if !verbose {
		log.SetLevel(log.WarnLevel)
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil || lvl < log.DebugLevel {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)
}

// userMessage переводит ошибку в короткое сообщение без технических деталей.
func userMessage(err error) string {
	var remoteErr *domain.RemoteError
	switch {
	case errors.Is(err, domain.ErrCartEmpty):
		return "Your cart is empty."
	case errors.Is(err, domain.ErrProductIDInvalid):
		return "This product cannot be added to the cart."
	case errors.Is(err, domain.ErrCredentialsRequired):
		return "Email and password are required."
	case errors.Is(err, session.ErrAuthUnavailable):
		return "Sign-in is unavailable while the cart service is offline."
	case errors.As(err, &remoteErr) && remoteErr.Outcome == domain.OutcomeRejected:
		if remoteErr.Message != "" {
			return "Request declined: " + remoteErr.Message
		}
		return "Request declined."
	case errors.Is(err, domain.ErrUnreachable):
		return "The service is temporarily unavailable. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
