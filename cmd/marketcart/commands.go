package main

import (
	"context"
	"errors"
	"flag"
	"io"

	"github.com/vladislavdragonenkov/marketcart/internal/app"
	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

type cli struct {
	deps *app.Dependencies
	out  *renderer
}

func (c *cli) execute(ctx context.Context, name string, args []string) error {
	switch name {
	case "cart":
		return c.cart(ctx)
	case "add":
		return c.add(ctx, args)
	case "qty":
		return c.qty(ctx, args)
	case "remove":
		return c.remove(ctx, args)
	case "clear":
		if _, err := c.deps.Carts.ClearCart(ctx); err != nil {
			return err
		}
		return c.cart(ctx)
	case "checkout":
		return c.checkout(ctx)
	case "purchases":
		history, mode, err := c.deps.Checkout.History(ctx)
		if err != nil {
			return err
		}
		return c.out.purchases(history, mode)
	case "login":
		return c.login(ctx, args)
	case "register":
		return c.register(ctx, args)
	case "logout":
		if err := c.deps.Session.Teardown(ctx); err != nil {
			return err
		}
		return c.out.line("Signed out.")
	default:
		return errUsage
	}
}

func (c *cli) cart(ctx context.Context) error {
	return c.out.summary(c.deps.Checkout.Summary(ctx))
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	title := fs.String("title", "", "product title")
	category := fs.String("category", "", "product category")
	price := fs.Int64("price", 0, "unit price")
	if err := fs.Parse(args); err != nil || fs.NArg() < 1 || fs.NArg() > 2 {
		return errUsage
	}

	id, err := domain.ParseProductID(fs.Arg(0))
	if err != nil {
		return err
	}
	qty := domain.MinQuantity
	if fs.NArg() == 2 {
		qty = domain.ParseQuantity(fs.Arg(1))
	}

	product := domain.Product{ID: id, Title: *title, Category: *category, Price: *price}
	if _, err := c.deps.Carts.AddItem(ctx, product, qty); err != nil {
		return err
	}
	return c.cart(ctx)
}

func (c *cli) qty(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := domain.ParseProductID(args[0])
	if err != nil {
		return err
	}
	if _, err := c.deps.Carts.UpdateQuantity(ctx, id, domain.ParseQuantity(args[1])); err != nil {
		return err
	}
	return c.cart(ctx)
}

func (c *cli) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := domain.ParseProductID(args[0])
	if err != nil {
		return err
	}
	if _, err := c.deps.Carts.RemoveItem(ctx, id); err != nil {
		return err
	}
	return c.cart(ctx)
}

func (c *cli) checkout(ctx context.Context) error {
	receipt, err := c.deps.Checkout.Checkout(ctx)
	if err != nil && !errors.Is(err, domain.ErrCartEmpty) {
		return err
	}
	return c.out.receipt(receipt)
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}
	user, err := c.deps.Session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return c.out.user(user, true)
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	username := fs.String("username", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}
	user, loggedIn, err := c.deps.Session.Register(ctx, *username, *email, *password)
	if err != nil {
		return err
	}
	return c.out.user(user, loggedIn)
}
