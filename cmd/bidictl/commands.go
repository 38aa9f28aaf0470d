package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"webdriver-bidi/internal/domain"
	"webdriver-bidi/internal/infra/config"
	"webdriver-bidi/pkg/bidisdk"
)

func connect(ctx context.Context, r *runtime, extra ...bidisdk.Option) (*bidisdk.Client, error) {
	opts := []bidisdk.Option{
		bidisdk.WithConfig(r.cfg),
		bidisdk.WithLogger(r.log),
	}
	if r.metrics != nil {
		opts = append(opts, bidisdk.WithMetrics(r.metrics))
	}
	return bidisdk.Connect(ctx, append(opts, extra...)...)
}

// runSend issues one raw command and prints the result.
func runSend(args []string) error {
	r, rest, err := setup(args)
	if err != nil {
		return err
	}
	defer r.Close()

	cmd, err := rawCommand(rest)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := connect(ctx, r)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Session().Send(ctx, cmd)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, result)
}

// rawCommand builds a command from "METHOD [PARAMS]".
func rawCommand(args []string) (domain.RawCommand, error) {
	if len(args) == 0 || len(args) > 2 {
		return domain.RawCommand{}, errors.New("usage: bidictl send METHOD [PARAMS]")
	}
	params := json.RawMessage(`{}`)
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return domain.RawCommand{}, fmt.Errorf("params are not valid JSON: %s", args[1])
		}
		params = json.RawMessage(args[1])
	}
	return domain.RawCommand{Name: args[0], Params: params}, nil
}

// runListen prints events until interrupted or the connection ends.
func runListen(args []string) error {
	r, events, err := setup(args)
	if err != nil {
		return err
	}
	defer r.Close()
	if len(events) == 0 {
		return errors.New("usage: bidictl listen EVENT... [--context ID]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := connect(ctx, r)
	if err != nil {
		return err
	}
	defer c.Close()

	enc := json.NewEncoder(os.Stdout)
	id, err := c.Subscribe(ctx, events, func(_ context.Context, ev *bidisdk.Event) {
		if err := enc.Encode(ev); err != nil {
			r.log.Warn("write event", "error", err)
		}
	}, r.flags.Contexts...)
	if err != nil {
		return err
	}
	r.log.Info("listening", "subscription", id, "events", events)

	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		return domain.ErrConnectionClosed
	}
}

// runStatus asks whether the remote end can accept a new session.
func runStatus(args []string) error {
	r, _, err := setup(args)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := connect(ctx, r, bidisdk.WithoutHandshake())
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := c.Session().Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("ready: %t\nmessage: %s\n", status.Ready, status.Message)
	return nil
}

// runEncrypt seals a header value with BIDI_CONFIG_KEY.
func runEncrypt(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: bidictl encrypt VALUE")
	}
	key := os.Getenv("BIDI_CONFIG_KEY")
	if key == "" {
		return errors.New("BIDI_CONFIG_KEY is not set")
	}
	sealed, err := config.Seal(args[0], key)
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := fmt.Fprintln(w, string(raw))
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
