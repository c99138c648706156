package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livedash/host/internal/client"
	"github.com/livedash/host/internal/config"
	"github.com/livedash/host/internal/protocol"
)

// producerFlags are shared by the commands that connect as a producer.
type producerFlags struct {
	Config string
	Socket string
	Secret string
	Name   string
}

func (p *producerFlags) register(fs *flag.FlagSet, name string) {
	fs.StringVar(&p.Config, "config", "", "Path to config file (default: ~/.livedash/config.toml)")
	fs.StringVar(&p.Socket, "socket", "", "Service socket path (default: socket_path from config)")
	fs.StringVar(&p.Secret, "secret", "", "Shared secret (default: secret from config)")
	fs.StringVar(&p.Name, "name", name, "Producer name shown in service logs")
}

// clientConfig resolves the socket and secret from flags and config.
func (p *producerFlags) clientConfig() (client.Config, error) {
	cfg, err := config.Load(p.Config)
	if err != nil {
		return client.Config{}, err
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return client.Config{}, err
	}

	cc := client.Config{Path: cfg.SocketPath, Secret: cfg.Secret, Name: p.Name}
	if p.Socket != "" {
		cc.Path = p.Socket
	}
	if p.Secret != "" {
		cc.Secret = p.Secret
	}
	if cc.Secret == "" {
		return client.Config{}, errors.New("config has only secret_hash; pass --secret")
	}
	return cc, nil
}

func runDemo(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var pf producerFlags
	pf.register(fs, "livedash-demo")
	steps := fs.Int("steps", 200, "Number of updates to send, 0 to run until interrupted")
	intervalMs := fs.Int("interval-ms", 50, "Delay between updates in ms")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: livedash demo [options]\n\nStream example plots to a running service.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cc, err := pf.clientConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.DialConfig(ctx, cc)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer c.Close()
	fmt.Fprintf(stdout, "Connected as client %d\n", c.ID())

	if err := streamDemo(ctx, c, *steps, time.Duration(*intervalMs)*time.Millisecond); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// streamDemo sends a two-line paired plot and an indexed plot, one step
// per interval.
func streamDemo(ctx context.Context, c *client.Client, steps int, interval time.Duration) error {
	setup := []func() error{
		func() error {
			return c.CreatePlot("waves", map[string]any{"title": "Waves", "xlabel": "t", "ylim": []float64{-1.2, 1.2}})
		},
		func() error { return c.CreateLine("waves", "sin", map[string]any{"color": "b", "label": "sin"}) },
		func() error { return c.CreateLine("waves", "cos", map[string]any{"color": "r", "label": "cos"}) },
		func() error { return c.RemoveLine("waves", protocol.DefaultLineID) },
		func() error { return c.CreatePlot("loss", map[string]any{"title": "Loss", "ylabel": "loss"}) },
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return err
		}
	}

	var ts, sins, coss []float64
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; steps == 0 || i < steps; i++ {
		t := float64(i) / 10
		ts = append(ts, t)
		sins = append(sins, math.Sin(t))
		coss = append(coss, math.Cos(t))

		if err := c.UpdateLine("waves", "sin", protocol.Series(ts, sins), protocol.ModeReplace); err != nil {
			return err
		}
		if err := c.UpdateLine("waves", "cos", protocol.Series(ts, coss), protocol.ModeReplace); err != nil {
			return err
		}
		if err := c.UpdatePlot("loss", protocol.Scalar(math.Exp(-t/5)+0.05*math.Sin(3*t)), protocol.ModeAppend); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func runSend(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var pf producerFlags
	pf.register(fs, "livedash-send")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: livedash send [options] < messages.jsonl\n\nSend one JSON message per stdin line, e.g.\n  {\"action\":\"update\",\"plot_id\":\"p1\",\"data\":[1,2,3]}\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cc, err := pf.clientConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	c, err := client.DialConfig(context.Background(), cc)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer c.Close()

	sent, err := sendLines(c, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Sent %d messages as client %d\n", sent, c.ID())
	return 0
}

// sendLines forwards every non-blank line of r as one message. It stops
// at the first line that is not a JSON object.
func sendLines(c *client.Client, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), protocol.MaxFrameSize)

	sent := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg protocol.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return sent, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := c.Send(msg); err != nil {
			return sent, fmt.Errorf("line %d: %w", lineNo, err)
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("read stdin: %w", err)
	}
	return sent, nil
}
