package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/andy6609/linechat/internal/client"
	"github.com/andy6609/linechat/internal/wire"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

const usage = `usage: client -server-url <host>:<port> [flags] <connect|send_all|send_private|status>`

func main() {
	server := flag.String("server-url", "", "chat server address in format <host>:<port>")
	from := flag.String("from_username", "", "your name")
	to := flag.String("to_username", "", "target user name")
	message := flag.String("message", "", "message text")
	logLevel := flag.String("log-level", "WARN", "log level")
	flag.Parse()

	if *server == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logger := logs.GetLoggerFromString(*logLevel)
	cl := client.New(*server, 5*time.Second, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		resp *wire.Response
		err  error
	)
	switch cmd := flag.Arg(0); cmd {
	case "connect":
		err = chatLoop(ctx, cl)
	case "send_all":
		if *from == "" || *message == "" {
			err = errors.New("send_all requires -from_username and -message")
			break
		}
		resp, err = cl.SendAll(ctx, *from, *message)
	case "send_private":
		if *from == "" || *to == "" || *message == "" {
			err = errors.New("send_private requires -from_username, -to_username and -message")
			break
		}
		resp, err = cl.SendPrivate(ctx, *from, *to, *message)
	case "status":
		resp, err = cl.Status(ctx)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if resp != nil {
		fmt.Println(resp.Status, resp.Body)
	}
}

func chatLoop(ctx context.Context, cl *client.Client) error {
	color.Yellow.Println("Welcome to the messenger!")
	color.Yellow.Println("If you want to quit, enter 'quit'")
	color.Yellow.Println("Enter your username:")

	stdin := bufio.NewScanner(os.Stdin)
	if !stdin.Scan() {
		return stdin.Err()
	}
	username := strings.TrimSpace(stdin.Text())

	sess, err := cl.Connect(ctx, username)
	if err != nil {
		return err
	}
	defer sess.Close()

	received := make(chan error, 1)
	go func() {
		for {
			m, err := sess.Receive()
			if err != nil {
				received <- err
				return
			}
			fmt.Println(client.Render(m))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for stdin.Scan() {
			lines <- stdin.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = sess.Quit()
			return nil
		case err := <-received:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				_ = sess.Quit()
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "quit":
				if err := sess.Quit(); err != nil {
					return err
				}
				continue
			}
			if err := sess.Say(line); err != nil {
				return err
			}
		}
	}
}
