// Command rentme-chat is a terminal client for the realtime gateway.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"rentme-realtime/internal/config"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
	"rentme-realtime/internal/infra/obs"
	"rentme-realtime/internal/realtime/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rentme-chat:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile      string
		baseURL      string
		wsURL        string
		token        string
		conversation string
		logLevel     string
	)
	flagSet := pflag.NewFlagSet("rentme-chat", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading RENTME_* variables")
	flagSet.StringVar(&baseURL, "base-url", "", "gateway base URL (overrides RENTME_BASE_URL)")
	flagSet.StringVar(&wsURL, "ws-url", "", "websocket URL (default: derived from --base-url)")
	flagSet.StringVarP(&token, "token", "t", "", "bearer token (overrides RENTME_TOKEN)")
	flagSet.StringVarP(&conversation, "conversation", "c", "", "conversation to open on start")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level for stderr diagnostics")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if flagSet.Changed("base-url") {
		cfg.BaseURL = baseURL
		cfg.WSURL = ""
	}
	if flagSet.Changed("ws-url") {
		cfg.WSURL = wsURL
	}
	if flagSet.Changed("token") {
		cfg.Token = token
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return errors.New("a token is required (--token or RENTME_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLoggerTo(os.Stderr, cfg.Env, logLevel)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api := client.NewHTTPAPI(cfg.BaseURL, cfg.Token, httpClient)
	api.Logger = logger
	me, err := api.Me(ctx)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	out := &printer{w: os.Stdout, seen: make(map[string]bool)}
	session := client.NewSession(me.UserID, client.NewWSTransport(cfg.WSURL, httpClient), api, client.Options{
		Config: cfg,
		Logger: logger,
		Alerter: client.AlerterFunc(func(n notification.Notification) error {
			out.printf("! %s: %s\n", n.Title, n.Message)
			return nil
		}),
	})
	defer session.Close()

	if err := session.Connect(ctx, cfg.Token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	out.printf("signed in as %s\n", me.UserID)
	if err := session.LoadDirectory(ctx); err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	if err := session.LoadNotifications(ctx); err != nil {
		logger.Warn("load notifications failed", "error", err)
	}
	printConversations(out, session)

	c := &cli{session: session, out: out}
	go c.watch(ctx)
	if conversation != "" {
		if err := c.open(ctx, conversation); err != nil {
			return err
		}
	}
	return c.repl(ctx, os.Stdin)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `rentme-chat: chat from the terminal.

Usage:
  rentme-chat [flags]

Commands once connected:
  /list            list conversations
  /open <id>       open a conversation
  /read            mark the latest peer message read
  /notifications   show notifications
  /read-all        mark every notification read
  /retry <id>      resend a failed message
  /quit            exit
  anything else    is sent to the open conversation

Flags:
`)
	flagSet.PrintDefaults()
}

type printer struct {
	mu   sync.Mutex
	w    io.Writer
	seen map[string]bool
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// message prints m once per status, so a pending placeholder and its
// confirmation both show.
func (p *printer) message(self string, m chat.Message) {
	key := m.ID + "|" + string(m.Status)
	p.mu.Lock()
	if p.seen[key] {
		p.mu.Unlock()
		return
	}
	p.seen[key] = true
	p.mu.Unlock()

	who := m.SenderID
	if who == self {
		who = "you"
	}
	mark := ""
	switch {
	case m.Status == chat.StatusPending:
		mark = " (sending)"
	case m.Status == chat.StatusFailed:
		mark = " (failed, /retry " + m.ID + ")"
	case m.IsRead && m.SenderID == self:
		mark = " (read)"
	}
	body := m.Content
	if m.Type == chat.MessageImage {
		body = "[image] " + body
	}
	p.printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), who, body, mark)
}

func printConversations(out *printer, s *client.Session) {
	convs := s.Conversations()
	if len(convs) == 0 {
		out.printf("no conversations yet\n")
		return
	}
	for _, conv := range convs {
		last := ""
		if conv.LastMessage != nil {
			last = conv.LastMessage.Content
		}
		out.printf("%s  with %s  unread %d  %s\n", conv.ID, conv.Peer(s.UserID()), conv.UnreadCount, last)
	}
}

type cli struct {
	session *client.Session
	out     *printer

	mu     sync.Mutex
	active string
}

func (c *cli) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *cli) openConversation(ctx context.Context, id string) error {
	if prev := c.current(); prev != "" && prev != id {
		_ = c.session.CloseConversation(prev)
	}
	if err := c.session.OpenConversation(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = id
	c.mu.Unlock()
	c.out.printf("-- %s --\n", id)
	return nil
}

func (c *cli) open(ctx context.Context, id string) error {
	if err := c.openConversation(ctx, id); err != nil {
		return fmt.Errorf("open %s: %w", id, err)
	}
	return nil
}

// watch renders session updates until ctx ends.
func (c *cli) watch(ctx context.Context) {
	self := c.session.UserID()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-c.session.Updates():
			if !ok {
				return
			}
			switch u.Kind {
			case client.UpdateConnection:
				c.out.printf("* %s\n", u.State)
			case client.UpdateMessages:
				if u.ConversationID != c.current() {
					continue
				}
				for _, m := range c.session.Messages(u.ConversationID) {
					c.out.message(self, m)
				}
			case client.UpdateTyping:
				if u.ConversationID == c.current() {
					if typists := c.session.Typists(u.ConversationID); len(typists) > 0 {
						c.out.printf("* %s typing...\n", strings.Join(typists, ", "))
					}
				}
			case client.UpdatePresence:
				c.out.printf("* %s is %s\n", u.UserID, c.session.Presence(u.UserID))
			case client.UpdateSendFailed:
				c.out.printf("* message %s failed to send\n", u.MessageID)
			case client.UpdateServerError:
				c.out.printf("* server error: %v\n", u.Err)
			case client.UpdateDirectory:
				if u.Err != nil {
					c.out.printf("* conversation list unavailable: %v\n", u.Err)
				}
			}
		}
	}
}

func (c *cli) repl(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (c *cli) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
	case "/quit", "/exit":
		return true
	case "/list":
		printConversations(c.out, c.session)
	case "/open":
		if arg == "" {
			c.out.printf("usage: /open <conversation id>\n")
			break
		}
		if err := c.open(ctx, arg); err != nil {
			c.out.printf("* %v\n", err)
		}
	case "/read":
		c.markLatestRead(ctx)
	case "/notifications":
		list, unread := c.session.Notifications()
		c.out.printf("%d unread\n", unread)
		for _, n := range list {
			flag := " "
			if !n.IsRead {
				flag = "*"
			}
			c.out.printf("%s %s  %s: %s\n", flag, n.CreatedAt.Local().Format("Jan 02 15:04"), n.Title, n.Message)
		}
	case "/read-all":
		if err := c.session.MarkAllNotificationsRead(ctx); err != nil {
			c.out.printf("* %v\n", err)
		}
	case "/retry":
		if err := c.session.Retry(c.current(), arg); err != nil {
			c.out.printf("* %v\n", err)
		}
	default:
		conv := c.current()
		if conv == "" {
			c.out.printf("open a conversation first (/open <id>)\n")
			break
		}
		if _, err := c.session.Send(ctx, conv, line, chat.MessageText); err != nil {
			c.out.printf("* %v\n", err)
		}
		_ = c.session.NotifyStopped(conv)
	}
	return false
}

func (c *cli) markLatestRead(ctx context.Context) {
	conv := c.current()
	if conv == "" {
		return
	}
	msgs := c.session.Messages(conv)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.SenderID != c.session.UserID() && !m.IsLocal() {
			if err := c.session.MarkRead(ctx, m.ID, conv); err != nil {
				c.out.printf("* %v\n", err)
			}
			return
		}
	}
}
