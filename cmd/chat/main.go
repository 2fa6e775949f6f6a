package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatsphere-client/internal/auth"
	"chatsphere-client/internal/config"
	"chatsphere-client/internal/models"
	"chatsphere-client/internal/rest"
	"chatsphere-client/internal/session"
	"chatsphere-client/internal/transport"
	"chatsphere-client/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.Log.Level, cfg.Log.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	creds := auth.NewCredentials(cfg.API.Token)
	api := rest.New(cfg.API.BaseURL, creds, log)

	// Without a preconfigured token, log in with username/password.
	if cfg.API.Token == "" {
		if cfg.API.Username == "" {
			log.Error("no token and no username configured")
			os.Exit(1)
		}
		token, user, err := api.Login(ctx, cfg.API.Username, cfg.API.Password)
		if err != nil {
			log.Error("login failed", "err", err)
			os.Exit(1)
		}
		creds.SetToken(token)
		log.Info("logged in", "user", user.Username)
	}

	conn := transport.New(transport.Options{
		URL:                  cfg.Socket.URL,
		Tokens:               creds,
		DialTimeout:          cfg.Socket.DialTimeout,
		PingInterval:         cfg.Socket.PingInterval,
		PongTimeout:          cfg.Socket.PongTimeout,
		MaxReconnectAttempts: cfg.Socket.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Socket.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Socket.ReconnectMaxDelay,
		Logger:               log,
	})

	client := session.New(session.Config{
		EchoWindow:      cfg.Reconcile.EchoWindow,
		TypingTTL:       cfg.Reconcile.TypingTTL,
		HistoryPageSize: cfg.Reconcile.PageSize,
		Logger:          log,
	}, conn, api)

	if err := client.Connect(ctx); err != nil {
		log.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		client.Disconnect()
		os.Exit(0)
	}()

	go renderUpdates(client)

	fmt.Println("chatsphere: /chat <private|group|room> <id>, /rooms, /join <room>, /leave <room>, /reconnect, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !runCommand(ctx, client, log, line) {
				return
			}
			continue
		}
		if _, err := client.SendMessage(line, models.MessageTypeText, ""); err != nil {
			fmt.Println("!", err)
		}
	}
}

// runCommand executes a slash command; it returns false on /quit.
func runCommand(ctx context.Context, client *session.Client, log *slog.Logger, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return false

	case "/chat":
		if len(fields) != 3 || !models.ChatType(fields[1]).IsValid() {
			fmt.Println("! usage: /chat <private|group|room> <id>")
			return true
		}
		ref := models.NewChatRef(models.ChatType(fields[1]), fields[2])
		client.SetCurrentChat(ctx, &ref)
		fmt.Println("* switched to", ref)

	case "/rooms":
		rooms, err := client.Rooms(ctx)
		if err != nil {
			fmt.Println("!", err)
			return true
		}
		for _, room := range rooms {
			fmt.Printf("* %s (%s), %d online\n", room.Name, room.ID, room.OnlineCount)
		}

	case "/join":
		if len(fields) == 2 {
			client.JoinRoom(fields[1])
		}

	case "/leave":
		if len(fields) == 2 {
			client.LeaveRoom(fields[1])
		}

	case "/reconnect":
		if err := client.Reconnect(ctx); err != nil {
			fmt.Println("!", err)
		}

	default:
		fmt.Println("! unknown command", fields[0])
	}
	return true
}

// renderUpdates prints newly visible messages and status flips as the store
// changes.
func renderUpdates(client *session.Client) {
	var (
		printed   int
		connected bool
		lastErr   string
	)
	for range client.Updates() {
		snap := client.Snapshot()

		if snap.Connected != connected {
			connected = snap.Connected
			if connected {
				fmt.Println("* connected")
			} else {
				fmt.Println("* disconnected")
			}
		}
		if snap.Err != "" && snap.Err != lastErr {
			fmt.Println("!", snap.Err)
		}
		lastErr = snap.Err

		if len(snap.Messages) < printed {
			// Chat switch reset the list.
			printed = 0
		}
		for _, msg := range snap.Messages[printed:] {
			marker := ""
			if msg.IsOptimistic() {
				marker = " (sending)"
			}
			fmt.Printf("[%s] %s: %s%s\n",
				msg.CreatedAt.Format("15:04:05"), msg.FromUserID, msg.Content, marker)
		}
		printed = len(snap.Messages)
	}
}
