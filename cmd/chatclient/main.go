// chatclient is a terminal client for a chatsync server
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"chatsync/internal/chatclient"
	"chatsync/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: os.Getenv("LOG_LEVEL"), Pretty: true})

	baseURL := os.Getenv("CHATSYNC_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	api, err := chatclient.NewAPI(baseURL)
	exitOnError(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := os.Args[1]
	switch cmd {
	case "signup":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatclient signup <full name>")
			os.Exit(1)
		}
		user, err := api.Signup(ctx, strings.Join(os.Args[2:], " "), os.Getenv("CHATSYNC_EMAIL"), os.Getenv("CHATSYNC_PASSWORD"))
		exitOnError(err)
		fmt.Printf("Signed up as %s (%s)\n", user.FullName, user.ID)

	case "whoami":
		login(ctx, api)
		user, err := api.Check(ctx)
		exitOnError(err)
		printJSON(user)

	case "users":
		login(ctx, api)
		peers, err := api.Users(ctx)
		exitOnError(err)
		online, _ := api.Online(ctx)
		for _, p := range peers {
			last := "-"
			if !p.LastMessageAt.IsZero() {
				last = p.LastMessageAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("  %s  %-20s %s%s\n", p.ID, p.FullName, last, onlineMark(online, p.ID))
		}

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatclient read <peer id>")
			os.Exit(1)
		}
		self := login(ctx, api)
		msgs, err := api.Conversation(ctx, os.Args[2])
		exitOnError(err)
		for _, m := range msgs {
			printMessage(self, chatclient.ChatMessage{Message: m})
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chatclient send <peer id> <message>")
			os.Exit(1)
		}
		login(ctx, api)
		msg, err := api.Send(ctx, os.Args[2], chatclient.SendRequest{Text: strings.Join(os.Args[3:], " ")})
		exitOnError(err)
		fmt.Printf("Sent: %s\n", msg.ID)

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chatclient chat <peer id>")
			os.Exit(1)
		}
		self := login(ctx, api)
		exitOnError(chat(ctx, api, self, os.Args[2]))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// chat opens an interactive conversation. Lines are sent as messages;
// "/edit <id> <text>" and "/delete <id>" act on the user's messages.
func chat(ctx context.Context, api *chatclient.API, self, peerID string) error {
	socket := api.NewSocket()
	session := chatclient.NewSession(self, api, socket)
	session.SetNotifier(func(op string, err error) {
		fmt.Fprintf(os.Stderr, "! %s failed: %v\n", op, err)
	})

	var mu sync.Mutex
	printed := make(map[string]bool)
	session.OnChange(func(st chatclient.State) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range st.Messages {
			if !printed[m.ID] {
				printed[m.ID] = true
				printMessage(self, m)
			}
		}
		for peer, n := range st.UnreadCounts {
			if n > 0 && peer != st.SelectedPeer {
				fmt.Printf("  (%d unread from %s)\n", n, peer)
			}
		}
	})

	session.Subscribe()
	defer session.Unsubscribe()
	if err := socket.Connect(ctx); err != nil {
		return err
	}
	defer socket.Close()

	if err := session.LoadPeers(ctx); err != nil {
		return err
	}
	if err := session.SelectPeer(ctx, peerID); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-socket.Done():
			return fmt.Errorf("connection closed")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleLine(ctx, session, line)
		}
	}
}

func handleLine(ctx context.Context, session *chatclient.Session, line string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return
	case strings.HasPrefix(line, "/edit "):
		parts := strings.SplitN(strings.TrimPrefix(line, "/edit "), " ", 2)
		if len(parts) == 2 {
			session.Edit(ctx, parts[0], parts[1])
		}
	case strings.HasPrefix(line, "/delete "):
		session.Delete(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/delete ")))
	default:
		session.Send(ctx, chatclient.SendRequest{Text: line})
	}
}

func login(ctx context.Context, api *chatclient.API) string {
	user, err := api.Login(ctx, os.Getenv("CHATSYNC_EMAIL"), os.Getenv("CHATSYNC_PASSWORD"))
	exitOnError(err)
	return user.ID
}

func printMessage(self string, m chatclient.ChatMessage) {
	from := "them"
	if m.SenderID == self {
		from = "me"
	}
	body := m.Text
	if m.Image != "" {
		body = strings.TrimSpace(body + " [image " + m.Image + "]")
	}
	suffix := ""
	if m.IsEdited {
		suffix = " (edited)"
	}
	fmt.Printf("[%s] %s %s: %s%s\n", m.CreatedAt.Local().Format(time.Kitchen), m.ID, from, body, suffix)
}

func onlineMark(online []string, id string) string {
	for _, o := range online {
		if o == id {
			return "  online"
		}
	}
	return ""
}

func usage() {
	fmt.Println(`chatsync client

Usage: chatclient <command> [options]

Commands:
  signup <full name>        Create an account
  whoami                    Show the logged in user
  users                     List contacts, most recent first
  read <peer id>            Print the conversation with a peer
  send <peer id> <message>  Send a message
  chat <peer id>            Interactive conversation with live updates

Environment:
  CHATSYNC_URL       Server URL (default: http://localhost:8080)
  CHATSYNC_EMAIL     Account email
  CHATSYNC_PASSWORD  Account password`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
