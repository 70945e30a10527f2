package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/leoalsantos/custosmart-chat/internal/api"
	"github.com/leoalsantos/custosmart-chat/internal/auth"
	"github.com/leoalsantos/custosmart-chat/internal/chat"
	"github.com/leoalsantos/custosmart-chat/internal/notify"
	"github.com/leoalsantos/custosmart-chat/internal/state"
	"github.com/leoalsantos/custosmart-chat/internal/stats"
	"github.com/leoalsantos/custosmart-chat/internal/transport"
	"github.com/leoalsantos/custosmart-chat/internal/types"
)

var (
	serverURL string
	username  string
	roomId    int
)

func main() {
	flag.StringVar(&serverURL, "server", "http://localhost:8000", "chat server base URL")
	flag.StringVar(&username, "username", "", "username to log in as")
	flag.IntVar(&roomId, "room", 0, "room to join on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[chat] ", log.LstdFlags)

	if username == "" {
		logger.Fatal("-username is required")
	}

	token, identity, err := login(serverURL, username)
	if err != nil {
		logger.Fatal("login: ", err)
	}

	notifier := &consoleNotifier{}
	statsUpdater := stats.NewStatsUpdater(nil, "chat")
	statsUpdater.Run()
	defer statsUpdater.Stop()

	conn := transport.NewConn(logger, transport.WebsocketDialer(serverURL, token, identity),
		identity, notifier, statsUpdater)

	svc := api.NewClient(logger, serverURL, token)
	store := state.NewStore()

	reader := bufio.NewReader(os.Stdin)
	confirm := chat.ConfirmFunc(func(prompt string) bool {
		fmt.Printf("%s [y/N]: ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(line), "y")
	})

	session := chat.NewSession(logger, conn, svc, store, identity, notifier, confirm)
	go session.Run()
	defer session.Stop()

	if err := conn.Connect(); err != nil {
		logger.Fatal("connect: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := session.Bootstrap(ctx, roomId); err != nil {
		cancel()
		logger.Fatal("bootstrap: ", err)
	}
	cancel()

	go printIncoming(store, identity)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println()
		session.Stop()
		conn.Disconnect()
		os.Exit(0)
	}()

	fmt.Printf("logged in as %s. type /help for commands.\n", identity.Username)
	repl(reader, session, store)

	conn.Disconnect()
}

func login(serverURL, username string) (string, auth.Identity, error) {
	body, _ := json.Marshal(map[string]string{"username": username})
	resp, err := http.Post(serverURL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", auth.Identity{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", auth.Identity{}, fmt.Errorf("login failed: %s", resp.Status)
	}

	var lr struct {
		Token string         `json:"token"`
		User  types.ChatUser `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", auth.Identity{}, err
	}

	return lr.Token, auth.Identity{UserId: lr.User.Id, Username: lr.User.Username}, nil
}

// consoleNotifier renders notifications inline instead of logging them.
type consoleNotifier struct{}

func (c *consoleNotifier) Notify(n notify.Notification) {
	fmt.Printf("* %s: %s\n", n.Title, n.Detail)
}

// printCursor tracks how far into the active room's message list has
// been rendered. Position is by index, not message id: optimistic ids
// are timestamps and are replaced in place by much smaller server ids,
// so ids do not order the list.
type printCursor struct {
	roomId  int
	printed int
}

// unseen returns the messages appended since the last call. A room
// switch or a history replacement that shrank the list resets the
// position.
func (pc *printCursor) unseen(roomId int, msgs []types.ChatMessage) []types.ChatMessage {
	if roomId != pc.roomId {
		pc.roomId = roomId
		pc.printed = 0
	}
	if pc.printed > len(msgs) {
		pc.printed = 0
	}

	out := msgs[pc.printed:]
	pc.printed = len(msgs)
	return out
}

// printIncoming polls the store and prints messages as they land. The
// store has no change feed, so a short poll keeps the terminal live.
func printIncoming(store *state.Store, identity auth.Identity) {
	var cur printCursor
	for range time.Tick(300 * time.Millisecond) {
		room, ok := store.ActiveRoom()
		if !ok {
			cur = printCursor{}
			continue
		}

		for _, msg := range cur.unseen(room.Id, store.Messages()) {
			if msg.UserId == identity.UserId {
				continue
			}

			sender := strconv.Itoa(msg.UserId)
			if msg.Sender != nil {
				sender = msg.Sender.Username
			}
			fmt.Printf("<%s> %s\n", sender, msg.Content)
		}
	}
}

func repl(reader *bufio.Reader, session *chat.Session, store *state.Store) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if err := session.SendMessage(line, types.MessageTypeText); err != nil {
				fmt.Println("send:", err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/help":
			fmt.Println("/rooms, /join <id>, /leave, /create <name>, /delete <id>, /upload <path>, /who, /typing, /quit")
		case "/rooms":
			for _, room := range store.Rooms() {
				marker := " "
				if active, ok := store.ActiveRoom(); ok && active.Id == room.Id {
					marker = "*"
				}
				fmt.Printf("%s %d: %s (%s, %d unread)\n", marker, room.Id, room.Name, room.Type, room.UnreadCount)
			}
		case "/join":
			id, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("usage: /join <room id>")
				continue
			}
			if err := session.JoinRoom(id); err != nil {
				fmt.Println("join:", err)
			}
		case "/leave":
			if room, ok := store.ActiveRoom(); ok {
				if err := session.LeaveRoom(room.Id); err != nil {
					fmt.Println("leave:", err)
				}
			}
		case "/create":
			if arg == "" {
				fmt.Println("usage: /create <name>")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := session.CreateRoom(ctx, arg, nil)
			cancel()
			if err != nil {
				fmt.Println("create:", err)
			}
		case "/delete":
			id, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("usage: /delete <room id>")
				continue
			}
			if err := session.DeleteRoom(id); err != nil {
				fmt.Println("delete:", err)
			}
		case "/upload":
			if err := uploadFile(session, arg); err != nil {
				fmt.Println("upload:", err)
			}
		case "/who":
			fmt.Println("online:", store.OnlineUsers())
		case "/typing":
			fmt.Println("typing:", session.TypingUsers())
		case "/quit":
			return
		default:
			fmt.Println("unknown command, try /help")
		}
	}
}

func uploadFile(session *chat.Session, path string) error {
	if path == "" {
		return fmt.Errorf("usage: /upload <path>")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	return session.UploadFile(ctx, api.File{
		Name:   filepath.Base(info.Name()),
		Size:   info.Size(),
		Reader: f,
	})
}
