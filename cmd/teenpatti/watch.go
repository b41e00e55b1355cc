package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lox/teenpatti/internal/game"
	"github.com/lox/teenpatti/internal/server"
)

// WatchCmd joins a session as a viewer and prints what the table sees.
type WatchCmd struct {
	Session string `arg:"" help:"Session name to watch"`
	Server  string `default:"http://localhost:8080" help:"Server base URL"`
	Name    string `default:"viewer" help:"Name shown to the operator"`
	Token   string `env:"TEENPATTI_TOKEN" help:"Auth token"`
}

func (c *WatchCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := server.WaitForHealthy(waitCtx, c.Server)
	cancel()
	if err != nil {
		return fmt.Errorf("server %s is not healthy: %w", c.Server, err)
	}

	wsURL, err := server.WebSocketURL(c.Server)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	if err := send(conn, server.MessageTypeAuth, server.AuthData{Token: c.Token, Name: c.Name, Role: "viewer"}); err != nil {
		return err
	}

	w := &watcher{out: os.Stdout, conn: conn, session: c.Session, name: c.Name}
	err = w.loop()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func send(conn *websocket.Conn, messageType server.MessageType, data interface{}) error {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

var errAccessDenied = errors.New("access denied by the operator")

type watcher struct {
	out     io.Writer
	conn    *websocket.Conn
	session string
	name    string
}

func (w *watcher) loop() error {
	for {
		var msg server.Message
		if err := w.conn.ReadJSON(&msg); err != nil {
			return err
		}
		done, err := w.handle(&msg)
		if err != nil || done {
			return err
		}
	}
}

// handle prints one server message. It reports true once the session is
// over.
func (w *watcher) handle(msg *server.Message) (bool, error) {
	switch msg.Type {
	case server.MessageTypeAuthResponse:
		var data server.AuthResponseData
		if err := msg.Decode(&data); err != nil {
			return false, err
		}
		if !data.Success {
			return false, fmt.Errorf("authentication failed: %s", data.Error)
		}
		return false, send(w.conn, server.MessageTypeRequestAccess, server.RequestAccessData{SessionName: w.session, Name: w.name})

	case server.MessageTypeAccessPending:
		fmt.Fprintln(w.out, dimStyle.Render("Waiting for the operator to let you in..."))

	case server.MessageTypeAccessGranted:
		fmt.Fprintln(w.out, winStyle.Render("Watching "+w.session))

	case server.MessageTypeAccessDenied:
		return false, errAccessDenied

	case server.MessageTypeState:
		var data server.StateData
		if err := msg.Decode(&data); err != nil {
			return false, err
		}
		fmt.Fprintln(w.out, stateLine(data.State))

	case server.MessageTypeHandComplete:
		var data server.HandCompleteData
		if err := msg.Decode(&data); err != nil {
			return false, err
		}
		s := data.Summary
		fmt.Fprintf(w.out, "%s %s wins %d\n", headerStyle.Render(fmt.Sprintf("Round %d:", s.Round)), nameStyle.Render(s.WinnerName), s.Pot)
		for _, c := range s.NetChanges {
			fmt.Fprintf(w.out, "  %-16s %s (%s)\n", c.Name, signed(c.Change), signed(c.Balance))
		}

	case server.MessageTypeSessionEnded:
		var data server.SessionEndedData
		if err := msg.Decode(&data); err != nil {
			return false, err
		}
		fmt.Fprintln(w.out, headerStyle.Render(fmt.Sprintf("Session ended: %s after round %d", data.Reason, data.FinalRound)))
		return true, nil

	case server.MessageTypeError:
		var data server.ErrorData
		if err := msg.Decode(&data); err != nil {
			return false, err
		}
		return false, fmt.Errorf("%s: %s", data.Code, data.Message)
	}
	return false, nil
}

func stateLine(st game.PublicState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s round %d/%d %s",
		headerStyle.Render(st.SessionName), st.CurrentRound, st.TotalRounds, st.Phase)
	if st.Phase == game.PhaseActive {
		fmt.Fprintf(&b, "  pot %d  stake %d", st.Pot, st.CurrentStake)
		for _, p := range st.GamePlayers {
			name := p.Name
			switch {
			case p.Folded:
				name = dimStyle.Render(name + " (folded)")
			case p.PlayerID == st.ActivePlayerID:
				name = nameStyle.Render("> " + name)
			}
			fmt.Fprintf(&b, "  %s[%s]", name, strings.ToLower(string(p.Status)))
		}
	}
	if n := len(st.Log); n > 0 {
		fmt.Fprintf(&b, "\n  %s", dimStyle.Render(st.Log[n-1]))
	}
	return b.String()
}
