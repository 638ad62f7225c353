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
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

type chatFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("CHAT_SERVER", "http://localhost:8080"), "base URL del servidor")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "access token (vacio = anonimo)")
	provider := flag.String("provider", "google", "proveedor para -subject (google, github o kakao)")
	secret := flag.String("secret", os.Getenv("OAUTH_COLLABORATOR_SECRET"), "secreto del colaborador OAuth para -subject")
	subject := flag.String("subject", "", "si se indica, hace login OAuth antes de conectar")
	name := flag.String("name", "", "display name para el login")
	flag.Parse()

	logger := zap.NewExample()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *token == "" && *subject != "" {
		access, err := oauthLogin(ctx, *server, *secret, *provider, *subject, *name)
		if err != nil {
			log.Fatalf("login: %v", err)
		}
		*token = access
	}

	wsURL, err := websocketURL(*server)
	if err != nil {
		log.Fatal(err)
	}
	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		log.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()
	logger.Info("connected", zap.String("url", wsURL), zap.Bool("authenticated", *token != ""))

	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(conn, logger)
	}()

	lines := make(chan string)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			line, err := reader.ReadString('\n')
			if strings.TrimSpace(line) != "" {
				lines <- line
			}
			if err != nil {
				close(lines)
				return
			}
		}
	}()

	fmt.Println("Escribe un mensaje (o \"@llm pregunta\" para el asistente). Ctrl+C para salir.")
	for {
		select {
		case <-ctx.Done():
			closeConn(conn)
			return
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				closeConn(conn)
				return
			}
			frame := map[string]string{"event": domain.ChatEventName, "data": strings.TrimSpace(line)}
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("send: %v", err)
				return
			}
		}
	}
}

func printEvents(conn *websocket.Conn, logger *zap.Logger) {
	for {
		var frame chatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("connection lost", zap.Error(err))
			}
			return
		}
		if frame.Event != domain.ChatEventName {
			continue
		}
		var payload domain.ChatPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			logger.Warn("invalid chat payload", zap.Error(err))
			continue
		}
		fmt.Printf("[%s] %s\n", payload.User, payload.Message)
	}
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func oauthLogin(ctx context.Context, server, secret, provider, subject, name string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"provider":     provider,
		"subject":      subject,
		"display_name": name,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/auth/oauth", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OAuth-Collaborator-Secret", secret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth login status %d", resp.StatusCode)
	}

	var parsed struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Tokens.AccessToken, nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String(), nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
