// Command checkinctl is the operator CLI: an interactive chat client for the
// check-in server, encrypted secrets management, and a usage report from
// Prometheus.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"checkin/pkg/config"
	"checkin/pkg/metrics"
	"checkin/pkg/proto"
)

func main() {
	_ = godotenv.Load()

	cmd := "chat"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "chat":
		err = chat()
	case "secrets":
		err = secrets(os.Args[2:])
	case "usage":
		err = usage()
	default:
		fmt.Fprintf(os.Stderr, "usage: checkinctl [chat|secrets|usage]\n")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkinctl: %v\n", err)
		os.Exit(1)
	}
}

// chat runs the interactive conversation loop against the server.
func chat() error {
	server := os.Getenv("CHECKIN_SERVER_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 2 * time.Minute}
	scanner := bufio.NewScanner(os.Stdin)
	var sessionID string

	fmt.Println("Connected to", server, "- type your message, or 'quit' to exit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		body, err := json.Marshal(map[string]string{"goal": line, "sessionId": sessionID})
		if err != nil {
			return err
		}
		resp, err := client.Post(server+"/main/run", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		var stage proto.StageResponse
		err = json.NewDecoder(resp.Body).Decode(&stage)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("bad response: %w", err)
		}

		sessionID = stage.SessionID
		fmt.Printf("[%s %s] %s\n", stage.Stage, stage.Status, stage.UserMessage)
	}
}

// secrets manages the encrypted secrets file. "set NAME" reads the value
// from stdin; passwords are read without echo.
func secrets(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: checkinctl secrets set <NAME> | list")
	}

	password, err := readPassword("Secrets password: ")
	if err != nil {
		return err
	}

	stored := map[string]string{}
	if config.SecretsFileExists(".") {
		stored, err = config.DecryptSecretsFile(".", password)
		if err != nil {
			return err
		}
	}

	switch args[0] {
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: checkinctl secrets set <NAME>")
		}
		value, err := readPassword("Value for " + args[1] + ": ")
		if err != nil {
			return err
		}
		stored[args[1]] = value
		if err := config.EncryptSecretsFile(".", password, stored); err != nil {
			return err
		}
		fmt.Println("saved", args[1])
		return nil
	case "list":
		for name := range stored {
			fmt.Println(name)
		}
		return nil
	default:
		return fmt.Errorf("unknown secrets subcommand %q", args[0])
	}
}

// usage prints the per-stage model usage report from Prometheus.
func usage() error {
	promURL := os.Getenv("CHECKIN_PROMETHEUS_URL")
	if promURL == "" {
		return fmt.Errorf("CHECKIN_PROMETHEUS_URL is not set")
	}
	svc, err := metrics.NewQueryService(promURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := svc.StageUsageReport(ctx)
	if err != nil {
		return err
	}
	for _, row := range report {
		fmt.Printf("%-28s calls=%-6d tokens=%d\n", row.Stage, row.ModelCalls, row.Tokens)
	}
	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
