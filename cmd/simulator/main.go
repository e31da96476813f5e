package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Global flags
	apiURL := "http://localhost:8080"
	if envURL := os.Getenv("API_URL"); envURL != "" {
		apiURL = envURL
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "ask":
		askCmd(apiURL, args)
	case "seed":
		seedCmd(apiURL, args)
	case "history":
		historyCmd(apiURL, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Chat Simulator - Development tool for exercising the chat backend

USAGE:
  simulator <command> [options]

COMMANDS:
  ask       Send one question and print the streamed answer
  seed      Create a guest with a chat and fill it with several turns
  history   Page backwards through a chat's messages
  help      Show this help message

ENVIRONMENT:
  API_URL   Backend API URL (default: http://localhost:8080)

EXAMPLES:
  # Ask as a fresh guest without storing anything
  simulator ask --q="How do refunds work?"

  # Ask inside a stored chat over the WebSocket transport
  simulator ask --token=$TOKEN --chat=$CHAT --ws --q="And exchanges?"

  # Create a chat with 30 turns for pagination testing
  simulator seed --turns=30

  # Walk the history 10 messages at a time
  simulator history --token=$TOKEN --chat=$CHAT --limit=10`)
}

func askCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	question := fs.String("q", "", "Question to ask (required)")
	token := fs.String("token", "", "Bearer token (default: a new guest)")
	chatID := fs.String("chat", "", "Chat to store the turn in")
	useWS := fs.Bool("ws", false, "Use the WebSocket transport instead of SSE")
	fs.Parse(args)

	if strings.TrimSpace(*question) == "" {
		fmt.Println("Error: --q is required")
		fmt.Println("\nUsage: simulator ask --q=\"...\" [--token=T] [--chat=ID] [--ws]")
		os.Exit(1)
	}

	client := NewAPIClient(apiURL)

	if *token == "" {
		fmt.Print("Creating guest user... ")
		user, guestToken, err := client.CreateGuest()
		if err != nil {
			fmt.Printf("FAILED\n  Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OK (user: %s)\n", user.Email)
		*token = guestToken
	}

	ask := client.Ask
	if *useWS {
		ask = client.AskWebSocket
	}

	fmt.Println()
	_, err := ask(*token, *chatID, *question, func(delta string) {
		fmt.Print(delta)
	})
	fmt.Println()
	if err != nil {
		fmt.Printf("\nError: %v\n", err)
		os.Exit(1)
	}
}

func seedCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	turns := fs.Int("turns", 5, "Number of questions to ask")
	title := fs.String("title", "", "Chat title (default: generated after the first turn)")
	fs.Parse(args)

	if *turns < 1 {
		fmt.Println("Error: --turns must be at least 1")
		os.Exit(1)
	}

	client := NewAPIClient(apiURL)

	fmt.Println("=== Chat Simulator: Seed ===")
	fmt.Println()

	fmt.Print("Creating guest user and chat... ")
	_, token, err := client.CreateGuest()
	if err != nil {
		fmt.Printf("FAILED\n  Error: %v\n", err)
		os.Exit(1)
	}
	chat, err := client.CreateChat(token, *title)
	if err != nil {
		fmt.Printf("FAILED\n  Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK (chat: %s)\n", chat.ID)

	fmt.Println()
	fmt.Printf("Asking %d questions:\n", *turns)
	for i := 1; i <= *turns; i++ {
		reply, err := client.Ask(token, chat.ID, fmt.Sprintf("Seed question %d", i), func(string) {})
		if err != nil {
			fmt.Printf("  [%d/%d] FAILED: %v\n", i, *turns, err)
			os.Exit(1)
		}
		fmt.Printf("  [%d/%d] %d chars\n", i, *turns, len(reply))
	}

	chats, err := client.ListChats(token)
	if err != nil {
		fmt.Printf("Warning: failed to list chats: %v\n", err)
	}

	fmt.Println()
	fmt.Println("=========================================")
	fmt.Println("  CHAT SEEDED")
	fmt.Println("=========================================")
	fmt.Println()
	fmt.Printf("  Chat ID:  %s\n", chat.ID)
	for _, c := range chats {
		if c.ID == chat.ID {
			fmt.Printf("  Title:    %s\n", c.Title)
			fmt.Printf("  Messages: %d\n", c.MessageCount)
		}
	}
	fmt.Printf("  Token:    %s\n", token)
	fmt.Println()
}

func historyCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	token := fs.String("token", "", "Bearer token (required)")
	chatID := fs.String("chat", "", "Chat ID (required)")
	limit := fs.Int("limit", 0, "Page size (default: server default)")
	fs.Parse(args)

	if *token == "" || *chatID == "" {
		fmt.Println("Error: --token and --chat are required")
		fmt.Println("\nUsage: simulator history --token=T --chat=ID [--limit=N]")
		os.Exit(1)
	}

	client := NewAPIClient(apiURL)

	cursor := ""
	for pageNum := 1; ; pageNum++ {
		page, err := client.Messages(*token, *chatID, *limit, cursor)
		if err != nil {
			fmt.Printf("Failed to fetch page %d: %v\n", pageNum, err)
			os.Exit(1)
		}

		fmt.Printf("--- page %d (%d messages) ---\n", pageNum, page.Pagination.Count)
		for _, m := range page.Messages {
			fmt.Printf("  %s  %-9s %s\n", m.CreatedAt.Format("15:04:05"), m.Role, firstLine(m.Content))
		}

		if !page.Pagination.HasMore || page.Pagination.NextCursor == nil {
			break
		}
		cursor = *page.Pagination.NextCursor
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if len(line) > 80 {
		return line[:77] + "..."
	}
	return line
}
