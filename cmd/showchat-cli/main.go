package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"showchat/internal/chatclient"
)

var (
	serverURL      = flag.String("server", "http://localhost:8080", "showchat server base URL")
	projectContext = flag.String("context", "", "Extra project context sent with every question")
	maxRetries     = flag.Int("retries", 3, "Client-side retries when the server reports a transient failure")
	backoff        = flag.Duration("backoff", time.Second, "Base delay between client-side retries")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nBye!")
		cancel()
		os.Exit(0)
	}()

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Println(boldGreen("Project Showcase Assistant"))
	fmt.Printf("Server: %s\n", boldCyan(*serverURL))
	fmt.Println("Ask about the showcased student projects. Type 'exit' or press Ctrl+C to quit.")
	fmt.Println()

	conv := chatclient.New(chatclient.Options{
		Sender:         chatclient.NewTransport(*serverURL, nil),
		ProjectContext: *projectContext,
		MaxRetries:     *maxRetries,
		BackoffBase:    *backoff,
		Notifier: chatclient.NotifierFunc(func(msg string) {
			fmt.Println(yellow(msg))
		}),
	})

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		input := scanner.Text()
		if strings.ToLower(strings.TrimSpace(input)) == "exit" {
			break
		}

		before := len(conv.Messages())
		conv.Send(ctx, input)
		msgs := conv.Messages()
		if len(msgs) == before {
			// Blank input or the daily limit already hit, nothing new to show.
			if conv.LimitReached() {
				fmt.Println(yellow("The daily chat limit is reached. Come back tomorrow!"))
			}
			continue
		}

		last := msgs[len(msgs)-1]
		if !last.IsUser {
			fmt.Printf("%s%s\n\n", boldCyan("Assistant: "), last.Content)
		}
	}
}
