package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	simpchat "github.com/MrJorjinio/simpchat-go/app"
	"github.com/MrJorjinio/simpchat-go/core"
	"github.com/MrJorjinio/simpchat-go/hub"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	config, err := simpchat.LoadConfig()
	if err != nil {
		// no config file, fall back to the environment
		config, err = (&simpchat.EnvConfigLoader{}).Load()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	client, err := simpchat.New(config)
	if err != nil {
		log.Fatalf("new client: %v", err)
	}

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer client.Close()

	client.Hub().OnStateChange(func(s hub.State) {
		fmt.Printf("* connection %s\n", s)
	})
	client.Hub().Subscribe(core.EventReceiveMessage, func(body json.RawMessage) error {
		var msg core.Message
		if err := core.DecodePayload(body, &msg); err != nil {
			return err
		}
		fmt.Printf("[%s] %s: %s\n", msg.ChatID, msg.SenderID, msg.Content)
		return nil
	})
	client.Hub().Subscribe(core.EventUserOnline, func(body json.RawMessage) error {
		var p core.PresencePayload
		if err := core.DecodePayload(body, &p); err != nil {
			return err
		}
		fmt.Printf("* %s is online\n", p.UserID)
		return nil
	})
	client.Hub().Subscribe(core.EventUserOffline, func(body json.RawMessage) error {
		var p core.PresencePayload
		if err := core.DecodePayload(body, &p); err != nil {
			return err
		}
		fmt.Printf("* %s is offline\n", p.UserID)
		return nil
	})
	client.Hub().Subscribe(core.EventError, func(body json.RawMessage) error {
		var p core.ErrorPayload
		if err := core.DecodePayload(body, &p); err != nil {
			return err
		}
		fmt.Printf("! server: %s\n", p.Message)
		return nil
	})

	var view *simpchat.ChatView
	if len(os.Args) > 1 {
		view, err = client.OpenChat(ctx, os.Args[1])
		if err != nil {
			log.Fatalf("open chat %s: %v", os.Args[1], err)
		}
		defer view.Close()
		for _, msg := range view.Messages() {
			fmt.Printf("[%s] %s: %s\n", msg.ChatID, msg.SenderID, msg.Content)
		}
	} else {
		for _, chat := range client.Chats() {
			fmt.Printf("%s\t%s\n", chat.ID, chat.Name)
		}
	}

	// lines from stdin go to the open chat; "/dm <user> <message>" starts a
	// new direct conversation
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if rest, ok := strings.CutPrefix(line, "/dm "); ok {
				userID, msg, _ := strings.Cut(rest, " ")
				dmView, err := client.OpenDirectMessage(ctx, userID, msg)
				if err != nil {
					fmt.Printf("! %v\n", err)
				}
				if dmView != nil {
					view = dmView
				}
				continue
			}
			if view == nil {
				fmt.Println("! no open chat")
				continue
			}
			if err := view.Send(ctx, line, ""); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}()

	<-ctx.Done()
}
