package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bugshot/bugshot-go"
	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/bugshot/bugshot-go/pkg/host"
)

func main() {
	storage, err := host.DefaultFileStorage()
	if err != nil {
		panic(err)
	}
	page := host.NewPage(host.Config{
		URL:     "https://shop.example.com/",
		Title:   "Shop",
		Storage: storage,
	})

	client, err := bugshot.New(page, &bugshot.Options{
		APIKey:           os.Getenv("BUGSHOT_API_KEY"),
		Debug:            true,
		Release:          "example",
		RedactInputNames: []string{"card"},
	})
	if err != nil {
		panic(err)
	}
	client.Init()
	defer client.Close()

	page.PushState(nil, "Cart", "https://shop.example.com/cart")
	page.Input(host.Element{TagName: "INPUT", Name: "card", Type: "text", Value: "4242 4242 4242 4242"})
	page.Click(host.Element{TagName: "BUTTON", ID: "submit", Text: "Pay now"}, 120, 80)

	page.Do(func() {
		var cart map[string]int
		cart["items"]++
	})
	client.CaptureMessage("checkout finished", event.LevelInfo)
	page.Unload()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := client.Wait(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pending deliveries:", err)
	}
	fmt.Println("session", client.SessionID())
}
