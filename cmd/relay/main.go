// Command relay runs the chat relay server: HTTP API, Google sign-in, and
// the realtime websocket endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/Kabilan-0809/chat-application/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}
