package main

import (
	"os"

	chatrelaycmder "github.com/papercomputeco/chatrelay/cmd/chatrelay"
)

func main() {
	cmd := chatrelaycmder.NewChatrelayCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
