package main

import "github.com/kamir/giftbot/cmd/giftbot/cmd"

func main() {
	cmd.Execute()
}
