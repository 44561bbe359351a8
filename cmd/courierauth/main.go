package main

import "github.com/MrEthical07/courierauth/cmd/courierauth/cmd"

func main() {
	cmd.Execute()
}
