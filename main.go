package main

import "github.com/vibast-solutions/ms-go-gateway-hub/cmd"

func main() {
	cmd.Execute()
}
