package main

import "github.com/privata-io/consent-service/cmd"

func main() {
	cmd.Execute()
}
