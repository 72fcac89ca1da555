package main

import "github.com/J41RO/MeStore-sub006/cmd/authzapi/cmd"

func main() {
	cmd.Execute()
}
