package main

import "github.com/dbsmedya/gorowtree/cmd/gorowtree/cmd"

func main() {
	cmd.Execute()
}
