package main

import "github.com/dbsmedya/studyplan/cmd/studyplan/cmd"

func main() {
	cmd.Execute()
}
