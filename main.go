package main

import "github.com/streamshield/person-detection-service/cmd"

func main() {
	cmd.Execute()
}
