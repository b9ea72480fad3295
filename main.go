package main

import (
	"github.com/joho/godotenv"

	"github.com/neeroai/migue.ai-sub000/cmd"
)

func main() {
	_ = godotenv.Load()
	cmd.Execute()
}
