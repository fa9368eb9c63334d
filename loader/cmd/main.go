package main

import (
	"log"

	"raggate/loader/service"
	"raggate/types"

	"github.com/joho/godotenv"
)

func init() {
	loadEnvVariables()
}

func main() {
	service.New(types.LoaderFromEnv()).Run()
}

func loadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}
}
