package main

import (
	"os"

	"github.com/smartpest-api/pkg/logger"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		log := logger.New()
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
