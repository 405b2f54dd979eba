package main

import (
	"github.com/rs/zerolog/log"

	"brsvc"
)

func main() {
	cfg, err := brsvc.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	svc, err := brsvc.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build service")
	}
	if err := svc.Run(); err != nil {
		log.Fatal().Err(err).Msg("service exited")
	}
}
