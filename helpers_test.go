package resilientclient

import (
	"io"

	log "github.com/sirupsen/logrus"
)

func silentLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}
