package main

import (
	"errors"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/tiny-httpd/app"
	"github.com/searchktools/tiny-httpd/config"
)

func main() {
	cfg, err := config.New(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logrus.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("setup failed")
	}

	if err := application.Run(); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}
