package main

import (
	"github.com/allape/picolink/config"
	"github.com/allape/picolink/countdown"
	"github.com/allape/picolink/factory"
	"github.com/allape/picolink/logger"
	"github.com/allape/picolink/pico/manager"
	"github.com/allape/picolink/pico/session"
	"github.com/allape/picolink/playback"
	"os"
	"os/signal"
	"syscall"
)

var log = logger.New("[main]")

func main() {
	conf, err := config.GetConfig()
	if err != nil {
		log.Fatalln("get config:", err)
	}

	m := manager.New(conf.Serial.Baud)
	defer func() {
		_ = m.Close()
	}()

	sess, err := factory.SessionFromConfig(conf, m)
	if err != nil {
		log.Fatalln("open session:", err)
	}

	err = sess.Handshake(session.DefaultReadyTimeout)
	if err != nil {
		log.Fatalln("handshake:", err)
	}
	log.Println("device ready on", sess.Name)

	unobserve := sess.RegisterLineObserver(func(line string) {
		log.Println("pico:", line)
	})
	defer unobserve()

	controller := playback.NewController(sess)
	defer func() {
		controller.Stop()
		controller.Wait()
	}()

	var notifier countdown.Notifier
	if telegram := factory.NotifierFromConfig(conf); telegram != nil {
		notifier = telegram
	}
	cd := countdown.New(notifier)
	defer cd.Stop()

	server := factory.RemoteFromConfig(
		conf,
		sess,
		&macroControl{controller: controller, folder: conf.Macro.Folder},
		&countdownControl{service: cd, seconds: conf.Countdown.Seconds},
	)
	err = server.Start()
	if err != nil {
		log.Fatalln("start remote server:", err)
	}
	defer func() {
		_ = server.Stop()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	log.Println("started, remote on port", server.Port())
	sig := <-sigs
	log.Println("exiting with", sig)
}
