package factory

import (
	"errors"
	"github.com/allape/picolink/config"
	"github.com/allape/picolink/logger"
	"github.com/allape/picolink/messaging"
	"github.com/allape/picolink/pico/discovery"
	"github.com/allape/picolink/pico/manager"
	"github.com/allape/picolink/pico/session"
	"github.com/allape/picolink/remote"
)

var log = logger.New("[factory]")

// PortFromConfig resolves the DATA port: the configured one, else a cheap
// enumeration guess, else a full protocol probe over every candidate.
func PortFromConfig(conf config.Config) (string, error) {
	if conf.Serial.Port != "" {
		return conf.Serial.Port, nil
	}

	log.Println("no port configured, guessing from USB enumeration")
	port := discovery.QuickGuess()
	if port != "" {
		log.Println("quick guess:", port)
		return port, nil
	}

	log.Println("probing candidate ports")
	port = discovery.Probe(conf.Serial.Baud, "")
	if port == "" {
		return "", errors.New("no eligible port found")
	}
	log.Println("discovered data port:", port)
	return port, nil
}

func SessionFromConfig(conf config.Config, m *manager.Manager) (*session.Session, error) {
	port, err := PortFromConfig(conf)
	if err != nil {
		return nil, err
	}
	return m.OpenSession(port)
}

// NotifierFromConfig returns nil when Telegram credentials are absent.
func NotifierFromConfig(conf config.Config) *messaging.Telegram {
	if conf.Telegram.BotToken == "" || conf.Telegram.ChatID == "" {
		log.Println("telegram credentials are not configured, notifications disabled")
		return nil
	}
	return messaging.NewTelegram(conf.Telegram.BotToken, conf.Telegram.ChatID)
}

func RemoteFromConfig(
	conf config.Config,
	sess *session.Session,
	macro remote.MacroControl,
	cd remote.CountdownControl,
) *remote.Server {
	return remote.NewServer(sess, macro, cd, remote.Options{
		Addr:         conf.Remote.Addr,
		Path:         conf.Remote.Path,
		Cors:         conf.Remote.Cors,
		PortAttempts: conf.Remote.PortAttempts,
		PagePath:     conf.Remote.PagePath,
	})
}
