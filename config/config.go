package config

import (
	"github.com/allape/picolink/logger"
	"github.com/pelletier/go-toml/v2"
	"os"
)

var log = logger.New("[config]")

const DefaultConfigPath = "picolink.toml"

type Serial struct {
	// Port is the Pico DATA CDC port, e.g. /dev/ttyACM1 or COM4.
	// Leave empty to auto-detect.
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

type Remote struct {
	Addr string `toml:"addr"`
	Path string `toml:"path"`
	Cors bool   `toml:"cors"`
	// PortAttempts is how many successive ports to try when Addr's port is taken.
	PortAttempts int `toml:"port_attempts"`
	// PagePath overrides the embedded controller page when it points at a file.
	PagePath string `toml:"page_path"`
}

type Telegram struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type Macro struct {
	Folder string `toml:"folder"`
}

type Countdown struct {
	Seconds int `toml:"seconds"`
}

type Config struct {
	Serial    Serial    `toml:"serial"`
	Remote    Remote    `toml:"remote"`
	Telegram  Telegram  `toml:"telegram"`
	Macro     Macro     `toml:"macro"`
	Countdown Countdown `toml:"countdown"`
}

func GetConfig() (Config, error) {
	configFile := DefaultConfigPath
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	log.Println("reading config file:", configFile)

	config := Config{
		Serial: Serial{
			Port: "",
			Baud: 115200,
		},
		Remote: Remote{
			Addr:         ":8765",
			Path:         "/relay",
			Cors:         false,
			PortAttempts: 10,
		},
		Macro: Macro{
			Folder: "macros",
		},
		Countdown: Countdown{
			Seconds: 60,
		},
	}

	_, err := os.Stat(configFile)
	if err != nil {
		return config, err
	}

	configData, err := os.ReadFile(configFile)
	if err != nil {
		return config, err
	}

	err = toml.Unmarshal(configData, &config)
	if err != nil {
		return config, err
	}

	if config.Serial.Baud <= 0 {
		config.Serial.Baud = 115200
	}
	if config.Countdown.Seconds < 1 {
		config.Countdown.Seconds = 1
	}
	if config.Remote.PortAttempts < 1 {
		config.Remote.PortAttempts = 1
	}

	log.Println("use config:", config)

	return config, nil
}
