package main

import (
	"github.com/allape/picolink/countdown"
	"github.com/allape/picolink/playback"
)

// macroControl adapts the playback controller to the relay's control
// surface, pinning the macro folder from config.
type macroControl struct {
	controller *playback.Controller
	folder     string
}

func (m *macroControl) Start() {
	m.controller.Start(m.folder)
}

func (m *macroControl) Stop() {
	m.controller.Stop()
}

func (m *macroControl) IsPlaying() bool {
	return m.controller.IsPlaying()
}

type countdownControl struct {
	service *countdown.Service
	seconds int
}

func (c *countdownControl) Start() {
	err := c.service.Start(c.seconds, "Countdown timer finished!", countdown.Callbacks{
		OnStatus: func(status string) {
			log.Println(status)
		},
	})
	if err != nil {
		log.Println("start countdown:", err)
	}
}

func (c *countdownControl) Stop() {
	c.service.Stop()
}

func (c *countdownControl) IsRunning() bool {
	return c.service.IsRunning()
}
