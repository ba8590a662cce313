package serialport

import (
	"errors"
	"github.com/allape/gogger"
	"github.com/allape/picolink/pico/channel"
	"github.com/allape/picolink/pico/protocol"
	"go.bug.st/serial"
	"strings"
	"sync"
	"time"
)

var l = gogger.New("pico.channel.serialport")

const (
	// ReadWindow bounds a single blocking read so the owner can poll its
	// stop flag between reads.
	ReadWindow = 200 * time.Millisecond
	// SettleDelay follows the DTR pulse; the Pico firmware keys off the
	// transition, not data presence.
	SettleDelay = 100 * time.Millisecond
)

type LineChannel struct {
	channel.Channel

	openLocker  sync.Locker
	writeLocker sync.Locker
	// linesLocker guards the reassembly state against Drain racing the reader
	linesLocker sync.Locker

	Port serial.Port

	Name string
	Baud int

	lines      []string
	unfinished string
	buf        []byte
}

func (c *LineChannel) Open() error {
	c.openLocker.Lock()
	defer c.openLocker.Unlock()

	if c.Port != nil {
		return errors.New("port already open")
	}

	mode := &serial.Mode{
		BaudRate: c.Baud,
	}
	port, err := serial.Open(c.Name, mode)
	if err != nil {
		return &channel.Error{Name: c.Name, Err: err}
	}

	err = port.SetReadTimeout(ReadWindow)
	if err != nil {
		_ = port.Close()
		return &channel.Error{Name: c.Name, Err: err}
	}

	c.Port = port
	c.lines = nil
	c.unfinished = ""
	c.buf = make([]byte, 1024)

	return nil
}

func (c *LineChannel) Close() error {
	c.openLocker.Lock()
	defer c.openLocker.Unlock()

	if c.Port == nil {
		return nil
	}

	err := c.Port.Close()
	c.Port = nil
	return err
}

func (c *LineChannel) WriteLine(line string) error {
	c.openLocker.Lock()
	port := c.Port
	c.openLocker.Unlock()

	if port == nil {
		return &channel.Error{Name: c.Name, Err: errors.New("port not open")}
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	c.writeLocker.Lock()
	defer c.writeLocker.Unlock()

	_, err := port.Write([]byte(line))
	if err != nil {
		return &channel.Error{Name: c.Name, Err: err}
	}
	err = port.Drain()
	if err != nil {
		return &channel.Error{Name: c.Name, Err: err}
	}

	return nil
}

func (c *LineChannel) ReadLine() (string, error) {
	for {
		c.linesLocker.Lock()
		if len(c.lines) > 0 {
			line := c.lines[0]
			c.lines = c.lines[1:]
			c.linesLocker.Unlock()
			return line, nil
		}
		c.linesLocker.Unlock()

		c.openLocker.Lock()
		port := c.Port
		c.openLocker.Unlock()

		if port == nil {
			return "", &channel.Error{Name: c.Name, Err: errors.New("port not open")}
		}

		n, err := port.Read(c.buf)
		if err != nil {
			return "", &channel.Error{Name: c.Name, Err: err}
		}
		if n == 0 {
			// read window elapsed without data
			return "", nil
		}

		c.linesLocker.Lock()
		parts := strings.Split(c.unfinished+string(c.buf[:n]), "\n")
		for i := 0; i < len(parts)-1; i++ {
			line := protocol.TrimLine(parts[i])
			if line == "" {
				continue
			}
			l.Verbose().Println(c.Name, ">", line)
			c.lines = append(c.lines, line)
		}
		c.unfinished = parts[len(parts)-1]
		c.linesLocker.Unlock()
	}
}

func (c *LineChannel) ToggleControlLines() error {
	c.openLocker.Lock()
	port := c.Port
	c.openLocker.Unlock()

	if port == nil {
		return &channel.Error{Name: c.Name, Err: errors.New("port not open")}
	}

	err := port.SetDTR(false)
	if err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	err = port.SetDTR(true)
	if err != nil {
		return err
	}
	err = port.SetRTS(false)
	if err != nil {
		return err
	}
	time.Sleep(SettleDelay)

	return nil
}

func (c *LineChannel) Drain() error {
	c.linesLocker.Lock()
	c.lines = nil
	c.unfinished = ""
	c.linesLocker.Unlock()

	c.openLocker.Lock()
	port := c.Port
	c.openLocker.Unlock()

	if port == nil {
		return nil
	}
	return port.ResetInputBuffer()
}

func New(name string, baud int) channel.Channel {
	return &LineChannel{
		openLocker:  &sync.Mutex{},
		writeLocker: &sync.Mutex{},
		linesLocker: &sync.Mutex{},
		Name:        name,
		Baud:        baud,
	}
}
