// Package remote rebroadcasts the session over a network socket: a
// WebSocket relay for command traffic plus an embedded controller page.
// Relay clients share the one session through its queue; there is no second
// write path to the serial channel.
package remote

import (
	_ "embed"
	"errors"
	"fmt"
	"github.com/allape/gogger"
	"github.com/allape/picolink/pico/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
)

var l = gogger.New("remote")

//go:embed index.html
var indexHTML string

// MacroControl is how relay clients drive playback.
type MacroControl interface {
	Start()
	Stop()
	IsPlaying() bool
}

// CountdownControl is how relay clients drive the countdown service.
type CountdownControl interface {
	Start()
	Stop()
	IsRunning() bool
}

type Options struct {
	Addr string
	Path string
	Cors bool
	// PortAttempts retries successive ports when Addr's port is taken.
	PortAttempts int
	// PagePath serves a controller page from disk instead of the embedded one.
	PagePath string
}

type Server struct {
	Options Options

	sess      *session.Session
	macro     MacroControl
	countdown CountdownControl

	locker    sync.Mutex
	clients   map[*websocket.Conn]*sync.Mutex
	listener  net.Listener
	server    *http.Server
	unobserve func()
	port      int
}

func NewServer(sess *session.Session, macro MacroControl, countdown CountdownControl, options Options) *Server {
	if options.Path == "" {
		options.Path = "/relay"
	}
	if options.PortAttempts < 1 {
		options.PortAttempts = 1
	}
	return &Server{
		Options: options,
		sess:    sess,
		macro:   macro,
		clients: map[*websocket.Conn]*sync.Mutex{},

		countdown: countdown,
	}
}

// Start binds the first free port at or after the configured one and begins
// serving. The actually bound port is available from Port.
func (s *Server) Start() error {
	listener, port, err := s.listen()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if s.Options.Cors {
		engine.Use(cors.Default())
	}

	engine.GET("/", s.handlePage)
	engine.GET(s.Options.Path, s.handleRelay)

	s.locker.Lock()
	s.listener = listener
	s.port = port
	s.server = &http.Server{Handler: engine}
	server := s.server
	s.locker.Unlock()

	s.unobserve = s.sess.RegisterLineObserver(func(line string) {
		l.Verbose().Println("RX:", line)
	})

	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Println("serve:", err)
		}
	}()

	l.Verbose().Println("relay listening on port", port)
	return nil
}

func (s *Server) Stop() error {
	if s.unobserve != nil {
		s.unobserve()
		s.unobserve = nil
	}

	s.locker.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	clients := s.clients
	s.clients = map[*websocket.Conn]*sync.Mutex{}
	s.locker.Unlock()

	for conn := range clients {
		_ = conn.Close()
	}

	if server == nil {
		return nil
	}
	return server.Close()
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.port
}

// Broadcast sends message to every connected relay client.
func (s *Server) Broadcast(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	s.locker.Lock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(s.clients))
	for conn, locker := range s.clients {
		clients[conn] = locker
	}
	s.locker.Unlock()

	for conn, locker := range clients {
		locker.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(message))
		locker.Unlock()
		if err != nil {
			// client likely went away, the read loop cleans it up
			l.Verbose().Println("broadcast:", err)
		}
	}
}

func (s *Server) listen() (net.Listener, int, error) {
	host, portStr, err := net.SplitHostPort(s.Options.Addr)
	if err != nil {
		return nil, 0, fmt.Errorf("remote addr %q: %w", s.Options.Addr, err)
	}
	basePort, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, fmt.Errorf("remote addr %q: %w", s.Options.Addr, err)
	}

	var lastErr error
	for offset := 0; offset < s.Options.PortAttempts; offset++ {
		port := basePort + offset
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}
		// report the kernel-assigned port when the base was 0
		if addr, ok := listener.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		return listener, port, nil
	}
	return nil, 0, lastErr
}

func (s *Server) handlePage(c *gin.Context) {
	content := indexHTML
	if s.Options.PagePath != "" {
		if data, err := os.ReadFile(s.Options.PagePath); err == nil {
			content = string(data)
		}
	}
	content = strings.ReplaceAll(content, "REPLACE_WS_PORT", strconv.Itoa(s.Port()))
	content = strings.ReplaceAll(content, "REPLACE_WS_PATH", s.Options.Path)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(content))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleRelay(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Println("upgrade:", err)
		return
	}

	writeLocker := &sync.Mutex{}
	s.locker.Lock()
	s.clients[conn] = writeLocker
	s.locker.Unlock()
	l.Verbose().Println("client connected:", conn.RemoteAddr())

	defer func() {
		s.locker.Lock()
		delete(s.clients, conn)
		s.locker.Unlock()
		_ = conn.Close()
		l.Verbose().Println("client disconnected:", conn.RemoteAddr())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		message := strings.TrimSpace(string(data))
		if message == "" {
			continue
		}
		s.handleMessage(conn, writeLocker, message)
	}
}

func (s *Server) handleMessage(conn *websocket.Conn, writeLocker *sync.Mutex, message string) {
	reply := func(text string) {
		writeLocker.Lock()
		defer writeLocker.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(text))
	}

	if action, ok := strings.CutPrefix(message, "macro|"); ok {
		if s.macro == nil {
			reply("macro|unavailable")
			return
		}
		switch action {
		case "start":
			s.macro.Start()
		case "stop":
			s.macro.Stop()
		case "query":
			if s.macro.IsPlaying() {
				reply("macro|playing")
			} else {
				reply("macro|stopped")
			}
		default:
			l.Warn().Println("unknown macro action:", action)
		}
		return
	}

	if action, ok := strings.CutPrefix(message, "countdown|"); ok {
		if s.countdown == nil {
			reply("countdown|unavailable")
			return
		}
		switch action {
		case "start":
			s.countdown.Start()
		case "stop":
			s.countdown.Stop()
		case "query":
			if s.countdown.IsRunning() {
				reply("countdown|running")
			} else {
				reply("countdown|stopped")
			}
		default:
			l.Warn().Println("unknown countdown action:", action)
		}
		return
	}

	l.Verbose().Println("TX:", message)
	s.sess.SendCommand(message, false, 0)
}
