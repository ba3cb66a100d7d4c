package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatroom-client/internal/api"
	"github.com/npezzotti/go-chatroom-client/internal/config"
	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/session"
	"github.com/npezzotti/go-chatroom-client/internal/stats"
	"github.com/npezzotti/go-chatroom-client/internal/store"
	"github.com/npezzotti/go-chatroom-client/internal/transport"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/npezzotti/go-chatroom-client/internal/typing"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	apiURL         string
	socketAddr     string
	secure         bool
	tokenFile      string
	token          string
	userId         string
	debugAddr      string
	configFile     string
	quietPeriod    time.Duration
	allowedOrigins stringSliceFlag
)

func main() {
	defaultTokenFile, err := session.DefaultPath()
	if err != nil {
		defaultTokenFile = "session.json"
	}

	flag.StringVar(&apiURL, "api-url", "http://localhost:8000", "base url of the chat REST API")
	flag.StringVar(&socketAddr, "socket-addr", "localhost:8000", "host:port of the push channel")
	flag.BoolVar(&secure, "secure", false, "use wss for the push channel")
	flag.StringVar(&tokenFile, "token-file", defaultTokenFile, "file the auth token is stored in")
	flag.StringVar(&token, "token", "", "auth token to store and use")
	flag.StringVar(&userId, "user-id", "", "current user id (default: read from the token)")
	flag.StringVar(&debugAddr, "debug-addr", "", "address of the debug server, disabled when empty")
	flag.StringVar(&configFile, "config", "", "optional TOML config file")
	flag.DurationVar(&quietPeriod, "typing-quiet-period", typing.DefaultQuietPeriod, "pause after which typing stops")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for the debug server")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-chat-client] ", log.LstdFlags)

	cfg, err := config.NewConfig(apiURL, socketAddr, secure, tokenFile)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.UserId = types.ID(userId)
	cfg.DebugAddr = debugAddr
	cfg.QuietPeriod = quietPeriod

	if configFile != "" {
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		fc, err := config.LoadFile(configFile)
		if err != nil {
			logger.Fatal("config:", err)
		}
		if err := cfg.Merge(fc, explicit); err != nil {
			logger.Fatal("config:", err)
		}
	}

	tokens := session.NewFileTokenStore(cfg.TokenFile)
	if token != "" {
		if err := tokens.Save(token); err != nil {
			logger.Fatal("save token:", err)
		}
	}
	authToken, err := tokens.Load()
	if err != nil {
		if errors.Is(err, session.ErrNoToken) {
			logger.Fatal("no auth token found, pass -token to store one")
		}
		logger.Fatal("load token:", err)
	}

	if cfg.UserId == "" {
		id, err := session.UserIdFromToken(authToken)
		if err != nil {
			logger.Printf("could not determine current user: %v", err)
		}
		cfg.UserId = id
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux, "chatclient")
	statsUpdater.Run()
	defer statsUpdater.Stop()

	gw, err := gateway.NewRestGateway(cfg.APIURL, authToken, nil, logger)
	if err != nil {
		logger.Fatal("gateway:", err)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 15 * time.Second,
	}
	conn := transport.NewConnection(dialer, cfg.SocketURL, logger, statsUpdater)

	st := store.New(store.Options{
		Gateway:     gw,
		Conn:        conn,
		Token:       authToken,
		UserId:      cfg.UserId,
		QuietPeriod: cfg.QuietPeriod,
		Stats:       statsUpdater,
		Log:         logger,
	})
	defer st.Close()

	var debugSrv *api.DebugServer
	errCh := make(chan error, 1)
	if cfg.DebugAddr != "" {
		debugSrv = api.NewDebugServer(mux, logger, st, cfg.DebugAddr, allowedOrigins)
		go func() {
			if err := debugSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ui := newConsole(st, tokens, os.Stdout)
	st.OnChange(ui.onChange)

	if _, err := st.ListRooms(ctx); err != nil {
		logger.Println("list rooms:", err)
	} else {
		ui.printRooms()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case sig := <-sigs:
			logger.Printf("received signal: %s\n", sig)
			break loop
		case err := <-errCh:
			logger.Println("debug server:", err)
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			quit, err := ui.handle(ctx, line)
			if err != nil {
				ui.printf("error: %v\n", err)
			}
			if quit {
				break loop
			}
		}
	}

	if debugSrv != nil {
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := debugSrv.Shutdown(shutDownCtx); err != nil {
			logger.Println("debug server shutdown:", err)
		}
	}

	logger.Println("shutdown complete")
}
