package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vesper/audio"
	"vesper/bus"
	"vesper/clipboard"
	"vesper/config"
	"vesper/hook"
	"vesper/key"
	"vesper/log"
	"vesper/mode"
	"vesper/playback"
	"vesper/remote"
	"vesper/session"
	"vesper/shutdown"
)

var version = "dev"

var shutdownOnce sync.Once

type app struct {
	cfg        *config.Config
	bus        *bus.Bus
	modes      *mode.Controller
	classifier *key.Classifier
	hk         hook.Hook
	stream     *remote.StreamClient
	player     *playback.Player
	audioCtx   audio.Context
	cancel     context.CancelFunc
}

func (a *app) gracefulShutdown() {
	shutdownOnce.Do(func() {
		log.Info("shutting down")
		if a.cancel != nil {
			a.cancel()
		}
		if a.hk != nil {
			a.hk.Unregister()
		}
		if a.classifier != nil {
			a.classifier.Stop()
		}
		if a.stream != nil {
			a.stream.Close()
		}
		if a.player != nil {
			a.player.Close()
		}
		if a.audioCtx != nil {
			a.audioCtx.Close()
		}
		if a.bus != nil {
			a.bus.Close()
		}
		log.Close()
		tuiQuit()
		os.Exit(0)
	})
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "vesper", "config.yaml")
}

// registerTransitions declares every legal mode change. Anything not
// listed here is rejected at Switch time.
func registerTransitions(c *mode.Controller) error {
	transitions := []mode.Transition{
		{From: mode.Sleeping, To: mode.Listening, Kind: mode.Automatic},
		{From: mode.Listening, To: mode.Processing, Kind: mode.Automatic},
		{From: mode.Listening, To: mode.Sleeping, Kind: mode.Interrupt},
		{From: mode.Processing, To: mode.Speaking, Kind: mode.Automatic},
		{From: mode.Processing, To: mode.Sleeping, Kind: mode.Interrupt},
		{From: mode.Speaking, To: mode.Sleeping, Kind: mode.Interrupt},
	}
	for _, t := range transitions {
		if err := c.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// speakingHandler ties the speaking mode to the cue player: an
// interrupt while speaking silences reply audio immediately, before
// the mode switch lands.
type speakingHandler struct {
	player *playback.Player
}

func (h speakingHandler) Enter() bool      { return true }
func (h speakingHandler) Exit()            {}
func (h speakingHandler) HandleInterrupt() { h.player.Stop() }

// captureEngine bridges the coordinator's capture commands to the
// audio device and the remote stream: Start opens an exchange and
// pumps PCM into it, Stop finalizes it.
type captureEngine struct {
	device audio.CaptureDevice
	stream *remote.StreamClient
	player *playback.Player
}

func (e *captureEngine) Start(id time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.stream.Open(ctx, id); err != nil {
		return err
	}
	e.device.SetCallback(func(data []byte, _ uint32) {
		e.stream.Feed(id, data)
	})
	if err := e.device.Start(); err != nil {
		e.device.ClearCallback()
		e.stream.Cancel(id)
		return err
	}
	e.player.Play(playback.CueStart)
	return nil
}

func (e *captureEngine) Stop(id time.Time) error {
	e.device.Stop()
	e.device.ClearCallback()
	e.stream.Finish(id)
	e.player.Play(playback.CueEnd)
	return nil
}

func listDevices(ctx audio.Context) {
	devices, err := ctx.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("no capture devices found")
		return
	}
	for _, d := range devices {
		fmt.Println(d.Name)
	}
}

func pickDevice(ctx audio.Context, substr string) *audio.DeviceInfo {
	if substr == "" {
		return nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		log.Warnf("device enumeration failed: %v", err)
		return nil
	}
	lower := strings.ToLower(substr)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return &devices[i]
		}
	}
	log.Warnf("no capture device matching %q, using system default", substr)
	return nil
}

func run() {
	configFlag := flag.String("config", defaultConfigPath(), "config file path")
	shortPressFlag := flag.Duration("shortpress", 0, "key-up under this duration counts as a tap (e.g. 600ms)")
	longPressFlag := flag.Duration("longpress", 0, "hold past this duration starts capture (e.g. 1s)")
	debounceFlag := flag.Duration("debounce", 0, "window that absorbs duplicate interrupt taps (e.g. 120ms)")
	remoteFlag := flag.String("remote", "", "speech backend websocket URL")
	deviceFlag := flag.String("device", "", "capture device name substring")
	copyFlag := flag.Bool("copy", true, "copy recognized text to the clipboard")
	cuesFlag := flag.Bool("cues", true, "play capture start/end cue tones")
	devicesFlag := flag.Bool("devices", false, "list capture devices and exit")
	tuiFlag := flag.Bool("tui", true, "run with terminal UI")
	testFlag := flag.Bool("test", false, "test mode (headless, stdin-driven)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("vesper %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "shortpress":
			cfg.Key.ShortPress = config.Duration(*shortPressFlag)
		case "longpress":
			cfg.Key.LongPress = config.Duration(*longPressFlag)
		case "debounce":
			cfg.Key.DebounceWindow = config.Duration(*debounceFlag)
		case "remote":
			cfg.Remote.URL = *remoteFlag
		case "device":
			cfg.Device = *deviceFlag
		case "copy":
			cfg.Copy = *copyFlag
		case "cues":
			cfg.Cues = *cuesFlag
		case "logpath":
			cfg.LogPath = *logPathFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	if *testFlag {
		runTestMode(cfg)
		return
	}

	a := &app{cfg: cfg}

	a.audioCtx, err = audio.NewContext()
	if err != nil {
		log.Errorf("audio context init: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}

	if *devicesFlag {
		listDevices(a.audioCtx)
		a.audioCtx.Close()
		return
	}

	device, err := a.audioCtx.NewCapture(pickDevice(a.audioCtx, cfg.Device), audio.DefaultCaptureConfig())
	if err != nil {
		log.Errorf("capture device init: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	defer device.Close()

	a.bus = bus.New()
	a.player = playback.NewPlayer(cfg.Cues)
	a.stream = remote.NewStream(cfg.Remote.URL, remoteHeader(cfg))
	a.modes = mode.NewController()
	if err := registerTransitions(a.modes); err != nil {
		log.Errorf("transition table: %v", err)
		os.Exit(1)
	}
	a.modes.SetHandler(mode.Speaking, speakingHandler{player: a.player})

	a.classifier, err = key.NewClassifier(key.Config{
		ShortPress:   cfg.Key.ShortPress.Std(),
		LongPress:    cfg.Key.LongPress.Std(),
		Cooldown:     cfg.Key.Cooldown.Std(),
		PollInterval: cfg.Key.PollInterval.Std(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	engine := &captureEngine{device: device, stream: a.stream, player: a.player}
	coord := session.NewCoordinator(
		session.Config{DebounceWindow: cfg.Key.DebounceWindow.Std()},
		a.modes, a.bus, engine, a.player, a.stream,
	)

	a.bus.Subscribe(session.TopicPlaybackCancelled, bus.Sync(func(bus.Event) {
		a.player.Stop()
	}))
	a.bus.Subscribe(session.TopicRecognized, bus.Sync(func(ev bus.Event) {
		p, ok := ev.Payload.(session.Payload)
		if !ok {
			return
		}
		log.UtteranceText(p.Text)
		if cfg.Copy {
			if err := clipboard.Copy(p.Text); err != nil {
				log.Warnf("clipboard copy: %v", err)
			}
		}
		tuiSend(utteranceMsg{Text: p.Text})
	}))
	a.bus.Subscribe(session.TopicRemoteFailed, bus.Sync(func(ev bus.Event) {
		p, _ := ev.Payload.(session.Payload)
		a.player.Play(playback.CueError)
		tuiSend(statusMsg{Text: "error: " + p.Text})
	}))
	a.modes.OnChange(func(ch mode.Change) {
		tuiSend(modeMsg{Mode: ch.Mode.String(), Active: ch.Active})
	})

	if *tuiFlag {
		startTUI(a.gracefulShutdown)
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		a.gracefulShutdown()
	}()

	a.hk = hook.New()
	if err := a.hk.Register(); err != nil {
		log.Errorf("hook register: %v", err)
		fmt.Fprintf(os.Stderr, "Error registering key hook: %v\n", err)
		os.Exit(1)
	}

	go a.classifier.Run(a.hk.Edges())

	recog := make(chan session.Recognition, 4)
	log.Info("vesper " + version + " ready, hold ctrl+shift+space to talk")
	tuiSend(modeMsg{Mode: a.modes.Current().String(), Active: true})
	coord.Run(ctx, a.classifier.Events(), recog)
}

func remoteHeader(cfg *config.Config) http.Header {
	if cfg.Remote.Token == "" {
		return nil
	}
	return http.Header{"Authorization": {"Bearer " + cfg.Remote.Token}}
}
