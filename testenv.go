package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"vesper/bus"
	"vesper/config"
	"vesper/hook"
	"vesper/key"
	"vesper/log"
	"vesper/mode"
	"vesper/remote"
	"vesper/session"
)

// testCapture records the last session id a capture was started for
// so the stdin driver can address remote completions to it.
type testCapture struct {
	mu     sync.Mutex
	lastID time.Time
}

func (c *testCapture) Start(id time.Time) error {
	c.mu.Lock()
	c.lastID = id
	c.mu.Unlock()
	fmt.Printf("capture start %d\n", id.UnixNano())
	return nil
}

func (c *testCapture) Stop(id time.Time) error {
	fmt.Printf("capture stop %d\n", id.UnixNano())
	return nil
}

func (c *testCapture) last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

type testPlayback struct{}

func (testPlayback) Stop()   { fmt.Println("playback stop") }
func (testPlayback) Pause()  {}
func (testPlayback) Resume() {}

// runTestMode drives the real classifier, mode controller and
// coordinator from stdin commands, with the hook, capture and remote
// collaborators faked. One command per line:
//
//	KEYDOWN / KEYUP   simulate a raw key edge
//	SLEEP <ms>        wait
//	COMPLETE <text>   resolve the last capture's remote exchange
//	FAIL <reason>     fail it
//	RECOGFAIL         inject a recognition failure
//	QUIT              exit
func runTestMode(cfg *config.Config) {
	defer log.Close()

	fh := hook.NewFake()
	rc := remote.NewFake()
	capture := &testCapture{}

	classifier, err := key.NewClassifier(key.Config{
		ShortPress:   cfg.Key.ShortPress.Std(),
		LongPress:    cfg.Key.LongPress.Std(),
		Cooldown:     cfg.Key.Cooldown.Std(),
		PollInterval: cfg.Key.PollInterval.Std(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	modes := mode.NewController()
	if err := registerTransitions(modes); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	modes.OnChange(func(ch mode.Change) {
		fmt.Printf("mode %s\n", ch.Mode)
	})

	b := bus.New()
	defer b.Close()
	for _, topic := range []string{
		session.TopicPress, session.TopicShortPress, session.TopicRelease,
		session.TopicPlaybackCancelled, session.TopicRecognized,
		session.TopicRemoteCompleted, session.TopicRemoteFailed,
	} {
		b.Subscribe(topic, bus.Sync(func(ev bus.Event) {
			p, _ := ev.Payload.(session.Payload)
			if p.Text != "" {
				fmt.Printf("event %s %q\n", ev.Topic, p.Text)
			} else {
				fmt.Printf("event %s\n", ev.Topic)
			}
		}))
	}

	coord := session.NewCoordinator(
		session.Config{DebounceWindow: cfg.Key.DebounceWindow.Std()},
		modes, b, capture, testPlayback{}, rc,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recog := make(chan session.Recognition, 4)
	go classifier.Run(fh.Edges())
	go coord.Run(ctx, classifier.Events(), recog)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "", "#":
		case "KEYDOWN":
			fh.SimKeydown()
		case "KEYUP":
			fh.SimKeyup()
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "COMPLETE":
			rc.Complete(capture.last(), arg)
		case "FAIL":
			rc.Fail(capture.last(), arg)
		case "RECOGFAIL":
			recog <- session.Recognition{Failed: true}
		case "QUIT":
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		}
	}
}
