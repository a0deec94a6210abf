//go:build !linux

package hook

import (
	"time"

	"golang.design/x/hotkey"
)

type xHook struct {
	hk    *hotkey.Hotkey
	edges chan Edge
}

func New() Hook {
	return &xHook{
		hk:    hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeySpace),
		edges: make(chan Edge, 16),
	}
}

func (h *xHook) Register() error {
	if err := h.hk.Register(); err != nil {
		return err
	}
	go func() {
		for range h.hk.Keydown() {
			h.emit(Edge{Key: PTT, Down: true, At: time.Now()})
		}
	}()
	go func() {
		for range h.hk.Keyup() {
			h.emit(Edge{Key: PTT, Down: false, At: time.Now()})
		}
	}()
	return nil
}

func (h *xHook) emit(e Edge) {
	select {
	case h.edges <- e:
	default:
	}
}

func (h *xHook) Unregister() {
	h.hk.Unregister()
}

func (h *xHook) Edges() <-chan Edge {
	return h.edges
}
