package hook

import "time"

type FakeHook struct {
	edges chan Edge
}

func NewFake() *FakeHook {
	return &FakeHook{
		edges: make(chan Edge, 16),
	}
}

func (f *FakeHook) Register() error    { return nil }
func (f *FakeHook) Unregister()        {}
func (f *FakeHook) Edges() <-chan Edge { return f.edges }

func (f *FakeHook) SimKeydown() { f.edges <- Edge{Key: PTT, Down: true, At: time.Now()} }
func (f *FakeHook) SimKeyup()   { f.edges <- Edge{Key: PTT, Down: false, At: time.Now()} }

// SimEdge injects an edge with an explicit timestamp.
func (f *FakeHook) SimEdge(down bool, at time.Time) {
	f.edges <- Edge{Key: PTT, Down: down, At: at}
}
