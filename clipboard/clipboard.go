// Package clipboard puts recognized utterances on the system
// clipboard.
package clipboard

import cb "github.com/atotto/clipboard"

func Copy(text string) error {
	return cb.WriteAll(text)
}

func Read() (string, error) {
	return cb.ReadAll()
}

// Available reports whether a clipboard backend exists on this
// system (xclip/xsel on X11, wl-clipboard on Wayland).
func Available() bool {
	return !cb.Unsupported
}
