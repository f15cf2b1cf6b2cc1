//go:build linux

package keys

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

var keyCodes = map[string]int{
	"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C,
	"d": keybd_event.VK_D, "e": keybd_event.VK_E, "f": keybd_event.VK_F,
	"g": keybd_event.VK_G, "h": keybd_event.VK_H, "i": keybd_event.VK_I,
	"j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
	"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O,
	"p": keybd_event.VK_P, "q": keybd_event.VK_Q, "r": keybd_event.VK_R,
	"s": keybd_event.VK_S, "t": keybd_event.VK_T, "u": keybd_event.VK_U,
	"v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
	"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,

	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2,
	"3": keybd_event.VK_3, "4": keybd_event.VK_4, "5": keybd_event.VK_5,
	"6": keybd_event.VK_6, "7": keybd_event.VK_7, "8": keybd_event.VK_8,
	"9": keybd_event.VK_9,

	"up":    keybd_event.VK_UP,
	"down":  keybd_event.VK_DOWN,
	"left":  keybd_event.VK_LEFT,
	"right": keybd_event.VK_RIGHT,

	"space":     keybd_event.VK_SPACE,
	"enter":     keybd_event.VK_ENTER,
	"tab":       keybd_event.VK_TAB,
	"esc":       keybd_event.VK_ESC,
	"backspace": keybd_event.VK_BACKSPACE,
}

// Uinput emits key events through a virtual /dev/uinput keyboard.
type Uinput struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewUinput opens the virtual keyboard and waits settle for the compositor to
// pick up the new device; events sent earlier are silently lost.
func NewUinput(ctx context.Context, settle time.Duration) (*Uinput, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("open uinput keyboard: %w", err)
	}
	if settle > 0 {
		timer := time.NewTimer(settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return &Uinput{kb: kb}, nil
}

func (u *Uinput) Press(key string) error {
	return u.send(key, true)
}

func (u *Uinput) Release(key string) error {
	return u.send(key, false)
}

func (u *Uinput) Close() error {
	return nil
}

func (u *Uinput) send(key string, down bool) error {
	code, ok := keyCodes[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.kb.SetKeys(code)
	if down {
		return u.kb.Press()
	}
	return u.kb.Release()
}

// Supported reports whether the uinput backend can emit key.
func Supported(key string) bool {
	_, ok := keyCodes[key]
	return ok
}
