package trigger

import (
	"fmt"
	"strings"

	"golang.design/x/hotkey"
)

// Binding is a parsed hotkey combination such as "ctrl+shift+m".
type Binding struct {
	// Mods are the modifier keys that must be held.
	Mods []hotkey.Modifier

	// Key is the terminal non-modifier key.
	Key hotkey.Key

	raw string
}

// String returns the normalised binding string the Binding was parsed from.
func (b Binding) String() string { return b.raw }

// modifierNames maps config spellings to portable hotkey modifiers. Only
// modifiers available on every supported platform are accepted.
var modifierNames = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
}

// keyNames maps config spellings to hotkey keys.
var keyNames = map[string]hotkey.Key{
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"f1":     hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3,
	"f4": hotkey.KeyF4, "f5": hotkey.KeyF5, "f6": hotkey.KeyF6,
	"f7": hotkey.KeyF7, "f8": hotkey.KeyF8, "f9": hotkey.KeyF9,
	"f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// ParseBinding parses a "+"-separated hotkey string of the form
// "mod+...+key", e.g. "ctrl+shift+m". At least one modifier is required so
// that plain typing cannot trip the trigger. Parsing is case-insensitive and
// tolerates surrounding whitespace per part.
func ParseBinding(s string) (Binding, error) {
	parts := strings.Split(s, "+")
	if len(parts) < 2 {
		return Binding{}, fmt.Errorf("trigger: binding %q needs at least one modifier and a key", s)
	}

	var (
		mods       []hotkey.Modifier
		seen       = map[string]bool{}
		normalised []string
	)
	for _, part := range parts[:len(parts)-1] {
		name := strings.ToLower(strings.TrimSpace(part))
		mod, ok := modifierNames[name]
		if !ok {
			return Binding{}, fmt.Errorf("trigger: unknown modifier %q in binding %q", part, s)
		}
		if seen[name] {
			return Binding{}, fmt.Errorf("trigger: duplicate modifier %q in binding %q", part, s)
		}
		seen[name] = true
		mods = append(mods, mod)
		normalised = append(normalised, name)
	}

	keyName := strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
	key, ok := keyNames[keyName]
	if !ok {
		return Binding{}, fmt.Errorf("trigger: unknown key %q in binding %q", parts[len(parts)-1], s)
	}
	normalised = append(normalised, keyName)

	return Binding{
		Mods: mods,
		Key:  key,
		raw:  strings.Join(normalised, "+"),
	}, nil
}
