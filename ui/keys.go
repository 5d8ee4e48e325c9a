package ui

import "github.com/charmbracelet/bubbles/key"

// Speed and volume change per key press.
const (
	speedStep  = 0.1
	volumeStep = 0.1
)

type keyMap struct {
	Pause   key.Binding
	Restart key.Binding
	Next    key.Binding
	Prev    key.Binding
	Faster  key.Binding
	Slower  key.Binding
	Louder  key.Binding
	Quieter key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Pause: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space", "pause/resume"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		Next: key.NewBinding(
			key.WithKeys("n", "right", "l"),
			key.WithHelp("n/→", "next segment"),
		),
		Prev: key.NewBinding(
			key.WithKeys("b", "left", "h"),
			key.WithHelp("b/←", "previous segment"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "slower"),
		),
		Louder: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑", "louder"),
		),
		Quieter: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓", "quieter"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "stop"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Next, k.Prev, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Restart, k.Quit},
		{k.Next, k.Prev},
		{k.Faster, k.Slower, k.Louder, k.Quieter},
		{k.Help},
	}
}
