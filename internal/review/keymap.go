package review

// Key binding constants used in handleKey.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyJ         = "j"
	KeyK         = "k"
	KeyEdit      = "e"
	KeyTab       = "tab"
	KeyEnter     = "enter"
	KeySimilar   = "r"
	KeyAuto      = "a"
	KeyAdd       = "n"
	KeyCommit    = "c"
	KeyEsc       = "esc"
	KeyBackspace = "backspace"
)
