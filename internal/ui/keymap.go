package ui

// Key binding constants used in handleKey.
const (
	KeyQuit         = "q"
	KeyCtrlC        = "ctrl+c"
	KeyOpenFile     = "o"
	KeySample       = "s"
	KeyCapture      = " "
	KeyPlayPause    = "p"
	KeyIntervalUp   = "+"
	KeyIntervalEq   = "="
	KeyIntervalDown = "-"
	KeyFolder       = "f"
	KeyClearFolder  = "F"
	KeyDelete       = "d"
	KeyDescribe     = "a"
	KeyCopy         = "c"
	KeySimilar      = "/"
	KeySeekBack     = "left"
	KeySeekForward  = "right"
	KeyUp           = "up"
	KeyDown         = "down"
	KeyJ            = "j"
	KeyK            = "k"
	KeyEnter        = "enter"
	KeyEsc          = "esc"
)
