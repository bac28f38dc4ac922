package protocol

const (
	// PropComm is the per-window property peers append frames to.
	PropComm = "Comm"
	// PropVim marks a window as a live protocol endpoint.
	PropVim = "Vim"
	// PropRegistry is the root-window server registry.
	PropRegistry = "VimRegistry"

	// VimVersion is written to our own PropVim so peers accept us.
	VimVersion = "6.0"

	// DefaultSerialWrap is the last serial issued before wrapping to 1.
	DefaultSerialWrap = 65530

	// HiddenPrefix marks server names excluded from the visible list.
	HiddenPrefix = "__"
)
