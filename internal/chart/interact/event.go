package interact

// Event is one external input to the controller. Exactly one event drives
// each transition.
type Event interface {
	event()
}

// Button identifies a pointer button.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonAuxiliary Button = 1
	ButtonSecondary Button = 2
)

// Modifiers is the set of keyboard modifiers held during a wheel event.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Meta  bool
}

// PointerDown is a button press at pixel (X, Y).
type PointerDown struct {
	X, Y   float64
	Button Button
}

// PointerMove is a pointer movement to pixel (X, Y).
type PointerMove struct {
	X, Y float64
}

// PointerUp is a button release at pixel (X, Y).
type PointerUp struct {
	X, Y float64
}

// PointerLeave is the pointer leaving the interactive surface.
type PointerLeave struct{}

// Wheel is one wheel notch at pixel (X, Y). Negative DeltaY scrolls up.
type Wheel struct {
	X, Y   float64
	DeltaY float64
	Mods   Modifiers
}

func (PointerDown) event()  {}
func (PointerMove) event()  {}
func (PointerUp) event()    {}
func (PointerLeave) event() {}
func (Wheel) event()        {}
