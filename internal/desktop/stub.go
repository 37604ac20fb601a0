//go:build !linux

package desktop

// New returns the default settings on platforms without the portal.
func New(_ bool) (Reader, error) {
	return Static(Defaults()), nil
}
