//go:build !darwin

package notify

// NewDesktopSender returns nil outside macOS.
func NewDesktopSender() Sender {
	return nil
}
