package tui

import "imagegen/internal/session"

// Feed carries controller state changes from poll loops into the program.
type Feed chan session.View

func NewFeed() Feed {
	return make(Feed, 8)
}

// Push hands v to the program without blocking. When the buffer is full the
// oldest pending view is dropped; only the latest matters.
func (f Feed) Push(v session.View) {
	for {
		select {
		case f <- v:
			return
		default:
		}
		select {
		case <-f:
		default:
		}
	}
}
