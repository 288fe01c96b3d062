package presenter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one decoded video payload. Data holds the encoded image bytes.
type Frame struct {
	Data       []byte
	Format     string
	Width      int
	Height     int
	Seq        uint64
	ReceivedAt time.Time
}

// FrameInfo describes a frame without its pixels.
type FrameInfo struct {
	Seq    uint64 `json:"seq"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

const frameSlots = 3

// FrameStore keeps the latest video frame. It is written on the loop and read
// from HTTP handlers, so it carries its own lock. Slots are recycled to avoid
// an allocation per frame.
type FrameStore struct {
	slots    [frameSlots]Frame
	writeIdx uint64
	seq      uint64
	mu       sync.RWMutex
	hasFrame atomic.Bool
}

// NewFrameStore creates an empty store.
func NewFrameStore() *FrameStore {
	fs := &FrameStore{}
	for i := range fs.slots {
		fs.slots[i].Data = make([]byte, 0, 256*1024)
	}
	return fs
}

// Put replaces the current frame and returns its sequence number.
func (fs *FrameStore) Put(data []byte, format string, width, height int, at time.Time) uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	slot := &fs.slots[fs.writeIdx%frameSlots]
	if cap(slot.Data) < len(data) {
		slot.Data = make([]byte, len(data))
	} else {
		slot.Data = slot.Data[:len(data)]
	}
	copy(slot.Data, data)
	fs.seq++
	slot.Format = format
	slot.Width = width
	slot.Height = height
	slot.Seq = fs.seq
	slot.ReceivedAt = at

	fs.writeIdx++
	fs.hasFrame.Store(true)
	return fs.seq
}

// Latest returns a copy of the current frame.
func (fs *FrameStore) Latest() (Frame, bool) {
	if !fs.hasFrame.Load() {
		return Frame{}, false
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if fs.writeIdx == 0 || !fs.hasFrame.Load() {
		return Frame{}, false
	}
	slot := fs.slots[(fs.writeIdx-1)%frameSlots]
	out := slot
	out.Data = append([]byte(nil), slot.Data...)
	return out, true
}

// Info describes the current frame.
func (fs *FrameStore) Info() (FrameInfo, bool) {
	if !fs.hasFrame.Load() {
		return FrameInfo{}, false
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if fs.writeIdx == 0 || !fs.hasFrame.Load() {
		return FrameInfo{}, false
	}
	slot := &fs.slots[(fs.writeIdx-1)%frameSlots]
	return FrameInfo{Seq: slot.Seq, Format: slot.Format, Width: slot.Width, Height: slot.Height}, true
}

// Clear blanks the store. Sequence numbers keep increasing across clears.
func (fs *FrameStore) Clear() {
	fs.mu.Lock()
	fs.hasFrame.Store(false)
	fs.mu.Unlock()
}

// HasFrame reports whether a frame is displayed.
func (fs *FrameStore) HasFrame() bool {
	return fs.hasFrame.Load()
}
