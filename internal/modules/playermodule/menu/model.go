// Package menu holds the optional menu shown by the OSD menu screen.
package menu

import (
	"container/list"
	"sync"
)

// ItemState is the display state of one menu item
type ItemState string

const (
	ItemNormal      ItemState = "normal"
	ItemDisabled    ItemState = "disabled"
	ItemHighlighted ItemState = "highlighted"
	ItemSelected    ItemState = "selected"
)

// Item is a snapshot of one menu entry
type Item struct {
	Text  string    `json:"text"`
	State ItemState `json:"state"`
}

// Model is a titled list of items with a current position. The OSD reads it
// through Snapshot while callers mutate it from other goroutines.
type Model struct {
	mu      sync.Mutex
	title   string
	items   *list.List
	current int
	version uint64
}

// NewModel creates an empty menu.
func NewModel(title string) *Model {
	return &Model{title: title, items: list.New()}
}

// SetTitle changes the title.
func (m *Model) SetTitle(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.title = title
	m.version++
}

// Append adds an item at the end.
func (m *Model) Append(text string, state ItemState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.PushBack(&Item{Text: text, State: state})
	m.version++
}

// Insert adds an item before index. Out of range indices append.
func (m *Model) Insert(index int, text string, state ItemState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := &Item{Text: text, State: state}
	if e := m.element(index); e != nil {
		m.items.InsertBefore(item, e)
		if index <= m.current && m.items.Len() > 1 {
			m.current++
		}
	} else {
		m.items.PushBack(item)
	}
	m.version++
}

// Remove deletes the item at index.
func (m *Model) Remove(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.element(index)
	if e == nil {
		return false
	}
	m.items.Remove(e)
	if m.current >= m.items.Len() && m.current > 0 {
		m.current = m.items.Len() - 1
	} else if index < m.current {
		m.current--
	}
	m.version++
	return true
}

// SetText replaces the text of the item at index.
func (m *Model) SetText(index int, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.element(index)
	if e == nil {
		return false
	}
	e.Value.(*Item).Text = text
	m.version++
	return true
}

// SetState replaces the state of the item at index.
func (m *Model) SetState(index int, state ItemState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.element(index)
	if e == nil {
		return false
	}
	e.Value.(*Item).State = state
	m.version++
	return true
}

// Select moves the current position.
func (m *Model) Select(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= m.items.Len() {
		return false
	}
	m.current = index
	m.version++
	return true
}

// Next moves to the next item, stopping at the last one.
func (m *Model) Next() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current+1 < m.items.Len() {
		m.current++
		m.version++
	}
	return m.current
}

// Prev moves to the previous item, stopping at the first one.
func (m *Model) Prev() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current > 0 {
		m.current--
		m.version++
	}
	return m.current
}

// Clear removes every item.
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Init()
	m.current = 0
	m.version++
}

// Len returns the number of items.
func (m *Model) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Len()
}

// Snapshot copies the title, items and current index under the lock. The
// version changes whenever the menu does.
func (m *Model) Snapshot() (title string, items []Item, current int, version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items = make([]Item, 0, m.items.Len())
	for e := m.items.Front(); e != nil; e = e.Next() {
		items = append(items, *e.Value.(*Item))
	}
	return m.title, items, m.current, m.version
}

func (m *Model) element(index int) *list.Element {
	if index < 0 || index >= m.items.Len() {
		return nil
	}
	e := m.items.Front()
	for i := 0; i < index; i++ {
		e = e.Next()
	}
	return e
}
