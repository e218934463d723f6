package draft

import (
	"context"
	"sync"

	"themeforge/pkg/prompt"
)

// UploadedImage is an attachment as the input shows it. While Loading, URL is
// a placeholder that Complete later swaps for the encoded data URL.
type UploadedImage struct {
	URL     string
	Loading bool
}

// Images tracks attachments for the prompt being composed. Finished images are
// mirrored into the draft store so they survive a restart.
type Images struct {
	mu    sync.Mutex
	items []UploadedImage
	draft *Store
}

// NewImages seeds the tracker from the images already in draft. A nil draft
// keeps the tracker in memory only.
func NewImages(draft *Store) *Images {
	t := &Images{draft: draft}
	if draft != nil {
		for _, img := range draft.Images() {
			t.items = append(t.items, UploadedImage{URL: img.URL})
		}
	}
	return t
}

// Add appends placeholders for uploads that have started.
func (t *Images) Add(tempURLs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, url := range tempURLs {
		t.items = append(t.items, UploadedImage{URL: url, Loading: true})
	}
}

// Complete replaces the placeholder tempURL with finalURL. It reports false
// when no such placeholder exists, e.g. after the user removed it.
func (t *Images) Complete(ctx context.Context, tempURL, finalURL string) (bool, error) {
	t.mu.Lock()
	found := false
	for i := range t.items {
		if t.items[i].URL == tempURL && t.items[i].Loading {
			t.items[i] = UploadedImage{URL: finalURL}
			found = true
			break
		}
	}
	ready := t.readyLocked()
	t.mu.Unlock()

	if !found {
		return false, nil
	}
	return true, t.sync(ctx, ready)
}

// Discard drops a placeholder whose upload failed.
func (t *Images) Discard(tempURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.items {
		if t.items[i].URL == tempURL && t.items[i].Loading {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return
		}
	}
}

// Remove drops the image at index. Out-of-range indexes are ignored.
func (t *Images) Remove(ctx context.Context, index int) error {
	t.mu.Lock()
	if index < 0 || index >= len(t.items) {
		t.mu.Unlock()
		return nil
	}
	t.items = append(t.items[:index], t.items[index+1:]...)
	ready := t.readyLocked()
	t.mu.Unlock()

	return t.sync(ctx, ready)
}

func (t *Images) Clear(ctx context.Context) error {
	t.mu.Lock()
	t.items = nil
	t.mu.Unlock()

	return t.sync(ctx, nil)
}

func (t *Images) Items() []UploadedImage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]UploadedImage(nil), t.items...)
}

// Ready returns the images that finished uploading, in order.
func (t *Images) Ready() []prompt.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readyLocked()
}

func (t *Images) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

func (t *Images) Uploading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range t.items {
		if item.Loading {
			return true
		}
	}
	return false
}

// CanUploadMore reports whether another image may be attached: there is room
// under limit and nothing is still uploading.
func (t *Images) CanUploadMore(limit int) bool {
	return t.Len() < limit && !t.Uploading()
}

func (t *Images) readyLocked() []prompt.Image {
	out := make([]prompt.Image, 0, len(t.items))
	for _, item := range t.items {
		if !item.Loading {
			out = append(out, prompt.Image{URL: item.URL})
		}
	}
	return out
}

func (t *Images) sync(ctx context.Context, ready []prompt.Image) error {
	if t.draft == nil {
		return nil
	}
	return t.draft.SetImages(ctx, ready)
}
