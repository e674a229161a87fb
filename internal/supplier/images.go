package supplier

import "sync"

// ImageStore keeps per-product image lists gathered outside the main feed.
type ImageStore struct {
	mu     sync.RWMutex
	images map[string][]string
}

func NewImageStore() *ImageStore {
	return &ImageStore{images: make(map[string][]string)}
}

// Get returns a copy of the images stored for code.
func (s *ImageStore) Get(code string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	imgs, ok := s.images[code]
	if !ok {
		return nil
	}
	return append([]string(nil), imgs...)
}

// Has reports whether code has been looked up before, even if it had no
// images.
func (s *ImageStore) Has(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.images[code]
	return ok
}

func (s *ImageStore) Set(code string, images []string) {
	s.mu.Lock()
	s.images[code] = append([]string(nil), images...)
	s.mu.Unlock()
}

// Len returns how many products have been looked up.
func (s *ImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
