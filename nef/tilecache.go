package nef

import (
	"sync"
)

// tileKey identifies a decoded tile within a specific file and image.
type tileKey struct {
	file  *File
	image int
	col   int
	row   int
}

// TileCache holds decoded tiles so that repeated reads of the same region
// skip the entropy decoder. Entries are evicted oldest first.
type TileCache struct {
	mu      sync.Mutex
	cache   map[tileKey]*RawImage
	order   []tileKey
	maxSize int
}

// NewTileCache creates a tile cache with the given maximum number of entries.
func NewTileCache(maxEntries int) *TileCache {
	if maxEntries <= 0 {
		maxEntries = 16
	}
	return &TileCache{
		cache:   make(map[tileKey]*RawImage, maxEntries),
		order:   make([]tileKey, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// Len returns the number of cached tiles.
func (tc *TileCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.cache)
}

func (tc *TileCache) get(key tileKey) *RawImage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.cache[key]
}

func (tc *TileCache) put(key tileKey, tile *RawImage) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, ok := tc.cache[key]; ok {
		return
	}
	for len(tc.cache) >= tc.maxSize && len(tc.order) > 0 {
		oldest := tc.order[0]
		tc.order = tc.order[1:]
		delete(tc.cache, oldest)
	}
	tc.cache[key] = tile
	tc.order = append(tc.order, key)
}

// drop removes every tile belonging to f.
func (tc *TileCache) drop(f *File) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	kept := tc.order[:0]
	for _, k := range tc.order {
		if k.file == f {
			delete(tc.cache, k)
			continue
		}
		kept = append(kept, k)
	}
	tc.order = kept
}

// CachedFile wraps a File with a shared tile cache. Cached tiles are
// shared between callers and must not be modified.
type CachedFile struct {
	*File
	cache *TileCache
}

// NewCachedFile wraps f with cache.
func NewCachedFile(f *File, cache *TileCache) *CachedFile {
	return &CachedFile{File: f, cache: cache}
}

// ReadTileCached reads a tile, using the cache if available.
func (cf *CachedFile) ReadTileCached(img *Image, col, row int) (*RawImage, error) {
	key := tileKey{file: cf.File, image: img.Index(), col: col, row: row}
	if t := cf.cache.get(key); t != nil {
		return t, nil
	}
	t, err := cf.File.ReadTile(img, col, row)
	if err != nil {
		return nil, err
	}
	cf.cache.put(key, t)
	return t, nil
}

// Close evicts the file's tiles and closes it.
func (cf *CachedFile) Close() error {
	cf.cache.drop(cf.File)
	return cf.File.Close()
}
